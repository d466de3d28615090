package images

import (
	"path/filepath"
	"strings"
)

// ImageFormat represents supported image formats
type ImageFormat string

const (
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatWebP    ImageFormat = "webp"
	FormatBMP     ImageFormat = "bmp"
	FormatUnknown ImageFormat = ""
)

// FormatFromName maps a file name extension to a format.
func FormatFromName(name string) ImageFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".webp":
		return FormatWebP
	case ".bmp":
		return FormatBMP
	default:
		return FormatUnknown
	}
}
