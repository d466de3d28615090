// Package util - input file validation and directory loading.
package util

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	// MaxImageSize is the largest accepted image upload.
	MaxImageSize int64 = 10 * 1024 * 1024
	// MaxVideoSize is the largest accepted video upload.
	MaxVideoSize int64 = 100 * 1024 * 1024
)

var (
	// ImageFormats are the accepted image extensions.
	ImageFormats = []string{"jpg", "jpeg", "png", "webp", "bmp"}
	// VideoFormats are the accepted video extensions.
	VideoFormats = []string{"mp4", "webm", "avi", "mov"}

	// ErrInvalidFormat is returned for unsupported extensions.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrFileTooLarge is returned for files above the size cap.
	ErrFileTooLarge = errors.New("file too large")
)

// ValidateImageFile checks an image file name and size against the accepted
// formats and the 10 MiB cap.
func ValidateImageFile(name string, size int64) error {
	return validateFile(name, size, ImageFormats, MaxImageSize)
}

// ValidateVideoFile checks a video file name and size against the accepted
// formats and the 100 MiB cap.
func ValidateVideoFile(name string, size int64) error {
	return validateFile(name, size, VideoFormats, MaxVideoSize)
}

func validateFile(name string, size int64, formats []string, maxSize int64) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	supported := false
	for _, f := range formats {
		if ext == f {
			supported = true
			break
		}
	}
	if !supported {
		return errors.Wrapf(ErrInvalidFormat, "supported: %s", strings.Join(formats, ", "))
	}
	if size > maxSize {
		return errors.Wrapf(ErrFileTooLarge, "max size: %s", FormatBytes(maxSize))
	}
	return nil
}

// FormatBytes formats byte counts in human-readable format, e.g. "1.5 MB".
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	const unit = 1024
	sizes := []string{"Bytes", "KB", "MB", "GB", "TB"}
	exp := int(math.Floor(math.Log(float64(bytes)) / math.Log(unit)))
	if exp >= len(sizes) {
		exp = len(sizes) - 1
	}
	v := math.Round(float64(bytes)/math.Pow(unit, float64(exp))*100) / 100
	return fmt.Sprintf("%s %s", formatFloat(v), sizes[exp])
}

// FormatDuration formats seconds as m:ss.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
