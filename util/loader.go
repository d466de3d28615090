package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from a frame-N name, -1 otherwise.
	Frame int
}

// LoadDirectoryImageFiles reads all supported image files from a directory.
// Files named frame-N.ext are ordered by N and come first; other images
// follow in name order.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := filepath.Ext(file.Name())
		if !isImageExtension(ext) {
			continue
		}

		imgPath := filepath.Join(dir, file.Name())
		data, readErr := os.ReadFile(imgPath)
		if readErr != nil {
			return nil, readErr
		}

		frame := -1
		if stem := strings.TrimSuffix(file.Name(), ext); strings.HasPrefix(stem, "frame-") {
			if n, err := strconv.Atoi(strings.TrimPrefix(stem, "frame-")); err == nil && n >= 0 {
				frame = n
			}
		}

		images = append(images, ImageFile{
			Path:  imgPath,
			Data:  data,
			Frame: frame,
		})
	}

	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return a.Frame >= 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})

	return images, nil
}

func isImageExtension(ext string) bool {
	for _, f := range ImageFormats {
		if strings.EqualFold(ext, "."+f) {
			return true
		}
	}
	return false
}
