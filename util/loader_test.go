package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"frame-10.jpg": "ten",
		"frame-2.png":  "two",
		"frame-1.JPEG": "one",
		"still.webp":   "still",
		"notes.txt":    "skip",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-3.jpg"), 0o700))

	images, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, images, 4)

	assert.Equal(t, 1, images[0].Frame)
	assert.Equal(t, []byte("one"), images[0].Data)
	assert.Equal(t, 2, images[1].Frame)
	assert.Equal(t, 10, images[2].Frame)
	assert.Equal(t, -1, images[3].Frame)
	assert.Equal(t, filepath.Join(dir, "still.webp"), images[3].Path)

	_, err = LoadDirectoryImageFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestValidateImageFile(t *testing.T) {
	assert.NoError(t, ValidateImageFile("photo.JPG", 1024))
	assert.NoError(t, ValidateImageFile("a.webp", MaxImageSize))

	err := ValidateImageFile("anim.gif", 10)
	assert.True(t, errors.Is(err, ErrInvalidFormat))
	assert.Contains(t, err.Error(), "jpg, jpeg, png, webp, bmp")

	err = ValidateImageFile("big.png", MaxImageSize+1)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Contains(t, err.Error(), "10 MB")
}

func TestValidateVideoFile(t *testing.T) {
	assert.NoError(t, ValidateVideoFile("clip.mov", 50*1024*1024))
	assert.True(t, errors.Is(ValidateVideoFile("clip.mkv", 1), ErrInvalidFormat))
	assert.True(t, errors.Is(ValidateVideoFile("clip.mp4", MaxVideoSize+1), ErrFileTooLarge))
	assert.True(t, errors.Is(ValidateVideoFile("noext", 1), ErrInvalidFormat))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10 MB"},
		{1288490189, "1.2 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in), tt.in)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "1:05", FormatDuration(65.9))
	assert.Equal(t, "12:00", FormatDuration(720))
}
