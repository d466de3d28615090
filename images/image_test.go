package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: uint8(x % 256), B: 10, A: 255})
		}
	}
	return img
}

func getPNGBytes(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, getTestImage(w, h)))
	return buf.Bytes()
}

func TestFromImage(t *testing.T) {
	img, err := FromImage(getTestImage(4, 3))
	require.NoError(t, err)

	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Len(t, img.Pix, 4*3*3)
	assert.NoError(t, img.Validate())

	// Pixel (2, 1).
	o := (1*4 + 2) * 3
	assert.Equal(t, []uint8{255, 2, 10}, img.Pix[o:o+3])
}

func TestFromImageSubImage(t *testing.T) {
	src := getTestImage(10, 10).(*image.RGBA).SubImage(image.Rect(5, 5, 8, 7))

	img, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, uint8(5), img.Pix[1], "first pixel comes from x=5")
}

func TestFromImageEmpty(t *testing.T) {
	_, err := FromImage(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.True(t, errors.Is(err, ErrEmptyImage))
}

func TestNewImageValidation(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		pix     []uint8
		wantErr bool
	}{
		{name: "valid", w: 2, h: 2, pix: make([]uint8, 12)},
		{name: "zero width", w: 0, h: 2, pix: nil, wantErr: true},
		{name: "negative height", w: 2, h: -1, pix: nil, wantErr: true},
		{name: "short buffer", w: 2, h: 2, pix: make([]uint8, 11), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewImage(tt.w, tt.h, tt.pix)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDecode(t *testing.T) {
	data := getPNGBytes(t, 20, 10)

	img, err := Decode(data, "frame.png")
	require.NoError(t, err)
	assert.Equal(t, 20, img.Width)
	assert.Equal(t, 10, img.Height)
	assert.Equal(t, FormatPNG, img.Source.Format)
	assert.Equal(t, "frame.png", img.Source.Name)
	assert.Equal(t, int64(len(data)), img.Source.Size)

	var jb bytes.Buffer
	require.NoError(t, jpeg.Encode(&jb, getTestImage(16, 16), nil))
	img, err = Decode(jb.Bytes(), "photo.JPG")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, img.Source.Format)

	_, err = Decode([]byte("not an image"), "bad.png")
	assert.Error(t, err)

	_, err = Decode(nil, "empty.png")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.png")
	require.NoError(t, os.WriteFile(path, getPNGBytes(t, 8, 6), 0o600))

	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "input.png", img.Source.Name)
	assert.Equal(t, 8, img.Width)

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestRGBARoundTrip(t *testing.T) {
	img, err := FromImage(getTestImage(5, 5))
	require.NoError(t, err)

	again, err := FromImage(img.RGBA())
	require.NoError(t, err)
	assert.Equal(t, img.Pix, again.Pix)
}

func TestFormatFromName(t *testing.T) {
	assert.Equal(t, FormatJPEG, FormatFromName("a.jpeg"))
	assert.Equal(t, FormatWebP, FormatFromName("a.WEBP"))
	assert.Equal(t, FormatBMP, FormatFromName("dir/a.bmp"))
	assert.Equal(t, FormatUnknown, FormatFromName("a.gif"))
}

func TestFuture(t *testing.T) {
	f := NewFuture()
	img := &Image{Width: 1, Height: 1, Pix: []uint8{1, 2, 3}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go f.Resolve(img)
	got, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, img, got)

	// Later calls are ignored.
	f.Reject(errors.New("late"))
	got, err = f.Wait(context.Background())
	assert.NoError(t, err)
	assert.Same(t, img, got)
}

func TestLoadAsync(t *testing.T) {
	f := LoadAsync(getPNGBytes(t, 3, 3), "async.png")
	img, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)

	f = LoadAsync([]byte("garbage"), "bad.png")
	<-f.Ready()
	_, err = f.Wait(context.Background())
	assert.Error(t, err)
}
