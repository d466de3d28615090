// Package images - Image definition and loading for the detection pipeline.
package images

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	_ "image/jpeg" // Register JPEG decoder.
	_ "image/png"  // Register PNG decoder.
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // Register BMP decoder.
	_ "golang.org/x/image/webp" // Register WebP decoder.
)

// ErrEmptyImage is returned when an image has no pixels.
var ErrEmptyImage = errors.New("image has zero area")

// Metadata describes where an image came from.
type Metadata struct {
	// Name is the file name (or a caller supplied label).
	Name string `json:"name" yaml:"name"`
	// Size is the encoded size in bytes, 0 when unknown.
	Size int64 `json:"size" yaml:"size"`
	// Format is the encoded format.
	Format ImageFormat `json:"format" yaml:"format"`
}

// Image is a decoded RGB image. It is captured once per input session and
// must not be mutated afterwards.
type Image struct {
	// Width of the image in pixels.
	Width int `json:"width" yaml:"width"`
	// Height of the image in pixels.
	Height int `json:"height" yaml:"height"`
	// Pix holds interleaved RGB samples, row-major, len(Pix) == Width*Height*3.
	Pix []uint8 `json:"-" yaml:"-"`
	// Source describes the origin of the image.
	Source Metadata `json:"source" yaml:"source"`
}

// NewImage wraps an interleaved RGB buffer.
//
// Arguments:
//   - width: The width in pixels.
//   - height: The height in pixels.
//   - pix: Interleaved RGB samples.
//
// Returns:
//   - *Image: The image.
//   - error: If the buffer does not match the dimensions.
func NewImage(width, height int, pix []uint8) (*Image, error) {
	img := &Image{Width: width, Height: height, Pix: pix}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// FromImage converts any image.Image into an RGB Image. Alpha is dropped.
func FromImage(src image.Image) (*Image, error) {
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}

	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	pix := make([]uint8, w*h*3)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		for x := 0; x < w; x++ {
			o := (y*w + x) * 3
			pix[o] = row[x*4]
			pix[o+1] = row[x*4+1]
			pix[o+2] = row[x*4+2]
		}
	}

	return &Image{Width: w, Height: h, Pix: pix}, nil
}

// Decode decodes an encoded image buffer.
//
// Arguments:
//   - data: The encoded image bytes.
//   - name: The source name, used for metadata only.
//
// Returns:
//   - *Image: The decoded image.
//   - error: If the data cannot be decoded.
func Decode(data []byte, name string) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.New("image data is empty")
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}

	img, err := FromImage(src)
	if err != nil {
		return nil, errors.Wrapf(err, "convert %s", name)
	}
	img.Source = Metadata{Name: name, Size: int64(len(data)), Format: FormatFromName(name)}
	return img, nil
}

// Load reads and decodes an image file from disk.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read image")
	}
	return Decode(data, filepath.Base(path))
}

// Validate checks that the dimensions are positive and match the buffer.
func (img *Image) Validate() error {
	if img == nil {
		return errors.New("image is nil")
	}
	if img.Width <= 0 || img.Height <= 0 {
		return errors.Wrapf(ErrEmptyImage, "%dx%d", img.Width, img.Height)
	}
	if len(img.Pix) != img.Width*img.Height*3 {
		return errors.Errorf("pixel buffer holds %d bytes, %dx%d RGB needs %d",
			len(img.Pix), img.Width, img.Height, img.Width*img.Height*3)
	}
	return nil
}

// RGBA returns a copy of the image as an *image.RGBA.
func (img *Image) RGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i, j := 0, 0; i < len(img.Pix); i, j = i+3, j+4 {
		out.Pix[j] = img.Pix[i]
		out.Pix[j+1] = img.Pix[i+1]
		out.Pix[j+2] = img.Pix[i+2]
		out.Pix[j+3] = 0xff
	}
	return out
}

// Wait returns the image itself. A decoded Image is always ready.
func (img *Image) Wait(ctx context.Context) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}
