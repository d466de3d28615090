package preprocess

import (
	"image"
	"image/draw"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Tensor is a dense float32 buffer with a row-major shape descriptor.
type Tensor struct {
	Data  []float32
	Shape tensor.Shape
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(dims ...int) *Tensor {
	shape := tensor.Shape(dims)
	return &Tensor{Data: make([]float32, shape.TotalSize()), Shape: shape}
}

// FromData wraps data without copying. The data length must match the shape.
func FromData(data []float32, dims ...int) (*Tensor, error) {
	t := &Tensor{Data: data, Shape: tensor.Shape(dims)}
	if err := t.Check(); err != nil {
		return nil, err
	}
	return t, nil
}

// Check verifies that the data length matches the shape.
func (t *Tensor) Check() error {
	if t == nil {
		return errors.New("tensor is nil")
	}
	for _, d := range t.Shape {
		if d <= 0 {
			return errors.Errorf("tensor shape %v has a non-positive dimension", t.Shape)
		}
	}
	if len(t.Shape) == 0 || t.Shape.TotalSize() != len(t.Data) {
		return errors.Errorf("tensor shape %v needs %d values, has %d", t.Shape, t.Shape.TotalSize(), len(t.Data))
	}
	return nil
}

// Channels returns C of a [1, C, H, W] tensor.
func (t *Tensor) Channels() int { return t.dim(1) }

// Height returns H of a [1, C, H, W] tensor.
func (t *Tensor) Height() int { return t.dim(2) }

// Width returns W of a [1, C, H, W] tensor.
func (t *Tensor) Width() int { return t.dim(3) }

func (t *Tensor) dim(i int) int {
	if i >= len(t.Shape) {
		return 0
	}
	return t.Shape[i]
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
