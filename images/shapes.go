// Package images - Box geometry used by decoding, suppression and rescaling.
package images

import "github.com/chewxy/math32"

// Rect is a corner-form box given by its top-left (X1,Y1) and bottom-right
// (X2,Y2) corners, in pixels.
type Rect struct {
	X1, Y1, X2, Y2 float32
}

// Box is a corner-form box given by its top-left corner and its size.
type Box struct {
	X      float32 `json:"x" yaml:"x"`
	Y      float32 `json:"y" yaml:"y"`
	Width  float32 `json:"width" yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// CenterBox is a center-form box as emitted by YOLO style heads.
type CenterBox struct {
	CX, CY, W, H float32
}

// Box converts a center-form box to corner form: x = cx - w/2, y = cy - h/2.
func (c CenterBox) Box() Box {
	return Box{X: c.CX - c.W/2, Y: c.CY - c.H/2, Width: c.W, Height: c.H}
}

// Rect returns the box corners.
func (c CenterBox) Rect() Rect {
	return c.Box().Rect()
}

// Rect returns the box corners.
func (b Box) Rect() Rect {
	return Rect{X1: b.X, Y1: b.Y, X2: b.X + b.Width, Y2: b.Y + b.Height}
}

// Area returns the box area, 0 for degenerate boxes.
func (b Box) Area() float32 {
	return b.Rect().Area()
}

// Center returns the centre point of the box.
func (b Box) Center() (float32, float32) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// IsFinite reports whether every coordinate is a finite number.
func (b Box) IsFinite() bool {
	for _, v := range [...]float32{b.X, b.Y, b.Width, b.Height} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Area returns the rectangle area, 0 when either side is not positive.
func (r Rect) Area() float32 {
	w := r.X2 - r.X1
	h := r.Y2 - r.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// CalculateIoU returns the Intersection over Union of two corner-form boxes.
//
// IoU = Area(A ∩ B) / (Area(A) + Area(B) - Area(A ∩ B))
//
// The intersection corners are the max of the top-left corners and the min of
// the bottom-right corners. When the intersection is empty (including boxes
// that only touch) or the union has no area the result is 0. The function is
// symmetric in its arguments.
//
// Arguments:
//   - r: The first box.
//   - o: The other box.
//
// Returns:
//   - float32: A value in [0, 1].
//
// Example:
//
// ```go
//
//	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	iou := CalculateIoU(a, b) // 25 / (100 + 100 - 25) ≈ 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if !(interW > 0) || !(interH > 0) {
		return 0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if !(unionArea > 0) {
		return 0
	}

	return interArea / unionArea
}
