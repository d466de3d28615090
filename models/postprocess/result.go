// Package postprocess - Postprocessing utilities for models.
package postprocess

import (
	"strconv"

	"github.com/nvr-ai/go-detbench/images"
)

// Candidate is a scored box decoded from a raw output grid. The box is in
// center form, in model-input pixels.
type Candidate struct {
	// The predicted class index.
	Class int
	// The activated confidence of the class.
	Confidence float32
	// The center-form box.
	Center images.CenterBox
}

// Bounds returns the corner-form box used for IoU.
func (c Candidate) Bounds() images.Rect { return c.Center.Rect() }

// Score returns the candidate confidence.
func (c Candidate) Score() float32 { return c.Confidence }

// Category returns the class index as a suppression key.
func (c Candidate) Category() string { return strconv.Itoa(c.Class) }

// Record is a detection as a backend reports it, already resolved into one
// shape: class label, confidence and an optional corner-form box. A nil Box
// means the backend gave no usable geometry.
type Record struct {
	// Class is the label name.
	Class string
	// Confidence is the backend score.
	Confidence float32
	// Box is the corner-form box, in model or image space depending on the stage.
	Box *images.Box
}

// Bounds returns the corner-form box, empty when the geometry is missing.
func (r Record) Bounds() images.Rect {
	if r.Box == nil {
		return images.Rect{}
	}
	return r.Box.Rect()
}

// Score returns the record confidence.
func (r Record) Score() float32 { return r.Confidence }

// Category returns the class label.
func (r Record) Category() string { return r.Class }

// Detection is the canonical, backend-agnostic detection in original image
// pixels.
type Detection struct {
	// ID is the position in the backend's output list.
	ID int `json:"id" yaml:"id"`
	// Class is the label name.
	Class string `json:"class" yaml:"class"`
	// Confidence is in [0, 1].
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// X is the left edge, never negative.
	X float32 `json:"x" yaml:"x"`
	// Y is the top edge, never negative.
	Y float32 `json:"y" yaml:"y"`
	// Width is never negative.
	Width float32 `json:"width" yaml:"width"`
	// Height is never negative.
	Height float32 `json:"height" yaml:"height"`
}

// Box returns the detection geometry.
func (d Detection) Box() images.Box {
	return images.Box{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height}
}

// Bounds returns the corner-form box.
func (d Detection) Bounds() images.Rect { return d.Box().Rect() }

// Score returns the detection confidence.
func (d Detection) Score() float32 { return d.Confidence }

// Category returns the class label.
func (d Detection) Category() string { return d.Class }
