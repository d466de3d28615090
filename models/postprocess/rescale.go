// Package postprocess - maps model-input coordinates back onto the original image.
package postprocess

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-detbench/images"
)

// Scale holds the independent X and Y factors from model-input space to
// original image space.
type Scale struct {
	X float32
	Y float32
}

// NewScale returns the factors origWidth/inputSize and origHeight/inputSize.
//
// Arguments:
//   - origWidth: The original image width.
//   - origHeight: The original image height.
//   - inputSize: The square model input side.
//
// Returns:
//   - Scale: The factors. A non-positive inputSize yields the identity.
func NewScale(origWidth, origHeight, inputSize int) Scale {
	if inputSize <= 0 {
		return Scale{X: 1, Y: 1}
	}
	s := float32(inputSize)
	return Scale{X: float32(origWidth) / s, Y: float32(origHeight) / s}
}

// RescaleBox scales a model-space corner box into image space. X and Y are
// clamped to a minimum of 0; the size is not adjusted and no upper bound is
// applied, so boxes may extend past the image edge.
func RescaleBox(b images.Box, s Scale) images.Box {
	return images.Box{
		X:      math32.Max(0, b.X*s.X),
		Y:      math32.Max(0, b.Y*s.Y),
		Width:  b.Width * s.X,
		Height: b.Height * s.Y,
	}
}

// RescaleCandidate converts a decoded candidate to a corner-form record in
// image space, resolving its class index against labels.
//
// Arguments:
//   - c: The candidate in model-input space.
//   - s: The scale factors.
//   - labels: Class names indexed by class id.
//
// Returns:
//   - Record: The record with a non-nil box.
func RescaleCandidate(c Candidate, s Scale, labels []string) Record {
	box := RescaleBox(c.Center.Box(), s)
	return Record{
		Class:      Label(labels, c.Class),
		Confidence: c.Confidence,
		Box:        &box,
	}
}

// RescaleCandidates applies RescaleCandidate to every candidate.
func RescaleCandidates(candidates []Candidate, s Scale, labels []string) []Record {
	records := make([]Record, len(candidates))
	for i, c := range candidates {
		records[i] = RescaleCandidate(c, s, labels)
	}
	return records
}

// RescaleRecords returns copies of the records with their boxes scaled into
// image space. Records without geometry are passed through unchanged.
func RescaleRecords(records []Record, s Scale) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r
		if r.Box != nil {
			box := RescaleBox(*r.Box, s)
			out[i].Box = &box
		}
	}
	return out
}

// Label returns labels[id], or a generated name when id is out of range or
// has no label.
func Label(labels []string, id int) string {
	if id >= 0 && id < len(labels) && labels[id] != "" {
		return labels[id]
	}
	return fmt.Sprintf("class_%d", id)
}
