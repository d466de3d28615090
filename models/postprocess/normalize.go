// Package postprocess - converts backend records into canonical detections.
package postprocess

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/sirupsen/logrus"
)

// MalformedDetectionError describes a record dropped by Normalize.
type MalformedDetectionError struct {
	// Index is the position of the record in the input.
	Index int
	// Class is the record label, possibly empty.
	Class string
	// Reason is a short description of the violation.
	Reason string
}

// Error implements error.
func (e *MalformedDetectionError) Error() string {
	return fmt.Sprintf("malformed detection %d (%q): %s", e.Index, e.Class, e.Reason)
}

// FilterRecords keeps records whose confidence is at least threshold.
func FilterRecords(records []Record, threshold float32) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Confidence >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// Normalize converts image-space records into canonical detections.
//
// Each surviving record gets an ID equal to its position in the output.
// Records with missing or non-finite geometry, negative size, a confidence
// outside [0, 1] or an empty class are dropped; each drop is logged as a
// warning and reported in the returned error slice. A dropped record never
// fails the whole batch.
//
// Arguments:
//   - records: Records in image space.
//   - logger: Receives one warning per dropped record; nil uses the standard logger.
//
// Returns:
//   - []Detection: The valid detections, in input order.
//   - []error: One *MalformedDetectionError per dropped record.
func Normalize(records []Record, logger logrus.FieldLogger) ([]Detection, []error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	detections := make([]Detection, 0, len(records))
	var dropped []error

	for i, r := range records {
		if reason := validate(r); reason != "" {
			err := &MalformedDetectionError{Index: i, Class: r.Class, Reason: reason}
			logger.WithFields(logrus.Fields{
				"index":  i,
				"class":  r.Class,
				"reason": reason,
			}).Warn("dropping malformed detection")
			dropped = append(dropped, err)
			continue
		}

		detections = append(detections, Detection{
			ID:         len(detections),
			Class:      r.Class,
			Confidence: r.Confidence,
			X:          r.Box.X,
			Y:          r.Box.Y,
			Width:      r.Box.Width,
			Height:     r.Box.Height,
		})
	}

	return detections, dropped
}

func validate(r Record) string {
	switch {
	case r.Box == nil:
		return "missing geometry"
	case !r.Box.IsFinite():
		return "non-finite geometry"
	case r.Box.Width < 0 || r.Box.Height < 0:
		return "negative size"
	case math32.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1:
		return "confidence outside [0, 1]"
	case r.Class == "":
		return "missing class"
	}
	return ""
}
