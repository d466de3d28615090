// Package postprocess - decoders for raw detection output grids.
package postprocess

import (
	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/preprocess"
	"github.com/pkg/errors"
)

// ErrMalformedOutput is returned when a raw output tensor does not have the
// layout a decoder expects.
var ErrMalformedOutput = errors.New("malformed model output")

// DecodeGrid decodes a channel-major [1, 4+C, N] output grid as produced by
// anchor-free YOLO heads. Rows 0..3 hold cx, cy, w, h and rows 4..4+C hold the
// already activated class scores of each of the N anchors.
//
// Every anchor is scanned (no early exit). A candidate is emitted when the
// anchor's best class score is at least threshold; ties keep the lowest class
// index.
//
// Arguments:
//   - out: The output tensor.
//   - threshold: The minimum class score.
//
// Returns:
//   - []Candidate: Candidates in anchor order, at most N.
//   - error: ErrMalformedOutput when the shape is not [1, 4+C, N] with C ≥ 1.
func DecodeGrid(out *preprocess.Tensor, threshold float32) ([]Candidate, error) {
	if err := out.Check(); err != nil {
		return nil, errors.Wrap(ErrMalformedOutput, err.Error())
	}
	if len(out.Shape) != 3 || out.Shape[0] != 1 || out.Shape[1] < 5 {
		return nil, errors.Wrapf(ErrMalformedOutput, "want [1, 4+C, N], got %v", out.Shape)
	}

	rows, n := out.Shape[1], out.Shape[2]
	data := out.Data
	candidates := make([]Candidate, 0)

	for a := 0; a < n; a++ {
		classID := 0
		maxScore := data[4*n+a]
		for c := 1; c < rows-4; c++ {
			if score := data[(4+c)*n+a]; score > maxScore {
				maxScore = score
				classID = c
			}
		}
		if !(maxScore >= threshold) {
			continue
		}

		candidates = append(candidates, Candidate{
			Class:      classID,
			Confidence: maxScore,
			Center: images.CenterBox{
				CX: data[a],
				CY: data[n+a],
				W:  data[2*n+a],
				H:  data[3*n+a],
			},
		})
	}

	return candidates, nil
}

// DecodeRows decodes a row-major [1, N, 5+C] output where each row holds
// cx, cy, w, h, objectness and C class scores. The candidate confidence is
// objectness × best class score.
//
// Arguments:
//   - out: The output tensor.
//   - threshold: The minimum final confidence.
//
// Returns:
//   - []Candidate: Candidates in row order.
//   - error: ErrMalformedOutput when the shape is not [1, N, 5+C] with C ≥ 1.
func DecodeRows(out *preprocess.Tensor, threshold float32) ([]Candidate, error) {
	if err := out.Check(); err != nil {
		return nil, errors.Wrap(ErrMalformedOutput, err.Error())
	}
	if len(out.Shape) != 3 || out.Shape[0] != 1 || out.Shape[2] < 6 {
		return nil, errors.Wrapf(ErrMalformedOutput, "want [1, N, 5+C], got %v", out.Shape)
	}

	numRows, numCols := out.Shape[1], out.Shape[2]
	candidates := make([]Candidate, 0)

	for i := 0; i < numRows; i++ {
		row := out.Data[i*numCols : (i+1)*numCols]
		objConf := row[4]
		if !(objConf >= threshold) {
			continue
		}

		classID := 0
		maxScore := row[5]
		for j := 6; j < numCols; j++ {
			if row[j] > maxScore {
				maxScore = row[j]
				classID = j - 5
			}
		}

		finalScore := objConf * maxScore
		if !(finalScore >= threshold) {
			continue
		}

		candidates = append(candidates, Candidate{
			Class:      classID,
			Confidence: finalScore,
			Center:     images.CenterBox{CX: row[0], CY: row[1], W: row[2], H: row[3]},
		})
	}

	return candidates, nil
}

// DecodeDetectionOutput decodes an SSD DetectionOutput tensor of shape
// [1, 1, N, 7] whose rows are image id, class id, score and normalized
// left, top, right, bottom corners. Boxes are returned in model-input pixels
// (normalized corners × inputSize). Padding rows with a negative image id are
// skipped; scores are not filtered.
//
// Arguments:
//   - out: The output tensor.
//   - inputSize: The square model input side.
//   - labels: Class names indexed by class id.
//
// Returns:
//   - []Record: Records in row order.
//   - error: ErrMalformedOutput when the shape is not [1, 1, N, 7].
func DecodeDetectionOutput(out *preprocess.Tensor, inputSize int, labels []string) ([]Record, error) {
	if err := out.Check(); err != nil {
		return nil, errors.Wrap(ErrMalformedOutput, err.Error())
	}
	if len(out.Shape) != 4 || out.Shape[0] != 1 || out.Shape[1] != 1 || out.Shape[3] != 7 {
		return nil, errors.Wrapf(ErrMalformedOutput, "want [1, 1, N, 7], got %v", out.Shape)
	}

	s := float32(inputSize)
	records := make([]Record, 0, out.Shape[2])

	for i := 0; i < out.Shape[2]; i++ {
		row := out.Data[i*7 : (i+1)*7]
		if row[0] < 0 {
			continue
		}

		x1, y1, x2, y2 := row[3]*s, row[4]*s, row[5]*s, row[6]*s
		records = append(records, Record{
			Class:      Label(labels, int(row[1])),
			Confidence: row[2],
			Box:        &images.Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1},
		})
	}

	return records, nil
}
