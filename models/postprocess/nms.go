// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detbench/images"
)

// Scored is anything NMS can suppress: a box, a score and a class.
type Scored interface {
	Bounds() images.Rect
	Score() float32
	Category() string
}

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"` // Overlap at or above which a box is suppressed.
	ClassAware   bool    `json:"class_aware" yaml:"class_aware"`     // If true, suppress only within same class.
}

// ApplyNMS performs greedy Non-Maximum Suppression.
//
// The input is stable-sorted by descending score. The best remaining box is
// kept and every remaining box whose IoU with it is at least IoUThreshold is
// removed; this repeats until nothing remains. By default suppression ignores
// classes, so a box may be removed by an overlapping box of another class.
//
// Arguments:
//   - detections: The boxes to filter. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - Kept boxes, highest score first. If no detections are provided, returns nil.
func ApplyNMS[T Scored](detections []T, config NMSConfig) []T {
	n := len(detections)
	if n == 0 {
		return nil
	}

	sorted := make([]T, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})

	bounds := make([]images.Rect, n)
	for i := range sorted {
		bounds[i] = sorted[i].Bounds()
	}

	used := make([]bool, n)
	filtered := make([]T, 0, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		filtered = append(filtered, sorted[i])
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && sorted[i].Category() != sorted[j].Category() {
				continue
			}
			if images.CalculateIoU(bounds[i], bounds[j]) >= config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
