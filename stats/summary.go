// Package stats summarizes detection results and compares backends.
package stats

import (
	"sort"
	"time"

	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/pipeline"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// HistogramBins is the number of equal-width confidence bins over [0, 1].
	HistogramBins = 10
	// DefaultGridSize is the side of the spatial occupancy grid.
	DefaultGridSize = 3
)

// Distribution describes a sample of float values.
type Distribution struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// ClassCount is the number of detections of one class.
type ClassCount struct {
	Class string `json:"class"`
	Count int    `json:"count"`
}

// Summary describes the detections of one backend.
type Summary struct {
	Backend        model.Name    `json:"backend"`
	Count          int           `json:"count"`
	ProcessingTime time.Duration `json:"processing_time"`
	// Classes is ordered by count, then name.
	Classes    []ClassCount `json:"classes"`
	Confidence Distribution `json:"confidence"`
	// Histogram counts confidences in [i/10, (i+1)/10); 1.0 falls in the last bin.
	Histogram [HistogramBins]int `json:"histogram"`
	// Grid counts box centres per cell, indexed [row][col].
	Grid  [][]int      `json:"grid"`
	Areas Distribution `json:"areas"`
}

// Summarize computes the statistics of one result. width and height are the
// original image size; gridSize defaults to DefaultGridSize.
func Summarize(res *pipeline.DetectionResult, width, height, gridSize int) Summary {
	if gridSize <= 0 {
		gridSize = DefaultGridSize
	}
	s := Summary{Grid: make([][]int, gridSize)}
	for i := range s.Grid {
		s.Grid[i] = make([]int, gridSize)
	}
	if res == nil {
		return s
	}

	s.Backend = res.Backend
	s.ProcessingTime = res.ProcessingTime
	s.Count = len(res.Detections)

	classes := map[string]int{}
	confidences := make([]float64, 0, s.Count)
	areas := make([]float64, 0, s.Count)
	cellW := float64(width) / float64(gridSize)
	cellH := float64(height) / float64(gridSize)

	for _, d := range res.Detections {
		classes[d.Class]++
		confidences = append(confidences, float64(d.Confidence))
		areas = append(areas, float64(d.Width)*float64(d.Height))

		bin := int(d.Confidence * HistogramBins)
		s.Histogram[clamp(bin, 0, HistogramBins-1)]++

		if cellW > 0 && cellH > 0 {
			cx, cy := d.Box().Center()
			col := clamp(int(float64(cx)/cellW), 0, gridSize-1)
			row := clamp(int(float64(cy)/cellH), 0, gridSize-1)
			s.Grid[row][col]++
		}
	}

	s.Classes = sortedCounts(classes)
	s.Confidence = describe(confidences)
	s.Areas = describe(areas)
	return s
}

// describe returns the distribution of values; the zero value when empty.
func describe(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return Distribution{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
	}
}

func sortedCounts(m map[string]int) []ClassCount {
	out := make([]ClassCount, 0, len(m))
	for class, n := range m {
		out = append(out, ClassCount{Class: class, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Class < out[j].Class
	})
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// classSet returns the distinct classes of detections.
func classSet(detections []postprocess.Detection) map[string]bool {
	set := make(map[string]bool, len(detections))
	for _, d := range detections {
		set[d.Class] = true
	}
	return set
}
