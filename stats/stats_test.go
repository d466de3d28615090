package stats

import (
	"testing"
	"time"

	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(class string, conf, x, y, w, h float32) postprocess.Detection {
	return postprocess.Detection{Class: class, Confidence: conf, X: x, Y: y, Width: w, Height: h}
}

func TestSummarize(t *testing.T) {
	res := &pipeline.DetectionResult{
		Backend:        "yolov8",
		ProcessingTime: 40 * time.Millisecond,
		Detections: []postprocess.Detection{
			det("person", 0.9, 0, 0, 10, 10),
			det("person", 0.5, 290, 290, 10, 10),
			det("car", 1.0, 140, 140, 20, 20),
			det("dog", 0.6, 0, 290, 10, 20),
		},
	}

	s := Summarize(res, 300, 300, 0)
	assert.Equal(t, model.Name("yolov8"), s.Backend)
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, []ClassCount{{"person", 2}, {"car", 1}, {"dog", 1}}, s.Classes)

	assert.InDelta(t, 0.75, s.Confidence.Mean, 1e-6)
	assert.InDelta(t, 0.5, s.Confidence.Min, 1e-6)
	assert.InDelta(t, 1.0, s.Confidence.Max, 1e-6)
	assert.InDelta(t, 0.6, s.Confidence.Median, 1e-6)
	assert.Greater(t, s.Confidence.StdDev, 0.0)

	assert.Equal(t, [HistogramBins]int{5: 1, 6: 1, 9: 2}, s.Histogram)

	require.Len(t, s.Grid, DefaultGridSize)
	assert.Equal(t, 1, s.Grid[0][0])
	assert.Equal(t, 1, s.Grid[1][1])
	assert.Equal(t, 1, s.Grid[2][2])
	assert.Equal(t, 1, s.Grid[2][0])

	assert.InDelta(t, 100, s.Areas.Min, 1e-6)
	assert.InDelta(t, 400, s.Areas.Max, 1e-6)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(&pipeline.DetectionResult{Backend: "ssd"}, 100, 100, 4)
	assert.Zero(t, s.Count)
	assert.Equal(t, Distribution{}, s.Confidence)
	assert.Len(t, s.Grid, 4)

	single := Summarize(&pipeline.DetectionResult{Detections: []postprocess.Detection{det("a", 0.4, 0, 0, 1, 1)}}, 0, 0, 0)
	assert.Zero(t, single.Confidence.StdDev)
	assert.InDelta(t, 0.4, single.Confidence.Median, 1e-6)
}

func TestCompare(t *testing.T) {
	results := map[model.Name]*pipeline.DetectionResult{
		"yolov8": {
			Backend:        "yolov8",
			ProcessingTime: 50 * time.Millisecond,
			Detections: []postprocess.Detection{
				det("person", 0.9, 10, 10, 100, 100),
				det("car", 0.8, 300, 300, 50, 50),
				det("dog", 0.7, 500, 0, 20, 20),
			},
		},
		"coco-ssd": {
			Backend:        "coco-ssd",
			ProcessingTime: 100 * time.Millisecond,
			Detections: []postprocess.Detection{
				det("person", 0.6, 12, 12, 100, 100),
				det("car", 0.6, 0, 0, 10, 10),
			},
		},
	}
	order := []model.Name{"yolov8", "coco-ssd", "missing"}

	c := Compare(results, order, 640, 480)
	require.Len(t, c.Summaries, 2)
	assert.Equal(t, model.Name("yolov8"), c.Fastest)
	assert.Equal(t, model.Name("coco-ssd"), c.Slowest)
	assert.InDelta(t, 100, c.SpeedupPercent, 1e-9)
	assert.Equal(t, model.Name("yolov8"), c.MostDetections)
	assert.Equal(t, model.Name("coco-ssd"), c.LeastDetections)
	assert.Equal(t, model.Name("yolov8"), c.HighestConfidence)

	require.Len(t, c.AllFound, 2)
	assert.Equal(t, "car", c.AllFound[0].Class)
	assert.Equal(t, "person", c.AllFound[1].Class)
	require.Len(t, c.Partial, 1)
	assert.Equal(t, Agreement{Class: "dog", Found: []model.Name{"yolov8"}, Missed: []model.Name{"coco-ssd"}}, c.Partial[0])
	assert.InDelta(t, 2.0/3.0, c.AgreementRate, 1e-9)

	require.Len(t, c.Pairs, 1)
	assert.Equal(t, 1, c.Pairs[0].Matched, "only the overlapping person boxes match")
	assert.InDelta(t, 1.0/3.0, c.Pairs[0].Rate, 1e-9)
}

func TestCompareEmpty(t *testing.T) {
	c := Compare(nil, []model.Name{"a"}, 10, 10)
	assert.Empty(t, c.Summaries)
	assert.Equal(t, model.Name(""), c.Fastest)

	p := matchPair(&pipeline.DetectionResult{Backend: "a"}, &pipeline.DetectionResult{Backend: "b"})
	assert.Equal(t, 1.0, p.Rate)
}
