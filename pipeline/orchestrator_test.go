package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/model/modeltest"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/models/preprocess"
	"github.com/nvr-ai/go-detbench/profiler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newImage(t *testing.T, w, h int) *images.Image {
	t.Helper()
	img, err := images.NewImage(w, h, make([]uint8, w*h*3))
	require.NoError(t, err)
	return img
}

func newOrchestrator(t *testing.T, backends ...model.Backend) (*Orchestrator, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	reg := model.NewRegistry(logger)
	modeltest.Register(reg, backends...)
	return NewOrchestrator(reg, logger), hook
}

// threeDetections returns a 64px raw backend whose grid holds three
// well-separated boxes scoring 0.9, 0.8 and 0.7.
func threeDetections(name model.Name) *modeltest.Backend {
	b := modeltest.New(name, model.KindRaw, 64)
	b.Output = &model.Output{Grid: modeltest.Grid(
		[]float32{10, 10, 8, 8, 0.9, 0, 0},
		[]float32{30, 30, 8, 8, 0, 0.8, 0},
		[]float32{50, 50, 8, 8, 0, 0, 0.7},
	)}
	return b
}

func drain(t *testing.T, run *Run) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-run.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("event stream not closed")
			return nil
		}
	}
}

func config(backends ...model.Name) Config {
	cfg := DefaultConfig()
	cfg.Backends = backends
	return cfg
}

func TestFaultIsolation(t *testing.T) {
	a := modeltest.New("a", model.KindRaw, 64)
	a.InferErr = errors.New("runtime exploded")
	b := threeDetections("b")
	o, _ := newOrchestrator(t, a, b)

	run, err := o.Start(context.Background(), config("a", "b"), newImage(t, 128, 64))
	require.NoError(t, err)
	drain(t, run)

	results, err := run.Results()
	require.NoError(t, err)
	assert.NotContains(t, results, model.Name("a"))
	require.Contains(t, results, model.Name("b"))

	res := results["b"]
	require.Len(t, res.Detections, 3)
	assert.Equal(t, "person", res.Detections[0].Class)
	assert.Equal(t, 0, res.Detections[0].ID)
	assert.InDelta(t, 0.9, res.Detections[0].Confidence, 1e-6)
	// 128x64 image over a 64px input: x doubles, y is unchanged.
	assert.InDelta(t, 12, res.Detections[0].X, 1e-4)
	assert.InDelta(t, 6, res.Detections[0].Y, 1e-4)
	assert.InDelta(t, 16, res.Detections[0].Width, 1e-4)
	assert.InDelta(t, 8, res.Detections[0].Height, 1e-4)
	assert.Equal(t, []string{"person", "bicycle", "car"},
		[]string{res.Detections[0].Class, res.Detections[1].Class, res.Detections[2].Class})

	snap := run.Snapshot()
	assert.Equal(t, RunCompleted, snap.State)
	sa, _ := snap.Backend("a")
	assert.Equal(t, StatusError, sa.Status)
	assert.Equal(t, 0, sa.Progress)
	assert.Contains(t, sa.Error, "runtime exploded")
	sb, _ := snap.Backend("b")
	assert.Equal(t, StatusCompleted, sb.Status)
	assert.Equal(t, 100, sb.Progress)
	assert.Equal(t, 3, sb.Detections)
	assert.Equal(t, 50.0, snap.Overall)
}

func TestEventOrder(t *testing.T) {
	o, _ := newOrchestrator(t, threeDetections("a"), threeDetections("b"))

	run, err := o.Start(context.Background(), config("a", "b"), newImage(t, 64, 64))
	require.NoError(t, err)
	events := drain(t, run)

	type step struct {
		backend  model.Name
		kind     EventKind
		phase    Phase
		status   Status
		progress int
	}
	var got []step
	for _, ev := range events {
		assert.Equal(t, run.ID(), ev.Run)
		got = append(got, step{ev.Backend, ev.Kind, ev.Phase, ev.Status, ev.Progress})
	}

	var want []step
	for _, name := range []model.Name{"a", "b"} {
		want = append(want,
			step{name, EventStatus, "", StatusProcessing, 0},
			step{name, EventProgress, PhaseModelReady, "", 20},
			step{name, EventProgress, PhasePreprocessing, "", 40},
			step{name, EventProgress, PhaseInference, "", 70},
			step{name, EventProgress, PhaseComplete, "", 100},
			step{name, EventStatus, "", StatusCompleted, 100},
		)
	}
	assert.Equal(t, want, got)

	// Overall progress never decreases in a run without failures.
	last := 0.0
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Overall, last)
		last = ev.Overall
	}
	assert.Equal(t, 100.0, last)
	assert.Len(t, events[len(events)-1].Detections, 3)
}

func TestPanicIsolated(t *testing.T) {
	a := modeltest.New("a", model.KindRaw, 64)
	a.InferPanic = "index out of range"
	o, _ := newOrchestrator(t, a, threeDetections("b"))

	run, err := o.Start(context.Background(), config("a", "b"), newImage(t, 64, 64))
	require.NoError(t, err)
	events := drain(t, run)

	var failure *Event
	for i := range events {
		if events[i].Backend == "a" && events[i].Status == StatusError {
			failure = &events[i]
		}
	}
	require.NotNil(t, failure)
	assert.Contains(t, failure.Err.Error(), "panic: index out of range")
	assert.Equal(t, 0, failure.Progress)

	sb, _ := run.Snapshot().Backend("b")
	assert.Equal(t, StatusCompleted, sb.Status)
}

func TestLoadFailure(t *testing.T) {
	a := modeltest.New("a", model.KindRaw, 64)
	a.LoadErr = errors.New("model file missing")
	o, _ := newOrchestrator(t, a)

	run, err := o.Start(context.Background(), config("a"), newImage(t, 64, 64))
	require.NoError(t, err)
	events := drain(t, run)

	last := events[len(events)-1]
	assert.Equal(t, StatusError, last.Status)
	var le *model.LoadError
	require.True(t, errors.As(last.Err, &le))
	assert.Equal(t, model.Name("a"), le.Backend)
	assert.Equal(t, 0, a.Infers())
}

func TestMalformedOutput(t *testing.T) {
	a := modeltest.New("a", model.KindRaw, 64)
	a.Output = &model.Output{}
	b := modeltest.New("b", model.KindRaw, 64)
	b.Output = &model.Output{Grid: modeltest.Grid([]float32{1, 2, 3})}
	o, _ := newOrchestrator(t, a, b)

	run, err := o.Start(context.Background(), config("a", "b"), newImage(t, 64, 64))
	require.NoError(t, err)
	events := drain(t, run)

	failures := 0
	for _, ev := range events {
		if ev.Status == StatusError {
			failures++
			assert.True(t, errors.Is(ev.Err, postprocess.ErrMalformedOutput), ev.Err)
		}
	}
	assert.Equal(t, 2, failures)
}

func TestDirectBackend(t *testing.T) {
	d := modeltest.New("ssd", model.KindDirect, 100)
	d.Output = &model.Output{Records: []postprocess.Record{
		{Class: "dog", Confidence: 0.9, Box: &images.Box{X: 10, Y: 10, Width: 20, Height: 30}},
		{Class: "cat", Confidence: 0.2, Box: &images.Box{X: 0, Y: 0, Width: 5, Height: 5}},
		{Class: "kite", Confidence: 0.8},
	}}
	o, hook := newOrchestrator(t, d)

	run, err := o.Start(context.Background(), config("ssd"), newImage(t, 200, 100))
	require.NoError(t, err)
	drain(t, run)

	results, err := run.Results()
	require.NoError(t, err)
	res := results["ssd"]
	require.Len(t, res.Detections, 1)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, postprocess.Detection{ID: 0, Class: "dog", Confidence: 0.9, X: 20, Y: 10, Width: 40, Height: 30}, res.Detections[0])

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["class"] == "kite" {
			warned = true
		}
	}
	assert.True(t, warned, "dropped detection is logged")
}

func TestCustomDecoder(t *testing.T) {
	b := modeltest.New("v5", model.KindRaw, 64)
	b.Output = &model.Output{Grid: modeltest.Grid([]float32{0})}
	var threshold float32
	b.DecodeFunc = func(_ *preprocess.Tensor, t float32) ([]postprocess.Candidate, error) {
		threshold = t
		return []postprocess.Candidate{
			{Class: 2, Confidence: 0.6, Center: images.CenterBox{CX: 32, CY: 32, W: 10, H: 10}},
			{Class: 2, Confidence: 0.7, Center: images.CenterBox{CX: 33, CY: 32, W: 10, H: 10}},
		}, nil
	}
	o, _ := newOrchestrator(t, modeltest.DecodingBackend{Backend: b})

	cfg := config("v5")
	cfg.ConfidenceThreshold = 0.55
	res, err := o.DetectImage(context.Background(), "v5", cfg, newImage(t, 64, 64))
	require.NoError(t, err)
	assert.InDelta(t, 0.55, threshold, 1e-6)
	require.Len(t, res.Detections, 1, "overlapping boxes are suppressed")
	assert.Equal(t, "car", res.Detections[0].Class)
	assert.InDelta(t, 0.7, res.Detections[0].Confidence, 1e-6)
}

func TestSourceFailure(t *testing.T) {
	a := threeDetections("a")
	o, _ := newOrchestrator(t, a, threeDetections("b"))

	f := images.NewFuture()
	f.Reject(errors.New("corrupt jpeg"))
	run, err := o.Start(context.Background(), config("a", "b"), f)
	require.NoError(t, err)
	drain(t, run)

	results, err := run.Results()
	require.NoError(t, err)
	assert.Empty(t, results)
	for _, b := range run.Snapshot().Backends {
		assert.Equal(t, StatusError, b.Status)
		assert.Contains(t, b.Error, "corrupt jpeg")
	}
	assert.Equal(t, 0, a.Loads())
	assert.Equal(t, RunCompleted, run.Snapshot().State)
}

func TestWaitsForSource(t *testing.T) {
	a := threeDetections("a")
	o, _ := newOrchestrator(t, a)

	f := images.NewFuture()
	run, err := o.Start(context.Background(), config("a"), f)
	require.NoError(t, err)

	_, err = run.Results()
	assert.True(t, errors.Is(err, ErrRunNotCompleted))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, a.Infers(), "no inference before the image is ready")

	f.Resolve(newImage(t, 64, 64))
	drain(t, run)
	require.NoError(t, run.Wait(context.Background()))

	results, err := run.Results()
	require.NoError(t, err)
	assert.Len(t, results["a"].Detections, 3)
}

func TestCancellationAtBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := threeDetections("a")
	a.OnInfer = func(context.Context) { cancel() }
	b := threeDetections("b")
	o, _ := newOrchestrator(t, a, b)

	run, err := o.Start(ctx, config("a", "b"), newImage(t, 64, 64))
	require.NoError(t, err)
	events := drain(t, run)

	assert.Equal(t, 1, a.Infers(), "in-flight inference is not interrupted")
	assert.Equal(t, 0, b.Loads())
	for _, name := range []model.Name{"a", "b"} {
		s, _ := run.Snapshot().Backend(name)
		assert.Equal(t, StatusError, s.Status, name)
	}
	last := events[len(events)-1]
	assert.Equal(t, model.Name("b"), last.Backend)
	assert.True(t, errors.Is(last.Err, context.Canceled))
	assert.Equal(t, RunCompleted, run.Snapshot().State)
}

func TestIdleConsumerDoesNotBlock(t *testing.T) {
	o, _ := newOrchestrator(t, threeDetections("a"), threeDetections("b"))

	run, err := o.Start(context.Background(), config("a", "b"), newImage(t, 64, 64))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run.Wait(ctx))

	// Every event is still delivered after the run finished.
	assert.Len(t, drain(t, run), 12)
}

func TestNewRunDiscardsPrevious(t *testing.T) {
	a := threeDetections("a")
	o, _ := newOrchestrator(t, a)

	first, err := o.Start(context.Background(), config("a"), images.NewFuture())
	require.NoError(t, err)
	second, err := o.Start(context.Background(), config("a"), newImage(t, 64, 64))
	require.NoError(t, err)
	assert.Same(t, second, o.Current())

	drain(t, first)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, first.Wait(ctx))
	s, _ := first.Snapshot().Backend("a")
	assert.Equal(t, StatusError, s.Status)

	drain(t, second)
	results, err := second.Results()
	require.NoError(t, err)
	assert.Len(t, results["a"].Detections, 3)
	assert.NotEqual(t, first.ID(), second.ID())
}

func TestConfigErrors(t *testing.T) {
	o, _ := newOrchestrator(t, threeDetections("a"))
	img := newImage(t, 8, 8)

	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"empty", config(), "backends"},
		{"unknown", config("a", "nope"), "backends"},
		{"duplicate", config("a", "a"), "backends"},
		{"confidence", Config{ConfidenceThreshold: 1.5, IoUThreshold: 0.5, Backends: []model.Name{"a"}}, "confidence_threshold"},
		{"iou", Config{ConfidenceThreshold: 0.5, IoUThreshold: -0.1, Backends: []model.Name{"a"}}, "iou_threshold"},
		{"nan", Config{ConfidenceThreshold: float32(math.NaN()), IoUThreshold: 0.5, Backends: []model.Name{"a"}}, "confidence_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := o.Start(context.Background(), tt.cfg, img)
			assert.Nil(t, run)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	_, err := o.Start(context.Background(), config("a"), nil)
	assert.True(t, errors.Is(err, ErrNoSource))
	assert.Nil(t, o.Current())
}

func TestRunLogAndTimings(t *testing.T) {
	a := modeltest.New("a", model.KindRaw, 64)
	a.InferErr = errors.New("boom")
	o, _ := newOrchestrator(t, a, threeDetections("b"))

	_, results, err := o.Detect(context.Background(), config("a", "b"), newImage(t, 64, 64))
	require.NoError(t, err)

	res := results["b"]
	assert.Contains(t, res.Timings, profiler.StagePostprocess)
	assert.Positive(t, res.ProcessingTime)
	assert.False(t, res.CompletedAt.IsZero())

	run := o.Current()
	var levels []LogLevel
	for _, e := range run.Snapshot().Log {
		levels = append(levels, e.Level)
	}
	assert.Contains(t, levels, LogError)
	assert.Equal(t, LogError, levels[len(levels)-1], "summary reports the failure")

	names := map[string]bool{}
	for _, s := range o.Profiler().Stats() {
		names[s.Name] = true
	}
	assert.True(t, names["b/inference"])
	assert.True(t, names["a/load"])
}

func TestDetectImageErrors(t *testing.T) {
	o, _ := newOrchestrator(t, threeDetections("a"))

	_, err := o.DetectImage(context.Background(), "missing", DefaultConfig(), newImage(t, 8, 8))
	var ce *ConfigError
	assert.True(t, errors.As(err, &ce))

	_, err = o.DetectImage(context.Background(), "a", DefaultConfig(), nil)
	assert.True(t, errors.Is(err, ErrNoSource))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.DetectImage(ctx, "a", DefaultConfig(), newImage(t, 8, 8))
	assert.True(t, errors.Is(err, context.Canceled))
}
