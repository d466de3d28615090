package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/profiler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Source yields the image a run operates on. Wait blocks until the image is
// ready. Both *images.Image and *images.Future are sources.
type Source interface {
	Wait(ctx context.Context) (*images.Image, error)
}

// Orchestrator runs backends one at a time. Only one inference is ever in
// flight: runs and single-image detections share one lock.
type Orchestrator struct {
	registry *model.Registry
	profiler *profiler.Profiler
	logger   logrus.FieldLogger

	// mu serializes inference.
	mu sync.Mutex

	currentMu sync.Mutex
	current   *Run
}

// NewOrchestrator returns an orchestrator drawing backends from registry.
func NewOrchestrator(registry *model.Registry, logger logrus.FieldLogger) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		registry: registry,
		profiler: profiler.New(0, logger),
		logger:   logger,
	}
}

// Registry returns the backend registry.
func (o *Orchestrator) Registry() *model.Registry { return o.registry }

// Profiler returns the stage timing tracker shared by every run.
func (o *Orchestrator) Profiler() *profiler.Profiler { return o.profiler }

// Current returns the most recently started run, or nil.
func (o *Orchestrator) Current() *Run {
	o.currentMu.Lock()
	defer o.currentMu.Unlock()
	return o.current
}

// Start validates cfg and begins a run in the background. The previous run,
// if any, is discarded.
//
// Arguments:
//   - ctx: Cancelling it fails every backend that has not started yet.
//   - cfg: The run configuration.
//   - src: The image to detect on.
//
// Returns:
//   - *Run: The run handle.
//   - error: A *ConfigError when cfg is invalid, or ErrNoSource.
func (o *Orchestrator) Start(ctx context.Context, cfg Config, src Source) (*Run, error) {
	if err := cfg.Validate(o.registry.Has); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, ErrNoSource
	}
	cfg.Backends = append([]model.Name(nil), cfg.Backends...)

	runCtx, cancel := context.WithCancelCause(ctx)
	run := newRun(cfg, cancel, o.logger)

	o.currentMu.Lock()
	if o.current != nil {
		o.current.Close()
	}
	o.current = run
	o.currentMu.Unlock()

	go o.execute(runCtx, run, src)
	return run, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, src Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer run.cancel(nil)
	defer run.finish()

	run.begin()
	run.addLog(LogInfo, "", "Processing with %d backend(s)", len(run.config.Backends))

	img, err := src.Wait(ctx)
	if err == nil && img == nil {
		err = errors.New("source returned no image")
	}
	if err != nil {
		err = errors.Wrap(err, "image not ready")
		run.addLog(LogError, "", "Failed to load image: %v", err)
		for _, name := range run.config.Backends {
			run.fail(name, err)
		}
		return
	}
	run.addLog(LogSuccess, "", "Image loaded (%dx%d)", img.Width, img.Height)

	failed := 0
	for _, name := range run.config.Backends {
		if cause := context.Cause(ctx); cause != nil {
			run.addLog(LogError, name, "%s cancelled: %v", name, cause)
			run.fail(name, cause)
			failed++
			continue
		}

		run.addLog(LogInfo, name, "Starting %s", name)
		run.setStatus(name, StatusProcessing)

		res, err := o.invoke(ctx, name, img, run.config, func(p Phase) error {
			if cause := context.Cause(ctx); cause != nil {
				return cause
			}
			run.advance(name, p)
			return nil
		})
		if err != nil {
			run.addLog(LogError, name, "%s failed: %v", name, err)
			run.fail(name, err)
			failed++
			continue
		}

		run.addLog(LogSuccess, name, "%s completed in %s", name, res.ProcessingTime.Truncate(time.Millisecond))
		run.addLog(LogSuccess, name, "Detected %d objects", len(res.Detections))
		run.complete(name, res)
	}

	if failed == 0 {
		run.addLog(LogSuccess, "", "All backends completed successfully")
	} else {
		run.addLog(LogError, "", "%d of %d backends failed", failed, len(run.config.Backends))
	}
}

// invoke runs one backend over img. report is called at each milestone;
// a non-nil return aborts the backend. Panics are returned as errors.
func (o *Orchestrator) invoke(ctx context.Context, name model.Name, img *images.Image, cfg Config, report func(Phase) error) (res *DetectionResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()

	start := time.Now()
	timings := profiler.Timings{}
	log := o.logger.WithField("backend", name)
	stage := func(s profiler.Stage) func() {
		stop := o.profiler.StartOperation(fmt.Sprintf("%s/%s", name, s))
		return func() { timings[s] = stop() }
	}

	done := stage(profiler.StageLoad)
	backend, err := o.registry.Acquire(ctx, name)
	done()
	if err != nil {
		return nil, err
	}
	if err := report(PhaseModelReady); err != nil {
		return nil, err
	}

	if err := report(PhasePreprocessing); err != nil {
		return nil, err
	}
	done = stage(profiler.StagePreprocess)
	pre, err := backend.PreProcess(img)
	done()
	if err != nil {
		return nil, errors.Wrapf(err, "preprocess %s", name)
	}

	if err := report(PhaseInference); err != nil {
		return nil, err
	}
	done = stage(profiler.StageInference)
	out, err := backend.Infer(ctx, pre.Tensor)
	done()
	if err != nil {
		var ie *model.InferenceError
		if errors.As(err, &ie) {
			return nil, err
		}
		return nil, &model.InferenceError{Backend: name, Err: err}
	}

	done = stage(profiler.StagePostprocess)
	records, err := postprocessOutput(backend, out, pre.OriginalWidth, pre.OriginalHeight, pre.InputSize, cfg)
	if err != nil {
		done()
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	detections, dropped := postprocess.Normalize(records, log)
	done()

	if err := report(PhaseComplete); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"detections": len(detections),
		"dropped":    len(dropped),
	}).Debug("backend finished")

	return &DetectionResult{
		Backend:        name,
		Detections:     detections,
		ProcessingTime: time.Since(start),
		CompletedAt:    time.Now(),
		Timings:        timings,
		Dropped:        len(dropped),
	}, nil
}

// postprocessOutput turns a backend output into records in original image
// pixels. Raw grids are decoded, filtered by confidence and suppressed; direct
// records are filtered and rescaled only.
func postprocessOutput(backend model.Backend, out *model.Output, origW, origH, inputSize int, cfg Config) ([]postprocess.Record, error) {
	if out == nil {
		return nil, errors.Wrap(postprocess.ErrMalformedOutput, "no output")
	}
	scale := postprocess.NewScale(origW, origH, inputSize)

	switch backend.Info().Kind {
	case model.KindDirect:
		records := postprocess.FilterRecords(out.Records, cfg.ConfidenceThreshold)
		return postprocess.RescaleRecords(records, scale), nil
	default:
		if out.Grid == nil {
			return nil, errors.Wrap(postprocess.ErrMalformedOutput, "raw backend returned no grid")
		}
		var (
			candidates []postprocess.Candidate
			err        error
		)
		if d, ok := backend.(model.Decoder); ok {
			candidates, err = d.Decode(out.Grid, cfg.ConfidenceThreshold)
		} else {
			candidates, err = postprocess.DecodeGrid(out.Grid, cfg.ConfidenceThreshold)
		}
		if err != nil {
			return nil, err
		}
		candidates = postprocess.ApplyNMS(candidates, postprocess.NMSConfig{
			IoUThreshold: cfg.IoUThreshold,
			ClassAware:   cfg.ClassAwareNMS,
		})
		return postprocess.RescaleCandidates(candidates, scale, backend.Labels()), nil
	}
}
