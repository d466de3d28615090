package pipeline

import (
	"context"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
)

// Detector runs a single backend over a single image.
type Detector interface {
	DetectImage(ctx context.Context, name model.Name, cfg Config, img *images.Image) (*DetectionResult, error)
}

var _ Detector = (*Orchestrator)(nil)

// DetectImage runs one backend over img without creating a run. It waits for
// any in-flight run to release the runtime first.
//
// Arguments:
//   - ctx: Checked before the backend starts and between its steps.
//   - name: The backend to run.
//   - cfg: Thresholds; cfg.Backends is ignored.
//   - img: The image to detect on.
//
// Returns:
//   - *DetectionResult: The normalized detections.
//   - error: A *ConfigError, *model.LoadError, *model.InferenceError or
//     decode failure.
func (o *Orchestrator) DetectImage(ctx context.Context, name model.Name, cfg Config, img *images.Image) (*DetectionResult, error) {
	cfg.Backends = []model.Name{name}
	if err := cfg.Validate(o.registry.Has); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrNoSource
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return o.invoke(ctx, name, img, cfg, func(Phase) error {
		return context.Cause(ctx)
	})
}

// Detect starts a run over src and waits for it to complete. The run's
// event stream is not consumed and is closed on return.
func (o *Orchestrator) Detect(ctx context.Context, cfg Config, src Source) (*Run, map[model.Name]*DetectionResult, error) {
	run, err := o.Start(ctx, cfg, src)
	if err != nil {
		return nil, nil, err
	}
	defer run.Close()
	if err := run.Wait(ctx); err != nil {
		return run, nil, err
	}
	results, err := run.Results()
	return run, results, err
}
