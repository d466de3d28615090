// Package inference - Raw-grid backends over ONNX Runtime sessions.
package inference

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/preprocess"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Model is a model.Backend that runs an ONNX model through a Session and
// returns the raw output grid. Concrete detectors embed it and add decoding.
type Model struct {
	info   model.Info
	labels []string
	args   SessionArgs
	pre    *preprocess.Preprocessor
	logger logrus.FieldLogger

	mu      sync.Mutex
	session *Session
}

// NewModel creates an unloaded ONNX backend.
//
// Arguments:
//   - info: The backend description; Path and InputSize locate the model.
//   - labels: Class names indexed by class id.
//   - args: Session arguments; ModelPath and InputSize are taken from info.
//
// Returns:
//   - *Model: The backend. Load must be called before Infer.
func NewModel(info model.Info, labels []string, args SessionArgs) *Model {
	logger := args.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("backend", info.Name)
	args.ModelPath = info.Path
	args.InputSize = info.InputSize
	args.Logger = logger

	return &Model{
		info:   info,
		labels: labels,
		args:   args,
		pre:    preprocess.NewPreprocessor(preprocess.YOLOConfig(info.InputSize), logger),
		logger: logger,
	}
}

// Info implements model.Backend.
func (m *Model) Info() model.Info { return m.info }

// Labels implements model.Backend.
func (m *Model) Labels() []string { return m.labels }

// Load creates the ONNX session. It is idempotent.
func (m *Model) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return nil
	}
	session, err := NewSession(m.args)
	if err != nil {
		return &model.LoadError{Backend: m.info.Name, Err: err}
	}
	m.session = session
	return nil
}

// PreProcess implements model.Backend.
func (m *Model) PreProcess(img *images.Image) (*preprocess.Result, error) {
	return m.pre.Preprocess(img)
}

// Infer runs the session and returns the raw grid.
func (m *Model) Infer(ctx context.Context, in *preprocess.Tensor) (*model.Output, error) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session == nil {
		return nil, &model.InferenceError{Backend: m.info.Name, Err: errors.New("model not loaded")}
	}
	out, err := session.Run(ctx, in)
	if err != nil {
		return nil, &model.InferenceError{Backend: m.info.Name, Err: err}
	}
	return &model.Output{Grid: out}, nil
}

// Session returns the loaded session, nil before Load.
func (m *Model) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Close releases the session.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	if runs, mean := m.session.Metrics(); runs > 0 {
		m.logger.WithFields(logrus.Fields{"runs": runs, "mean": mean}).Debug("closing onnx session")
	}
	err := m.session.Close()
	m.session = nil
	return err
}
