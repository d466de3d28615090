// Package modeltest provides scripted backends for tests.
package modeltest

import (
	"context"
	"sync"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/models/preprocess"
)

// Backend is a scripted model.Backend. Its hooks default to success: PreProcess
// runs the real preprocessor at Info.InputSize and Infer returns Output.
//
// @example
// b := modeltest.New(model.ModelNameYOLOv8, model.KindRaw, 64)
// b.InferErr = errors.New("boom")
type Backend struct {
	// Meta is returned by Info.
	Meta model.Info
	// ClassLabels is returned by Labels.
	ClassLabels []string
	// Output is returned by Infer.
	Output *model.Output
	// LoadErr fails Load.
	LoadErr error
	// PreProcessErr fails PreProcess.
	PreProcessErr error
	// InferErr fails Infer.
	InferErr error
	// InferPanic makes Infer panic with this value when non-nil.
	InferPanic any
	// OnInfer runs at the start of Infer.
	OnInfer func(ctx context.Context)
	// DecodeFunc, when set, makes the backend a model.Decoder.
	DecodeFunc func(out *preprocess.Tensor, threshold float32) ([]postprocess.Candidate, error)

	mu     sync.Mutex
	loads  int
	infers int
	closed int
}

// New returns a backend that reports the given identity and returns an empty
// output.
func New(name model.Name, kind model.Kind, inputSize int) *Backend {
	return &Backend{
		Meta:        model.Info{Name: name, DisplayName: string(name), Kind: kind, InputSize: inputSize},
		ClassLabels: []string{"person", "bicycle", "car"},
		Output:      &model.Output{},
	}
}

// Info implements model.Backend.
func (b *Backend) Info() model.Info { return b.Meta }

// Load implements model.Backend.
func (b *Backend) Load(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads++
	return b.LoadErr
}

// PreProcess implements model.Backend.
func (b *Backend) PreProcess(img *images.Image) (*preprocess.Result, error) {
	if b.PreProcessErr != nil {
		return nil, b.PreProcessErr
	}
	return preprocess.NewPreprocessor(preprocess.YOLOConfig(b.Meta.InputSize), nil).Preprocess(img)
}

// Infer implements model.Backend.
func (b *Backend) Infer(ctx context.Context, _ *preprocess.Tensor) (*model.Output, error) {
	b.mu.Lock()
	b.infers++
	b.mu.Unlock()

	if b.OnInfer != nil {
		b.OnInfer(ctx)
	}
	if b.InferPanic != nil {
		panic(b.InferPanic)
	}
	if b.InferErr != nil {
		return nil, b.InferErr
	}
	return b.Output, nil
}

// Labels implements model.Backend.
func (b *Backend) Labels() []string { return b.ClassLabels }

// Close implements model.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

// Loads returns how many times Load was called.
func (b *Backend) Loads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads
}

// Infers returns how many times Infer was called.
func (b *Backend) Infers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.infers
}

// Closed returns how many times Close was called.
func (b *Backend) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// DecodingBackend wraps Backend and implements model.Decoder.
type DecodingBackend struct {
	*Backend
}

// Decode implements model.Decoder.
func (d DecodingBackend) Decode(out *preprocess.Tensor, threshold float32) ([]postprocess.Candidate, error) {
	return d.DecodeFunc(out, threshold)
}

// Grid builds a [1, 4+C, N] output from per-anchor columns of
// cx, cy, w, h followed by C class scores.
func Grid(anchors ...[]float32) *preprocess.Tensor {
	n := len(anchors)
	rows := len(anchors[0])
	data := make([]float32, rows*n)
	for a, col := range anchors {
		for r, v := range col {
			data[r*n+a] = v
		}
	}
	return &preprocess.Tensor{Data: data, Shape: []int{1, rows, n}}
}

// Register adds backends to r under their Info names.
func Register(r *model.Registry, backends ...model.Backend) {
	for _, b := range backends {
		b := b
		r.Register(b.Info(), func() (model.Backend, error) { return b, nil })
	}
}
