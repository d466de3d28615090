// Package providers - Execution provider selection for ONNX Runtime sessions.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers.
type ProviderBackend string

const (
	// CPUProviderBackend uses the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)

// Config selects an execution provider and the session threading.
//
// The zero value runs on CPU with ONNX Runtime's default thread counts.
type Config struct {
	// Backend specifies the backend to use. Empty means CPU.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// CUDA options, used when Backend is cuda.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// CoreML options, used when Backend is coreml.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
	// OpenVINO options, used when Backend is openvino.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
	// IntraOpThreads parallelizes work inside a node; 0 lets the runtime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes independent nodes; 0 lets the runtime decide.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// Validate checks that the backend is known.
func (c Config) Validate() error {
	switch c.Backend {
	case "", CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend:
		return nil
	default:
		return errors.Errorf("unsupported execution provider %q", c.Backend)
	}
}

// NewSessionOptions creates session options with the configured execution
// provider appended. The caller must Destroy the options.
//
// Arguments:
//   - c: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: The options.
//   - error: If the provider is unknown or cannot be enabled.
func NewSessionOptions(c Config) (*ort.SessionOptions, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	options.SetIntraOpNumThreads(c.IntraOpThreads)
	options.SetInterOpNumThreads(c.InterOpThreads)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	switch c.Backend {
	case CUDAProviderBackend:
		err = c.CUDA.apply(options)
	case CoreMLProviderBackend:
		err = c.CoreML.apply(options)
	case OpenVINOProviderBackend:
		err = c.OpenVINO.apply(options)
	}
	if err != nil {
		options.Destroy()
		return nil, err
	}

	return options, nil
}
