// Package inference - ONNX Runtime environment and sessions.
package inference

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/nvr-ai/go-detbench/inference/providers"
	"github.com/nvr-ai/go-detbench/models/preprocess"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	envOnce sync.Once
	envErr  error
)

// InitEnvironment loads the ONNX Runtime shared library and initializes the
// native environment. It runs once per process; later calls return the first
// result.
//
// Arguments:
//   - libPath: The shared library path; empty uses providers.GetSharedLibPath.
//
// Returns:
//   - error: If the library is missing or fails to initialize.
func InitEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath == "" {
			libPath, envErr = providers.GetSharedLibPath()
			if envErr != nil {
				return
			}
		}
		if _, err := os.Stat(libPath); err != nil {
			envErr = errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
			return
		}

		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return envErr
}

// SessionArgs represents the arguments for creating a new session.
type SessionArgs struct {
	// ModelPath is the ONNX model file.
	ModelPath string
	// LibraryPath is the ONNX Runtime shared library; empty uses the platform default.
	LibraryPath string
	// InputSize is the side of the square [1, 3, S, S] input.
	InputSize int
	// Provider selects the execution provider.
	Provider providers.Config
	// Logger receives session lifecycle messages; nil uses the standard logger.
	Logger logrus.FieldLogger
}

// Session is a loaded model with preallocated input and output tensors.
// Run is serialized; a session never executes two inferences at once.
type Session struct {
	mu          sync.Mutex
	session     *ort.AdvancedSession
	input       *ort.Tensor[float32]
	output      *ort.Tensor[float32]
	outputShape []int
	inputName   string
	outputName  string

	runs      int64
	totalTime time.Duration
}

// NewSession creates a new ONNX Runtime session for a single-input,
// single-output detection model.
//
// Order of operations:
//  1. Environment setup: loads the native runtime once per process.
//  2. Model introspection: reads input and output names and the output shape.
//  3. Tensor allocation: fixed-shape buffers for input and output.
//  4. Session options: threading and execution provider.
//  5. Session creation: binds the model to the tensors.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session. The caller must Close it.
//   - error: An error if any step fails.
func NewSession(args SessionArgs) (*Session, error) {
	logger := args.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if args.InputSize <= 0 {
		return nil, errors.Errorf("input size must be positive, got %d", args.InputSize)
	}
	if err := InitEnvironment(args.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(args.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading model %s", args.ModelPath)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Errorf("model %s has %d inputs and %d outputs, want 1 and at least 1",
			args.ModelPath, len(inputs), len(outputs))
	}

	outputShape := make([]int, len(outputs[0].Dimensions))
	for i, d := range outputs[0].Dimensions {
		if d <= 0 {
			return nil, errors.Errorf("model %s output %q has dynamic shape %v",
				args.ModelPath, outputs[0].Name, outputs[0].Dimensions)
		}
		outputShape[i] = int(d)
	}

	size := int64(args.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](outputs[0].Dimensions)
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := providers.NewSessionOptions(args.Provider)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		args.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	logger.WithFields(logrus.Fields{
		"model":    args.ModelPath,
		"input":    inputs[0].Name,
		"output":   outputs[0].Name,
		"shape":    outputShape,
		"provider": args.Provider.Backend,
	}).Info("onnx session ready")

	return &Session{
		session:     session,
		input:       input,
		output:      output,
		outputShape: outputShape,
		inputName:   inputs[0].Name,
		outputName:  outputs[0].Name,
	}, nil
}

// Run copies the input tensor in, runs the model and returns a copy of the
// output. The context is checked before the (non-interruptible) native call.
//
// Arguments:
//   - ctx: Cancels the call before it starts.
//   - in: A [1, 3, S, S] tensor.
//
// Returns:
//   - *preprocess.Tensor: The model output with its static shape.
//   - error: If the input does not fit or the run fails.
func (s *Session) Run(ctx context.Context, in *preprocess.Tensor) (*preprocess.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	dst := s.input.GetData()
	if in == nil || len(in.Data) != len(dst) {
		return nil, errors.Errorf("input tensor has %d values, session expects %d", lenOf(in), len(dst))
	}
	copy(dst, in.Data)

	start := time.Now()
	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "error running ORT session")
	}
	s.runs++
	s.totalTime += time.Since(start)

	data := make([]float32, len(s.output.GetData()))
	copy(data, s.output.GetData())
	return preprocess.FromData(data, s.outputShape...)
}

// OutputShape returns the static model output shape.
func (s *Session) OutputShape() []int {
	return append([]int(nil), s.outputShape...)
}

// Metrics returns the number of runs and their mean duration.
func (s *Session) Metrics() (int64, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == 0 {
		return 0, 0
	}
	return s.runs, s.totalTime / time.Duration(s.runs)
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		if err != nil {
			return errors.Wrap(err, "error destroying ORT session")
		}
	}
	return nil
}

func lenOf(t *preprocess.Tensor) int {
	if t == nil {
		return 0
	}
	return len(t.Data)
}
