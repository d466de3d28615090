// Package ssd - SSD detectors over the OpenCV DNN module.
package ssd

import (
	"context"
	"os"
	"sync"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/models/preprocess"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultInputSize is the input side of the stock SSD MobileNet graphs.
const DefaultInputSize = 300

// Config locates an SSD model.
type Config struct {
	// Name is the backend name, coco-ssd or mobilenet-ssd.
	Name model.Name
	// DisplayName is shown in reports.
	DisplayName string
	// ModelPath is the frozen graph (.pb), Caffe model or ONNX file.
	ModelPath string
	// ConfigPath is the optional .pbtxt / .prototxt.
	ConfigPath string
	// InputSize is the square input side; 0 uses DefaultInputSize.
	InputSize int
	// Labels are class names indexed by the model's class ids.
	Labels []string
	// Logger; nil uses the standard logger.
	Logger logrus.FieldLogger
}

// SSD is a direct backend: the network ends in a DetectionOutput layer that
// already returns boxes, scores and classes.
type SSD struct {
	cfg    Config
	pre    *preprocess.Preprocessor
	logger logrus.FieldLogger

	mu     sync.Mutex
	net    gocv.Net
	loaded bool
}

// NewModel creates an unloaded SSD backend.
func NewModel(cfg Config) *SSD {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("backend", cfg.Name)

	return &SSD{
		cfg:    cfg,
		pre:    preprocess.NewPreprocessor(preprocess.SSDConfig(cfg.InputSize), logger),
		logger: logger,
	}
}

// Info implements model.Backend.
func (s *SSD) Info() model.Info {
	return model.Info{
		Name:        s.cfg.Name,
		DisplayName: s.cfg.DisplayName,
		Family:      model.ModelFamilyCOCO,
		Framework:   "opencv-dnn",
		Kind:        model.KindDirect,
		Path:        s.cfg.ModelPath,
		InputSize:   s.cfg.InputSize,
	}
}

// Labels implements model.Backend.
func (s *SSD) Labels() []string { return s.cfg.Labels }

// Load reads the network. It is idempotent.
func (s *SSD) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}

	fileInfo, err := os.Stat(s.cfg.ModelPath)
	if err != nil {
		return &model.LoadError{Backend: s.cfg.Name, Err: errors.Wrap(err, "model file")}
	}
	if fileInfo.Size() == 0 {
		return &model.LoadError{Backend: s.cfg.Name, Err: errors.Errorf("model file is empty: %s", s.cfg.ModelPath)}
	}
	if s.cfg.ConfigPath != "" {
		if _, err := os.Stat(s.cfg.ConfigPath); err != nil {
			return &model.LoadError{Backend: s.cfg.Name, Err: errors.Wrap(err, "config file")}
		}
	}

	net := gocv.ReadNet(s.cfg.ModelPath, s.cfg.ConfigPath)
	if net.Empty() {
		net.Close()
		return &model.LoadError{
			Backend: s.cfg.Name,
			Err:     errors.Errorf("failed to load %s (model may be incompatible with OpenCV DNN)", s.cfg.ModelPath),
		}
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	s.net = net
	s.loaded = true
	s.logger.WithFields(logrus.Fields{
		"model": s.cfg.ModelPath,
		"size":  s.cfg.InputSize,
	}).Info("ssd network ready")
	return nil
}

// PreProcess stretches to S×S and normalizes to [-1, 1].
func (s *SSD) PreProcess(img *images.Image) (*preprocess.Result, error) {
	return s.pre.Preprocess(img)
}

// Infer feeds the tensor as a 4D blob and decodes the DetectionOutput rows
// into model-space records.
func (s *SSD) Infer(ctx context.Context, in *preprocess.Tensor) (*model.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, &model.InferenceError{Backend: s.cfg.Name, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, &model.InferenceError{Backend: s.cfg.Name, Err: errors.New("model not loaded")}
	}
	if err := in.Check(); err != nil {
		return nil, &model.InferenceError{Backend: s.cfg.Name, Err: err}
	}

	blob := gocv.NewMatWithSizes([]int(in.Shape), gocv.MatTypeCV32F)
	defer blob.Close()
	dst, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, &model.InferenceError{Backend: s.cfg.Name, Err: errors.Wrap(err, "blob data")}
	}
	copy(dst, in.Data)

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()
	if output.Empty() {
		return nil, &model.InferenceError{Backend: s.cfg.Name, Err: errors.New("inference returned empty output")}
	}

	total := output.Total()
	if total%7 != 0 {
		return nil, &model.InferenceError{
			Backend: s.cfg.Name,
			Err:     errors.Wrapf(postprocess.ErrMalformedOutput, "%d values is not a multiple of 7", total),
		}
	}
	rows := output.Reshape(1, total/7)
	defer rows.Close()

	data := make([]float32, 0, total)
	for i := 0; i < rows.Rows(); i++ {
		for j := 0; j < 7; j++ {
			data = append(data, rows.GetFloatAt(i, j))
		}
	}
	grid, err := preprocess.FromData(data, 1, 1, total/7, 7)
	if err != nil {
		return nil, &model.InferenceError{Backend: s.cfg.Name, Err: err}
	}

	records, err := postprocess.DecodeDetectionOutput(grid, s.cfg.InputSize, s.cfg.Labels)
	if err != nil {
		return nil, &model.InferenceError{Backend: s.cfg.Name, Err: err}
	}
	return &model.Output{Records: records}, nil
}

// Close releases the network.
func (s *SSD) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil
	}
	s.loaded = false
	return s.net.Close()
}
