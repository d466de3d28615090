// Package models - registry for models.
package models

import (
	"path/filepath"

	"github.com/nvr-ai/go-detbench/inference"
	"github.com/nvr-ai/go-detbench/inference/providers"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/ssd"
	"github.com/nvr-ai/go-detbench/models/yolov5"
	"github.com/nvr-ai/go-detbench/models/yolov8"
	"github.com/sirupsen/logrus"
)

// Config locates the model files of every backend.
type Config struct {
	// Dir is prepended to relative paths.
	Dir string `json:"dir" yaml:"dir"`
	// YOLOv8 is the YOLOv8 ONNX model.
	YOLOv8 string `json:"yolov8" yaml:"yolov8"`
	// YOLOv5 is the YOLOv5 ONNX model.
	YOLOv5 string `json:"yolov5" yaml:"yolov5"`
	// COCOSSD is the COCO-SSD frozen graph.
	COCOSSD string `json:"coco_ssd" yaml:"coco_ssd"`
	// COCOSSDConfig is the COCO-SSD graph text.
	COCOSSDConfig string `json:"coco_ssd_config" yaml:"coco_ssd_config"`
	// MobileNetSSD is the MobileNet-SSD Caffe model.
	MobileNetSSD string `json:"mobilenet_ssd" yaml:"mobilenet_ssd"`
	// MobileNetSSDConfig is the MobileNet-SSD prototxt.
	MobileNetSSDConfig string `json:"mobilenet_ssd_config" yaml:"mobilenet_ssd_config"`
	// LibraryPath is the ONNX Runtime shared library; empty uses the platform default.
	LibraryPath string `json:"onnxruntime_library" yaml:"onnxruntime_library"`
	// Provider selects the ONNX Runtime execution provider.
	Provider providers.Config `json:"provider" yaml:"provider"`
}

// DefaultConfig returns the conventional file names under ./models.
func DefaultConfig() Config {
	return Config{
		Dir:                "models",
		YOLOv8:             "yolov8n.onnx",
		YOLOv5:             "yolov5s.onnx",
		COCOSSD:            "ssd_mobilenet_v2_coco.pb",
		COCOSSDConfig:      "ssd_mobilenet_v2_coco.pbtxt",
		MobileNetSSD:       "mobilenet_ssd.caffemodel",
		MobileNetSSDConfig: "mobilenet_ssd.prototxt",
	}
}

func (c Config) path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// NewRegistry registers the four supported backends. Nothing is loaded until
// a backend is acquired.
//
// Arguments:
//   - cfg: Model locations and runtime settings.
//   - logger: Shared by the registry and every backend; nil uses the standard logger.
//
// Returns:
//   - *model.Registry: The registry, in the order yolov8, coco-ssd, yolov5, mobilenet-ssd.
//
// Example:
//
// ```go
//
//	registry := models.NewRegistry(models.DefaultConfig(), logger)
//	defer registry.Close()
//	backend, err := registry.Acquire(ctx, model.ModelNameYOLOv8)
//
// ```
func NewRegistry(cfg Config, logger logrus.FieldLogger) *model.Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	registry := model.NewRegistry(logger)

	args := inference.SessionArgs{
		LibraryPath: cfg.LibraryPath,
		Provider:    cfg.Provider,
		Logger:      logger,
	}
	yoloLabels := YOLOClasses.Labels()
	cocoLabels := COCOClasses.Labels()

	for _, b := range []model.Backend{
		yolov8.NewModel(cfg.path(cfg.YOLOv8), yoloLabels, args),
		ssd.NewModel(ssd.Config{
			Name:        model.ModelNameCOCOSSD,
			DisplayName: "COCO-SSD",
			ModelPath:   cfg.path(cfg.COCOSSD),
			ConfigPath:  cfg.path(cfg.COCOSSDConfig),
			Labels:      cocoLabels,
			Logger:      logger,
		}),
		yolov5.NewModel(cfg.path(cfg.YOLOv5), yoloLabels, args),
		ssd.NewModel(ssd.Config{
			Name:        model.ModelNameMobileNetSSD,
			DisplayName: "MobileNet-SSD",
			ModelPath:   cfg.path(cfg.MobileNetSSD),
			ConfigPath:  cfg.path(cfg.MobileNetSSDConfig),
			Labels:      cocoLabels,
			Logger:      logger,
		}),
	} {
		b := b
		registry.Register(b.Info(), func() (model.Backend, error) { return b, nil })
	}

	return registry
}
