// Package model - Backend capability interfaces shared by every detector.
package model

import (
	"context"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/models/preprocess"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyCOCO is the COCO model family (90 ids with gaps).
	ModelFamilyCOCO Family = "coco"
	// ModelFamilyYOLO is the YOLO model family (80 contiguous classes).
	ModelFamilyYOLO Family = "yolo"
)

// Name is the unique identifier of a backend.
type Name string

const (
	// ModelNameYOLOv8 is the YOLOv8 ONNX backend.
	ModelNameYOLOv8 Name = "yolov8"
	// ModelNameYOLOv5 is the YOLOv5 ONNX backend.
	ModelNameYOLOv5 Name = "yolov5"
	// ModelNameCOCOSSD is the COCO-SSD backend.
	ModelNameCOCOSSD Name = "coco-ssd"
	// ModelNameMobileNetSSD is the MobileNet-SSD backend.
	ModelNameMobileNetSSD Name = "mobilenet-ssd"
)

// Kind tells the pipeline what a backend's Infer returns.
type Kind string

const (
	// KindRaw backends return a dense output grid that must be decoded.
	KindRaw Kind = "raw"
	// KindDirect backends return ready-made records.
	KindDirect Kind = "direct"
)

// Info describes a backend.
type Info struct {
	Name        Name   `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Family      Family `json:"family" yaml:"family"`
	Framework   string `json:"framework" yaml:"framework"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Path        string `json:"path" yaml:"path"`
	InputSize   int    `json:"input_size" yaml:"input_size"`
}

// Output is what a backend returns from Infer. Exactly one field is set:
// Grid for raw backends, Records for direct backends. Direct records carry
// corner-form boxes in model-input pixels.
type Output struct {
	Grid    *preprocess.Tensor
	Records []postprocess.Record
}

// Backend is one pluggable detection model.
type Backend interface {
	// Info describes the backend.
	Info() Info
	// Load prepares the backend. It is idempotent.
	Load(ctx context.Context) error
	// PreProcess turns an image into the backend's input tensor.
	PreProcess(img *images.Image) (*preprocess.Result, error)
	// Infer runs the model on a preprocessed tensor.
	Infer(ctx context.Context, in *preprocess.Tensor) (*Output, error)
	// Labels returns class names indexed by class id.
	Labels() []string
	// Close releases native resources.
	Close() error
}

// Decoder is implemented by raw backends whose grid is not the default
// [1, 4+C, N] layout.
type Decoder interface {
	Decode(out *preprocess.Tensor, threshold float32) ([]postprocess.Candidate, error)
}
