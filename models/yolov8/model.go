// Package yolov8 - YOLOv8 detector over ONNX Runtime.
package yolov8

import (
	"github.com/nvr-ai/go-detbench/inference"
	"github.com/nvr-ai/go-detbench/models/model"
)

// DefaultInputSize is the export resolution of the stock YOLOv8 models.
const DefaultInputSize = 640

// YOLOv8 is a raw backend. Its output is the channel-major [1, 84, 8400]
// grid that the default grid decoder reads.
type YOLOv8 struct {
	*inference.Model
}

// NewModel creates an unloaded YOLOv8 backend.
//
// Arguments:
//   - path: The ONNX model path.
//   - labels: The 80 YOLO class names.
//   - args: Runtime and execution provider settings.
//
// Returns:
//   - *YOLOv8: The backend.
func NewModel(path string, labels []string, args inference.SessionArgs) *YOLOv8 {
	info := model.Info{
		Name:        model.ModelNameYOLOv8,
		DisplayName: "YOLOv8",
		Family:      model.ModelFamilyYOLO,
		Framework:   "onnxruntime",
		Kind:        model.KindRaw,
		Path:        path,
		InputSize:   DefaultInputSize,
	}
	return &YOLOv8{Model: inference.NewModel(info, labels, args)}
}
