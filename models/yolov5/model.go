// Package yolov5 - YOLOv5 detector over ONNX Runtime.
package yolov5

import (
	"github.com/nvr-ai/go-detbench/inference"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/models/preprocess"
)

// DefaultInputSize is the export resolution of the stock YOLOv5 models.
const DefaultInputSize = 640

// YOLOv5 is a raw backend with a row-major [1, 25200, 85] output: box,
// objectness and class scores per row.
type YOLOv5 struct {
	*inference.Model
}

// NewModel creates an unloaded YOLOv5 backend.
func NewModel(path string, labels []string, args inference.SessionArgs) *YOLOv5 {
	info := model.Info{
		Name:        model.ModelNameYOLOv5,
		DisplayName: "YOLOv5",
		Family:      model.ModelFamilyYOLO,
		Framework:   "onnxruntime",
		Kind:        model.KindRaw,
		Path:        path,
		InputSize:   DefaultInputSize,
	}
	return &YOLOv5{Model: inference.NewModel(info, labels, args)}
}

// Decode implements model.Decoder with objectness × class score.
func (m *YOLOv5) Decode(out *preprocess.Tensor, threshold float32) ([]postprocess.Candidate, error) {
	return postprocess.DecodeRows(out, threshold)
}
