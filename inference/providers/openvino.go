// Package providers - OpenVINO execution provider.
package providers

import (
	"fmt"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Precision represents the precision OpenVINO runs the model at.
type Precision string

const (
	// PrecisionAccuracy runs with the model's own input precision.
	PrecisionAccuracy Precision = "ACCURACY"
	// PrecisionFP32 represents 32-bit floating point precision.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 represents 16-bit floating point precision.
	PrecisionFP16 Precision = "FP16"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type (CPU, GPU, NPU).
	DeviceType string `json:"deviceType"           yaml:"deviceType"`
	// Supported precisions for HW {CPU:FP32, GPU:[FP32, FP16, ACCURACY], NPU:FP16}.
	Precision Precision `json:"precision"            yaml:"precision"`
	// Overrides the accelerator default number of threads. 0 leaves the default.
	NumOfThreads int `json:"numOfThreads"         yaml:"numOfThreads"`
	// Rewrites dynamic shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes"`
}

// Settings returns the provider option map.
func (o OpenVINOOptions) Settings() map[string]string {
	settings := map[string]string{
		"disable_dynamic_shapes": fmt.Sprintf("%t", o.DisableDynamicShapes),
	}
	if o.DeviceType != "" {
		settings["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		settings["precision"] = string(o.Precision)
	}
	if o.NumOfThreads > 0 {
		settings["num_of_threads"] = fmt.Sprintf("%d", o.NumOfThreads)
	}
	return settings
}

func (o OpenVINOOptions) apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderOpenVINO(o.Settings()); err != nil {
		return errors.Wrap(err, "error enabling OpenVINO")
	}
	return nil
}
