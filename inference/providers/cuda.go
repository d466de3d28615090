// Package providers - CUDA execution provider.
package providers

import (
	"fmt"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CUDAProviderBackend uses NVIDIA CUDA for inference optimization.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID"            yaml:"deviceID"`
	// The size limit of the device memory arena in bytes. 0 leaves the default.
	GPUMemLimit int64 `json:"gpuMemLimit"         yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena.
	// 0: kNextPowerOfTwo, 1: kSameAsRequested.
	ArenaExtendStrategy int `json:"arenaExtendStrategy" yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT.
	CudnnConvAlgoSearch int `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch"`
	// TF32 math mode on Ampere and later.
	UseTF32 int `json:"useTF32"             yaml:"useTF32"`
}

// ToNativeProviderOptions converts the CUDA options to a CUDA provider options.
// The caller must Destroy the result.
func (o CUDAOptions) ToNativeProviderOptions() (*ort.CUDAProviderOptions, error) {
	opts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}

	settings := map[string]string{
		"device_id":              fmt.Sprintf("%d", o.DeviceID),
		"arena_extend_strategy":  fmt.Sprintf("%d", o.ArenaExtendStrategy),
		"cudnn_conv_algo_search": cudnnSearch(o.CudnnConvAlgoSearch),
		"use_tf32":               fmt.Sprintf("%d", o.UseTF32),
	}
	if o.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = fmt.Sprintf("%d", o.GPUMemLimit)
	}

	if err := opts.Update(settings); err != nil {
		opts.Destroy()
		return nil, err
	}

	return opts, nil
}

func (o CUDAOptions) apply(options *ort.SessionOptions) error {
	cuda, err := o.ToNativeProviderOptions()
	if err != nil {
		return errors.Wrap(err, "error converting CUDA options")
	}
	defer cuda.Destroy()

	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return errors.Wrap(err, "error enabling CUDA")
	}
	return nil
}

func cudnnSearch(v int) string {
	switch v {
	case 1:
		return "HEURISTIC"
	case 2:
		return "DEFAULT"
	default:
		return "EXHAUSTIVE"
	}
}
