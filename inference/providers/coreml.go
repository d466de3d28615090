// Package providers - CoreML execution provider.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
)

// CoreML provider flags.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
const (
	coreMLFlagUseCPUOnly           uint32 = 0x001
	coreMLFlagOnlyStaticInputShape uint32 = 0x008
	coreMLFlagCreateMLProgram      uint32 = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
type CoreMLOptions struct {
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpuOnly"                  yaml:"cpuOnly"`
	// Only allow nodes with static input shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Create an MLProgram format model (Core ML 5+).
	MLProgram bool `json:"mlProgram"                yaml:"mlProgram"`
}

// Flags returns the native CoreML flag set.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.CPUOnly {
		flags |= coreMLFlagUseCPUOnly
	}
	if o.RequireStaticInputShapes {
		flags |= coreMLFlagOnlyStaticInputShape
	}
	if o.MLProgram {
		flags |= coreMLFlagCreateMLProgram
	}
	return flags
}

func (o CoreMLOptions) apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderCoreML(o.Flags()); err != nil {
		return errors.Wrap(err, "error enabling CoreML")
	}
	return nil
}
