// Package preprocess turns images into model-ready tensors.
package preprocess

import (
	"fmt"

	"github.com/nfnt/resize"
	"github.com/nvr-ai/go-detbench/images"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrInvalidInput is returned for images that cannot be preprocessed.
var ErrInvalidInput = errors.New("invalid input")

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne NormalizationType = iota
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputSize is the side of the square model input.
	InputSize int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// Interpolation is the resampling kernel used for the stretch. The zero
	// value is nearest neighbour.
	Interpolation resize.InterpolationFunction
}

// YOLOConfig returns the configuration for YOLO style raw-grid models:
// [0,1] normalization, bilinear stretch.
//
// Arguments:
//   - inputSize: The input size (typically 640).
//
// Returns:
//   - ModelConfig: The configuration.
func YOLOConfig(inputSize int) ModelConfig {
	return ModelConfig{
		Name:              "yolo",
		InputSize:         inputSize,
		NormalizationType: NormalizeZeroToOne,
		Interpolation:     resize.Bilinear,
	}
}

// SSDConfig returns the configuration for TensorFlow SSD models, which expect
// inputs in [-1, 1].
func SSDConfig(inputSize int) ModelConfig {
	return ModelConfig{
		Name:              "ssd",
		InputSize:         inputSize,
		NormalizationType: NormalizeMinusOneToOne,
		Interpolation:     resize.Bilinear,
	}
}

// Result contains the preprocessed tensor and the geometry needed to map
// detections back onto the original image.
type Result struct {
	// Tensor is the [1, 3, S, S] channel-first input.
	Tensor *Tensor
	// OriginalWidth is the image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the image height before preprocessing.
	OriginalHeight int
	// InputSize is S.
	InputSize int
}

// Preprocessor handles image preprocessing for detection models.
type Preprocessor struct {
	config ModelConfig
	logger logrus.FieldLogger
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//   - logger: Debug output; nil uses the standard logger.
//
// Returns:
//   - *Preprocessor: The preprocessor.
//
// Example:
//
// ```go
//
//	p := NewPreprocessor(YOLOConfig(640), nil)
//	res, err := p.Preprocess(img)
//
// ```
func NewPreprocessor(config ModelConfig, logger logrus.FieldLogger) *Preprocessor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Preprocessor{config: config, logger: logger}
}

// Config returns the preprocessor configuration.
func (p *Preprocessor) Config() ModelConfig {
	return p.config
}

// Preprocess stretches the image to S×S (independent X/Y scaling, no
// letterbox) and writes it channel-first into a new tensor.
//
// Arguments:
//   - img: The input image.
//
// Returns:
//   - *Result: The tensor and original dimensions.
//   - error: ErrInvalidInput for zero-area or inconsistent images.
func (p *Preprocessor) Preprocess(img *images.Image) (*Result, error) {
	size := p.config.InputSize
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "input size %d", size)
	}
	if err := img.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}

	p.logger.WithFields(logrus.Fields{
		"model":  p.config.Name,
		"width":  img.Width,
		"height": img.Height,
		"size":   size,
	}).Debug("preprocessing image")

	resized := img.RGBA()
	if img.Width != size || img.Height != size {
		resized = toRGBA(resize.Resize(uint(size), uint(size), resized, p.config.Interpolation))
	}

	tensor := NewTensor(1, 3, size, size)
	plane := size * size
	red := tensor.Data[0:plane]
	green := tensor.Data[plane : 2*plane]
	blue := tensor.Data[2*plane : 3*plane]

	div, offset := p.normalization()
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			i := y*size + x
			red[i] = float32(row[x*4])/div + offset
			green[i] = float32(row[x*4+1])/div + offset
			blue[i] = float32(row[x*4+2])/div + offset
		}
	}

	return &Result{
		Tensor:         tensor,
		OriginalWidth:  img.Width,
		OriginalHeight: img.Height,
		InputSize:      size,
	}, nil
}

func (p *Preprocessor) normalization() (float32, float32) {
	switch p.config.NormalizationType {
	case NormalizeMinusOneToOne:
		return 127.5, -1
	default:
		return 255, 0
	}
}

// String implements fmt.Stringer.
func (p *Preprocessor) String() string {
	return fmt.Sprintf("preprocessor(%s, %dx%d)", p.config.Name, p.config.InputSize, p.config.InputSize)
}
