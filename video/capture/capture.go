// Package capture reads video frames with OpenCV.
package capture

import (
	"context"
	"io"
	"strconv"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Capture is a video.FrameSource over a file or capture device.
type Capture struct {
	webcam *gocv.VideoCapture
	img    gocv.Mat
	fps    float64
	frames int
	name   string
}

// Open opens a video file, or a capture device when source is a device id.
func Open(source string) (*Capture, error) {
	var (
		webcam *gocv.VideoCapture
		err    error
	)
	if id, convErr := strconv.Atoi(source); convErr == nil {
		webcam, err = gocv.OpenVideoCapture(id)
	} else {
		webcam, err = gocv.VideoCaptureFile(source)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", source)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, errors.Errorf("open %s: capture not opened", source)
	}

	frames := int(webcam.Get(gocv.VideoCaptureFrameCount))
	if frames < 0 {
		frames = 0
	}
	return &Capture{
		webcam: webcam,
		img:    gocv.NewMat(),
		fps:    webcam.Get(gocv.VideoCaptureFPS),
		frames: frames,
		name:   source,
	}, nil
}

// FPS returns the container frame rate, 0 when unknown.
func (c *Capture) FPS() float64 { return c.fps }

// FrameCount returns the container frame count, 0 for live devices.
func (c *Capture) FrameCount() int { return c.frames }

// Read decodes the next frame.
func (c *Capture) Read(ctx context.Context) (*images.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := c.webcam.Read(&c.img); !ok || c.img.Empty() {
		return nil, io.EOF
	}

	src, err := c.img.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert frame")
	}
	img, err := images.FromImage(src)
	if err != nil {
		return nil, err
	}
	img.Source = images.Metadata{Name: c.name}
	return img, nil
}

// Skip grabs the next frame without decoding it. The end of the stream is
// reported by the following Read.
func (c *Capture) Skip() error {
	c.webcam.Grab(1)
	return nil
}

// Close releases the capture and its frame buffer.
func (c *Capture) Close() error {
	if err := c.img.Close(); err != nil {
		return err
	}
	return c.webcam.Close()
}
