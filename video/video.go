// Package video runs one backend over sampled frames of a video.
package video

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/pipeline"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSampleEvery processes every fifth frame.
	DefaultSampleEvery = 5
	// DefaultFPS is assumed when the source does not report a frame rate.
	DefaultFPS = 30.0
)

// FrameSource yields decoded frames in order.
type FrameSource interface {
	// FPS returns the frame rate, or 0 when unknown.
	FPS() float64
	// FrameCount returns the number of frames, or 0 when unknown.
	FrameCount() int
	// Read returns the next frame, or io.EOF after the last one.
	Read(ctx context.Context) (*images.Image, error)
}

// Skipper is implemented by sources that can advance past a frame without
// decoding it.
type Skipper interface {
	Skip() error
}

// FrameResult holds the detections of one sampled frame.
type FrameResult struct {
	Frame          int                     `json:"frame"`
	Timestamp      time.Duration           `json:"timestamp"`
	Detections     []postprocess.Detection `json:"detections"`
	ProcessingTime time.Duration           `json:"processing_time"`
}

// Progress reports how many sampled frames are done.
type Progress struct {
	Frame       int `json:"frame"`
	Processed   int `json:"processed"`
	ToProcess   int `json:"to_process"`
	TotalFrames int `json:"total_frames"`
	// Percent is 0 when the frame count is unknown.
	Percent int `json:"percent"`
}

// Result is the outcome of a video detection.
type Result struct {
	Backend         model.Name    `json:"backend"`
	FPS             float64       `json:"fps"`
	TotalFrames     int           `json:"total_frames"`
	ProcessedFrames int           `json:"processed_frames"`
	Frames          []FrameResult `json:"frames"`
	ProcessingTime  time.Duration `json:"processing_time"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// Detections returns the number of detections across all frames.
func (r *Result) Detections() int {
	n := 0
	for _, f := range r.Frames {
		n += len(f.Detections)
	}
	return n
}

// Options configures a video detection.
type Options struct {
	Backend model.Name
	Config  pipeline.Config
	// SampleEvery processes frames 0, N, 2N, ...; defaults to DefaultSampleEvery.
	SampleEvery int
	// OnProgress is called after each processed frame.
	OnProgress func(Progress)
	// OnFrame is called with each frame's detections.
	OnFrame func(FrameResult)
	Logger  logrus.FieldLogger
}

// Detect runs opts.Backend over every SampleEvery-th frame of src.
//
// Arguments:
//   - ctx: Checked between frames.
//   - detector: Runs the backend on one frame.
//   - src: The frames.
//   - opts: Backend, thresholds, sampling and callbacks.
//
// Returns:
//   - *Result: Per-frame detections in frame order.
//   - error: The first read or detection failure, or the context error.
func Detect(ctx context.Context, detector pipeline.Detector, src FrameSource, opts Options) (*Result, error) {
	every := opts.SampleEvery
	if every <= 0 {
		every = DefaultSampleEvery
	}
	fps := src.FPS()
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = DefaultFPS
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("backend", opts.Backend)

	total := src.FrameCount()
	toProcess := 0
	if total > 0 {
		toProcess = (total + every - 1) / every
	}

	start := time.Now()
	res := &Result{Backend: opts.Backend, FPS: fps, TotalFrames: total}
	skipper, canSkip := src.(Skipper)

	for frame := 0; ; frame++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if frame%every != 0 && canSkip {
			if err := skipper.Skip(); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, errors.Wrapf(err, "skip frame %d", frame)
			}
			continue
		}

		img, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read frame %d", frame)
		}
		if frame%every != 0 {
			continue
		}

		det, err := detector.DetectImage(ctx, opts.Backend, opts.Config, img)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", frame)
		}

		fr := FrameResult{
			Frame:          frame,
			Timestamp:      time.Duration(float64(frame) * float64(time.Second) / fps),
			Detections:     det.Detections,
			ProcessingTime: det.ProcessingTime,
		}
		res.Frames = append(res.Frames, fr)
		res.ProcessedFrames++

		p := Progress{Frame: frame, Processed: res.ProcessedFrames, ToProcess: toProcess, TotalFrames: total}
		if toProcess > 0 {
			p.Percent = res.ProcessedFrames * 100 / toProcess
			if p.Percent > 100 {
				p.Percent = 100
			}
		}
		logger.WithFields(logrus.Fields{
			"frame":      frame,
			"detections": len(fr.Detections),
			"percent":    p.Percent,
		}).Debug("frame processed")

		if opts.OnFrame != nil {
			opts.OnFrame(fr)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(p)
		}
	}

	res.ProcessingTime = time.Since(start)
	res.CompletedAt = time.Now()
	logger.WithFields(logrus.Fields{
		"frames":     res.ProcessedFrames,
		"detections": res.Detections(),
	}).Info("video detection complete")
	return res, nil
}
