package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/go-detbench/config"
	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/pipeline"
	"github.com/nvr-ai/go-detbench/server"
	"github.com/nvr-ai/go-detbench/stats"
	"github.com/nvr-ai/go-detbench/util"
	"github.com/nvr-ai/go-detbench/video"
	"github.com/nvr-ai/go-detbench/video/capture"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// imageReport is printed for every image run.
type imageReport struct {
	Source     string                                  `json:"source"`
	Snapshot   *pipeline.Snapshot                      `json:"snapshot"`
	Results    map[model.Name]*pipeline.DetectionResult `json:"results"`
	Comparison stats.Comparison                        `json:"comparison"`
}

var errUsage = errors.New("no mode selected: pass -serve, -image, -video or -frames")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			flag.Usage()
			os.Exit(2)
		}
		logrus.WithError(err).Error("detbench failed")
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		envFile     string
		serve       bool
		addr        string
		imagePath   string
		videoPath   string
		framesDir   string
		backends    string
		backend     string
		confidence  float64
		iou         float64
		classAware  bool
		sampleEvery int
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	flag.StringVar(&envFile, "env", "", "Path to .env file")
	flag.BoolVar(&serve, "serve", false, "Serve the HTTP API")
	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&imagePath, "image", "", "Path to image file (.jpg, .jpeg, .png, .webp, .bmp)")
	flag.StringVar(&videoPath, "video", "", "Path to video file or camera device ID")
	flag.StringVar(&framesDir, "frames", "", "Directory of images or frame-N files to compare one by one")
	flag.StringVar(&backends, "backends", "", "Comma separated backends to compare (overrides config)")
	flag.StringVar(&backend, "backend", "", "Backend used for video (defaults to the first selected backend)")
	flag.Float64Var(&confidence, "confidence", -1, "Confidence threshold (overrides config)")
	flag.Float64Var(&iou, "iou", -1, "NMS IoU threshold (overrides config)")
	flag.BoolVar(&classAware, "class-aware", false, "Only suppress overlapping boxes of the same class")
	flag.IntVar(&sampleEvery, "sample-every", 0, "Process every Nth video frame (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if backends != "" {
		cfg.Pipeline.Backends = pipeline.ParseBackends(backends)
	}
	if confidence >= 0 {
		cfg.Pipeline.ConfidenceThreshold = float32(confidence)
	}
	if iou >= 0 {
		cfg.Pipeline.IoUThreshold = float32(iou)
	}
	if classAware {
		cfg.Pipeline.ClassAwareNMS = true
	}
	if sampleEvery > 0 {
		cfg.Video.SampleEvery = sampleEvery
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := models.NewRegistry(cfg.Models, logger)
	defer registry.Close()
	orchestrator := pipeline.NewOrchestrator(registry, logger)
	defer orchestrator.Profiler().Report()

	switch {
	case serve:
		return runServer(ctx, orchestrator, cfg, logger)
	case imagePath != "":
		return runImage(ctx, orchestrator, cfg, imagePath)
	case videoPath != "":
		return runVideo(ctx, orchestrator, cfg, videoPath, model.Name(backend), logger)
	case framesDir != "":
		return runFrames(ctx, orchestrator, cfg, framesDir, logger)
	default:
		return errUsage
	}
}

func runServer(ctx context.Context, o *pipeline.Orchestrator, cfg config.Config, logger logrus.FieldLogger) error {
	s := server.New(o, server.Options{
		Defaults:      cfg.Pipeline,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		Logger:        logger,
	})
	return s.ListenAndServe(ctx, cfg.Server.Addr)
}

func runImage(ctx context.Context, o *pipeline.Orchestrator, cfg config.Config, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := util.ValidateImageFile(path, info.Size()); err != nil {
		return err
	}
	img, err := images.Load(path)
	if err != nil {
		return err
	}
	report, err := compare(ctx, o, cfg.Pipeline, img, path)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runFrames(ctx context.Context, o *pipeline.Orchestrator, cfg config.Config, dir string, logger logrus.FieldLogger) error {
	files, err := util.LoadDirectoryImageFiles(dir)
	if err != nil {
		return err
	}
	logger.WithField("files", len(files)).Info("comparing frames")

	reports := make([]imageReport, 0, len(files))
	for _, f := range files {
		img, err := images.Decode(f.Data, f.Path)
		if err != nil {
			logger.WithError(err).WithField("file", f.Path).Warn("skipping undecodable file")
			continue
		}
		report, err := compare(ctx, o, cfg.Pipeline, img, f.Path)
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}
	return printJSON(reports)
}

func compare(ctx context.Context, o *pipeline.Orchestrator, cfg pipeline.Config, img *images.Image, source string) (imageReport, error) {
	run, results, err := o.Detect(ctx, cfg, img)
	if err != nil {
		return imageReport{}, err
	}
	return imageReport{
		Source:     source,
		Snapshot:   run.Snapshot(),
		Results:    results,
		Comparison: stats.Compare(results, cfg.Backends, img.Width, img.Height),
	}, nil
}

func runVideo(ctx context.Context, o *pipeline.Orchestrator, cfg config.Config, source string, backend model.Name, logger logrus.FieldLogger) error {
	if backend == "" {
		backend = cfg.Pipeline.Backends[0]
	}
	if info, err := os.Stat(source); err == nil {
		if err := util.ValidateVideoFile(source, info.Size()); err != nil {
			return err
		}
	}

	c, err := capture.Open(source)
	if err != nil {
		return err
	}
	defer c.Close()

	last := time.Now()
	res, err := video.Detect(ctx, o, c, video.Options{
		Backend:     backend,
		Config:      cfg.Pipeline,
		SampleEvery: cfg.Video.SampleEvery,
		Logger:      logger,
		OnProgress: func(p video.Progress) {
			if time.Since(last) < time.Second && p.Processed < p.ToProcess {
				return
			}
			last = time.Now()
			logger.WithFields(logrus.Fields{
				"frame":    p.Frame,
				"progress": fmt.Sprintf("%d%%", p.Percent),
			}).Info("video progress")
		},
	})
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"frames":     res.ProcessedFrames,
		"detections": res.Detections(),
		"elapsed":    util.FormatDuration(res.ProcessingTime.Seconds()),
	}).Info("video complete")
	return printJSON(res)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
