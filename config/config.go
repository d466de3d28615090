// Package config loads the application configuration from a YAML file, a
// .env file and DETBENCH_* environment variables, in increasing precedence.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/nvr-ai/go-detbench/inference/providers"
	"github.com/nvr-ai/go-detbench/models"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/pipeline"
	"github.com/nvr-ai/go-detbench/video"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DETBENCH_"

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// MaxUploadSize caps request bodies in bytes.
	MaxUploadSize int64 `yaml:"max_upload_size" json:"max_upload_size"`
}

// VideoConfig configures frame sampling.
type VideoConfig struct {
	SampleEvery int `yaml:"sample_every" json:"sample_every"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config is the application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server" json:"server"`
	Models   models.Config   `yaml:"models" json:"models"`
	Pipeline pipeline.Config `yaml:"pipeline" json:"pipeline"`
	Video    VideoConfig     `yaml:"video" json:"video"`
	Log      LogConfig       `yaml:"log" json:"log"`
}

// Default returns the built-in configuration. Every registered backend is
// selected.
func Default() Config {
	p := pipeline.DefaultConfig()
	p.Backends = []model.Name{
		model.ModelNameYOLOv8,
		model.ModelNameCOCOSSD,
		model.ModelNameYOLOv5,
		model.ModelNameMobileNetSSD,
	}
	return Config{
		Server:   ServerConfig{Addr: ":8080", MaxUploadSize: 100 << 20},
		Models:   models.DefaultConfig(),
		Pipeline: p,
		Video:    VideoConfig{SampleEvery: video.DefaultSampleEvery},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. Missing files are skipped when their path is
// empty; a named file that cannot be read is an error.
//
// Arguments:
//   - path: YAML file overlaid on the defaults, or "".
//   - envFile: .env file loaded into the process environment, or "".
//     Variables already set are not overwritten.
//
// Returns:
//   - Config: The validated configuration.
//   - error: If a file cannot be read or parsed, or validation fails.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, errors.Wrapf(err, "load %s", envFile)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from DETBENCH_* variables. Unparsable values are
// ignored.
func (c *Config) ApplyEnv() {
	c.Server.Addr = getEnv("ADDR", c.Server.Addr)
	c.Server.MaxUploadSize = getEnvAsInt64("MAX_UPLOAD_SIZE", c.Server.MaxUploadSize)

	c.Models.Dir = getEnv("MODELS_DIR", c.Models.Dir)
	c.Models.YOLOv8 = getEnv("YOLOV8_MODEL", c.Models.YOLOv8)
	c.Models.YOLOv5 = getEnv("YOLOV5_MODEL", c.Models.YOLOv5)
	c.Models.COCOSSD = getEnv("COCO_SSD_MODEL", c.Models.COCOSSD)
	c.Models.MobileNetSSD = getEnv("MOBILENET_SSD_MODEL", c.Models.MobileNetSSD)
	c.Models.LibraryPath = getEnv("ORT_LIBRARY", c.Models.LibraryPath)
	c.Models.Provider.Backend = providers.ProviderBackend(getEnv("PROVIDER", string(c.Models.Provider.Backend)))

	c.Pipeline.ConfidenceThreshold = getEnvAsFloat32("CONFIDENCE_THRESHOLD", c.Pipeline.ConfidenceThreshold)
	c.Pipeline.IoUThreshold = getEnvAsFloat32("IOU_THRESHOLD", c.Pipeline.IoUThreshold)
	c.Pipeline.ClassAwareNMS = getEnvAsBool("CLASS_AWARE_NMS", c.Pipeline.ClassAwareNMS)
	if v := getEnv("BACKENDS", ""); v != "" {
		c.Pipeline.Backends = pipeline.ParseBackends(v)
	}

	c.Video.SampleEvery = getEnvAsInt("SAMPLE_EVERY", c.Video.SampleEvery)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate checks the parts that can be checked without the registry.
func (c Config) Validate() error {
	if err := c.Pipeline.Validate(nil); err != nil {
		return err
	}
	if err := c.Models.Provider.Validate(); err != nil {
		return err
	}
	if c.Video.SampleEvery < 1 {
		return errors.Errorf("video.sample_every must be positive, got %d", c.Video.SampleEvery)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return errors.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds a logger from the log settings.
func (c Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
