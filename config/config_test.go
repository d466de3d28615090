package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/pipeline"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, pipeline.DefaultConfidenceThreshold, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, pipeline.DefaultIoUThreshold, cfg.Pipeline.IoUThreshold)
	assert.Len(t, cfg.Pipeline.Backends, 4)
	assert.Equal(t, 5, cfg.Video.SampleEvery)
	assert.Equal(t, "models", cfg.Models.Dir)
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "detbench.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
server:
  addr: ":9000"
models:
  dir: /opt/models
  provider:
    backend: cuda
    cuda:
      deviceID: 1
pipeline:
  confidence_threshold: 0.3
  backends: [yolov8, coco-ssd]
video:
  sample_every: 10
`), 0o600))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DETBENCH_IOU_THRESHOLD=0.6\nDETBENCH_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DETBENCH_IOU_THRESHOLD")
		os.Unsetenv("DETBENCH_LOG_LEVEL")
	})
	t.Setenv("DETBENCH_ADDR", ":7000")

	cfg, err := Load(yamlPath, envPath)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr, "environment beats the file")
	assert.Equal(t, "/opt/models", cfg.Models.Dir)
	assert.Equal(t, "yolov8n.onnx", cfg.Models.YOLOv8, "unset keys keep defaults")
	assert.EqualValues(t, "cuda", cfg.Models.Provider.Backend)
	assert.Equal(t, 1, cfg.Models.Provider.CUDA.DeviceID)
	assert.InDelta(t, 0.3, cfg.Pipeline.ConfidenceThreshold, 1e-6)
	assert.InDelta(t, 0.6, cfg.Pipeline.IoUThreshold, 1e-6)
	assert.Equal(t, []model.Name{"yolov8", "coco-ssd"}, cfg.Pipeline.Backends)
	assert.Equal(t, 10, cfg.Video.SampleEvery)
	assert.Equal(t, "debug", cfg.Log.Level)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DETBENCH_BACKENDS", " yolov5 , ,mobilenet-ssd")
	t.Setenv("DETBENCH_CLASS_AWARE_NMS", "true")
	t.Setenv("DETBENCH_SAMPLE_EVERY", "not-a-number")
	t.Setenv("DETBENCH_LOG_FORMAT", "json")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, []model.Name{"yolov5", "mobilenet-ssd"}, cfg.Pipeline.Backends)
	assert.True(t, cfg.Pipeline.ClassAwareNMS)
	assert.Equal(t, 5, cfg.Video.SampleEvery)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"), "")
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pipeline: [unclosed"), 0o600))
	_, err = Load(bad, "")
	assert.Error(t, err)

	_, err = Load("", filepath.Join(dir, "missing.env"))
	assert.Error(t, err)

	t.Setenv("DETBENCH_CONFIDENCE_THRESHOLD", "2")
	_, err = Load("", "")
	var ce *pipeline.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sample", func(c *Config) { c.Video.SampleEvery = 0 }},
		{"level", func(c *Config) { c.Log.Level = "loud" }},
		{"format", func(c *Config) { c.Log.Format = "xml" }},
		{"provider", func(c *Config) { c.Models.Provider.Backend = "tpu" }},
		{"backends", func(c *Config) { c.Pipeline.Backends = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
