package models

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryCatalog(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRegistry(DefaultConfig(), logger)

	assert.Equal(t, []model.Name{
		model.ModelNameYOLOv8,
		model.ModelNameCOCOSSD,
		model.ModelNameYOLOv5,
		model.ModelNameMobileNetSSD,
	}, r.Names())

	info, ok := r.Info(model.ModelNameYOLOv8)
	require.True(t, ok)
	assert.Equal(t, model.KindRaw, info.Kind)
	assert.Equal(t, 640, info.InputSize)
	assert.Equal(t, filepath.Join("models", "yolov8n.onnx"), info.Path)

	info, ok = r.Info(model.ModelNameMobileNetSSD)
	require.True(t, ok)
	assert.Equal(t, model.KindDirect, info.Kind)
	assert.Equal(t, 300, info.InputSize)
}

func TestNewRegistryMissingModelIsLoadError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := DefaultConfig()
	cfg.Dir = t.TempDir()
	r := NewRegistry(cfg, logger)

	_, err := r.Acquire(context.Background(), model.ModelNameCOCOSSD)
	var le *model.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, model.ModelNameCOCOSSD, le.Backend)
}

func TestConfigPath(t *testing.T) {
	c := Config{Dir: "weights"}
	assert.Equal(t, filepath.Join("weights", "a.onnx"), c.path("a.onnx"))
	assert.Equal(t, "/abs/a.onnx", c.path("/abs/a.onnx"))
	assert.Equal(t, "", c.path(""))
}

func TestClassSets(t *testing.T) {
	yolo := YOLOClasses.Labels()
	require.Len(t, yolo, 80)
	assert.Equal(t, "person", yolo[0])
	assert.Equal(t, "toothbrush", yolo[79])

	coco := COCOClasses.Labels()
	require.Len(t, coco, 91)
	assert.Equal(t, "", coco[0])
	assert.Equal(t, "person", coco[1])
	assert.Equal(t, "", coco[12], "TF labelmap skips id 12")
	assert.Equal(t, "stop sign", coco[13])
	assert.Equal(t, "toothbrush", coco[90])

	name, err := COCOClasses.Name(18)
	require.NoError(t, err)
	assert.Equal(t, "dog", name)
	_, err = COCOClasses.Name(12)
	assert.Error(t, err)

	set, err := ClassSet(model.ModelFamilyYOLO)
	require.NoError(t, err)
	assert.Len(t, set.Classes, 80)
	_, err = ClassSet("voc")
	assert.Error(t, err)
}
