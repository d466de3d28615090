// Package pipeline runs detection backends over one image and reports
// per-backend progress.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/go-detbench/models/model"
)

const (
	// DefaultConfidenceThreshold is the minimum detection confidence.
	DefaultConfidenceThreshold float32 = 0.5
	// DefaultIoUThreshold is the NMS suppression threshold.
	DefaultIoUThreshold float32 = 0.45
)

// Config describes one run.
type Config struct {
	// ConfidenceThreshold drops candidates scoring below it, in [0, 1].
	ConfidenceThreshold float32 `yaml:"confidence_threshold" json:"confidence_threshold"`
	// IoUThreshold is the NMS overlap at which boxes are suppressed, in [0, 1].
	IoUThreshold float32 `yaml:"iou_threshold" json:"iou_threshold"`
	// Backends run in this order.
	Backends []model.Name `yaml:"backends" json:"backends"`
	// ClassAwareNMS restricts suppression to boxes of the same class.
	ClassAwareNMS bool `yaml:"class_aware_nms" json:"class_aware_nms"`
}

// DefaultConfig returns the default thresholds with no backends selected.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		IoUThreshold:        DefaultIoUThreshold,
	}
}

// Validate checks thresholds and the backend list. known reports whether a
// backend name is registered; nil skips that check.
func (c Config) Validate(known func(model.Name) bool) error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 || c.ConfidenceThreshold != c.ConfidenceThreshold {
		return &ConfigError{Field: "confidence_threshold", Reason: fmt.Sprintf("%v outside [0, 1]", c.ConfidenceThreshold)}
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 || c.IoUThreshold != c.IoUThreshold {
		return &ConfigError{Field: "iou_threshold", Reason: fmt.Sprintf("%v outside [0, 1]", c.IoUThreshold)}
	}
	if len(c.Backends) == 0 {
		return &ConfigError{Field: "backends", Reason: "no backends selected"}
	}

	seen := make(map[model.Name]bool, len(c.Backends))
	for _, name := range c.Backends {
		if seen[name] {
			return &ConfigError{Field: "backends", Reason: fmt.Sprintf("duplicate backend %q", name)}
		}
		seen[name] = true
		if known != nil && !known(name) {
			return &ConfigError{Field: "backends", Reason: fmt.Sprintf("unknown backend %q", name)}
		}
	}
	return nil
}

// ParseBackends splits a comma separated backend list, skipping blanks.
func ParseBackends(s string) []model.Name {
	var names []model.Name
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, model.Name(part))
		}
	}
	return names
}
