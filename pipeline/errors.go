package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrRunNotCompleted is returned by Run.Results before the run finishes.
	ErrRunNotCompleted = errors.New("run not completed")
	// ErrRunDiscarded is the cancellation cause of a run replaced by a newer one.
	ErrRunDiscarded = errors.New("run discarded")
	// ErrNoSource is returned when a run is started without an image source.
	ErrNoSource = errors.New("no image source")
)

// ConfigError reports an invalid run configuration. It is returned before any
// backend runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}
