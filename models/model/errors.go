package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrUnknownBackend is returned for names that were never registered.
var ErrUnknownBackend = errors.New("unknown backend")

// LoadError is returned when a backend cannot be loaded.
type LoadError struct {
	Backend Name
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// InferenceError is returned when a loaded backend fails to run.
type InferenceError struct {
	Backend Name
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error { return e.Err }
