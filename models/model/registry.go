package model

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Factory builds an unloaded backend.
type Factory func() (Backend, error)

type entry struct {
	info    Info
	factory Factory
	backend Backend
}

// Registry owns backend instances. Backends are built and loaded on
// Acquire, cached until Dispose or Close.
type Registry struct {
	mu      sync.Mutex
	entries map[Name]*entry
	order   []Name
	logger  logrus.FieldLogger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{entries: make(map[Name]*entry), logger: logger}
}

// Register adds a backend factory. Registering a name twice replaces the
// factory and disposes any cached instance.
//
// Arguments:
//   - info: The backend description; info.Name is the key.
//   - factory: Builds the backend on first Acquire.
func (r *Registry) Register(info Info, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[info.Name]; ok {
		r.dispose(e)
		e.info, e.factory = info, factory
		return
	}
	r.entries[info.Name] = &entry{info: info, factory: factory}
	r.order = append(r.order, info.Name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name Name) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Name(nil), r.order...)
}

// Info returns the description of a registered backend.
func (r *Registry) Info(name Name) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// Acquire returns the loaded backend for name, building and loading it on
// first use.
//
// Arguments:
//   - ctx: Passed to Backend.Load.
//   - name: The backend to acquire.
//
// Returns:
//   - Backend: The loaded backend.
//   - error: ErrUnknownBackend, or a *LoadError when building or loading fails.
func (r *Registry) Acquire(ctx context.Context, name Name) (Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
	if e.backend != nil {
		return e.backend, nil
	}

	b, err := e.factory()
	if err != nil {
		return nil, &LoadError{Backend: name, Err: err}
	}
	if err := b.Load(ctx); err != nil {
		if cerr := b.Close(); cerr != nil {
			r.logger.WithError(cerr).WithField("backend", name).Warn("close after failed load")
		}
		var le *LoadError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LoadError{Backend: name, Err: err}
	}

	r.logger.WithField("backend", name).Info("backend loaded")
	e.backend = b
	return b, nil
}

// Dispose closes and forgets the cached instance of name, if any.
func (r *Registry) Dispose(name Name) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
	return r.dispose(e)
}

// Close disposes every cached backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, name := range r.order {
		if err := r.dispose(r.entries[name]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Registry) dispose(e *entry) error {
	if e.backend == nil {
		return nil
	}
	err := e.backend.Close()
	e.backend = nil
	r.logger.WithField("backend", e.info.Name).Debug("backend disposed")
	return errors.Wrapf(err, "close %s", e.info.Name)
}
