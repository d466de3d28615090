package images

import (
	"context"
	"sync"
)

// Future is a one-shot handle for an image that is still being decoded or
// captured. Resolve or Reject may be called once; later calls are ignored.
type Future struct {
	once  sync.Once
	ready chan struct{}
	img   *Image
	err   error
}

// NewFuture returns an unresolved Future.
func NewFuture() *Future {
	return &Future{ready: make(chan struct{})}
}

// Resolve publishes the image and wakes every waiter.
func (f *Future) Resolve(img *Image) {
	f.once.Do(func() {
		f.img = img
		close(f.ready)
	})
}

// Reject publishes a load failure and wakes every waiter.
func (f *Future) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.ready)
	})
}

// Ready is closed once the future is resolved or rejected.
func (f *Future) Ready() <-chan struct{} {
	return f.ready
}

// Wait blocks until the image is available, the load failed, or ctx is done.
func (f *Future) Wait(ctx context.Context) (*Image, error) {
	select {
	case <-f.ready:
		return f.img, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoadAsync decodes data in the background and returns a Future for the result.
func LoadAsync(data []byte, name string) *Future {
	f := NewFuture()
	go func() {
		img, err := Decode(data, name)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(img)
	}()
	return f
}
