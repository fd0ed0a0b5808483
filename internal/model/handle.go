package model

import (
	"context"
	"io"
	"time"

	"github.com/notflix/aiservice/internal/device"
	"github.com/notflix/aiservice/internal/telemetry"
)

// Handle is a resident model. It is created once per key and only its
// registry and the current lock holder may touch the runtime.
type Handle[M any] struct {
	Family   string
	Key      string
	Artifact string
	Device   device.Kind
	LoadedAt time.Time

	runtime M
	lock    *InferenceLock
	metrics *telemetry.Metrics
}

// Lock waits for exclusive use of the model.
func (h *Handle[M]) Lock(ctx context.Context) error {
	start := time.Now()
	if err := h.lock.Acquire(ctx); err != nil {
		return err
	}
	h.metrics.LockWait(ctx, h.Family, h.Key, time.Since(start))
	return nil
}

// Unlock releases the model for the next waiter.
func (h *Handle[M]) Unlock() { h.lock.Release() }

// Runtime returns the loaded model. Callers must hold the lock while using it.
func (h *Handle[M]) Runtime() M { return h.runtime }

// Hold locks the model for a use that outlives a single call, such as a
// stream. The returned release must be called exactly once.
func (h *Handle[M]) Hold(ctx context.Context) (release func(err error), err error) {
	if err := h.Lock(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	return func(err error) {
		h.metrics.Inference(ctx, h.Family, h.Key, time.Since(start), err)
		h.Unlock()
	}, nil
}

// Do runs fn with exclusive access to the model. Once fn starts it runs to
// completion; ctx only bounds the wait for the lock.
func (h *Handle[M]) Do(ctx context.Context, fn func(M) error) (err error) {
	release, err := h.Hold(ctx)
	if err != nil {
		return err
	}
	defer func() { release(err) }()

	return fn(h.runtime)
}

func (h *Handle[M]) close() error {
	if c, ok := any(h.runtime).(io.Closer); ok {
		return c.Close()
	}
	return nil
}
