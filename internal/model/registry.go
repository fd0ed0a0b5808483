// Package model keeps one resident instance per model key and serializes
// inference on each instance.
package model

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/notflix/aiservice/internal/device"
	"github.com/notflix/aiservice/internal/telemetry"
)

// CandidatesFunc lists the artifacts that may serve a key, most preferred
// first.
type CandidatesFunc[K Key] func(key K) ([]string, error)

// LoadFunc loads one candidate artifact onto the given device.
type LoadFunc[K Key, M any] func(ctx context.Context, key K, artifact string, placement device.Kind) (M, error)

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	placement  device.Kind
	sharedLock bool
}

// WithLogger sets the logger used for load events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records load and lock measurements.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithPlacement sets the device every handle is loaded onto.
func WithPlacement(kind device.Kind) Option {
	return func(o *options) { o.placement = kind }
}

// WithSharedLock makes every handle of the family share one inference lock.
func WithSharedLock() Option {
	return func(o *options) { o.sharedLock = true }
}

type entry[M any] struct {
	ready  chan struct{}
	handle *Handle[M]
	err    error
}

// Registry owns the resident models of one family.
type Registry[K Key, M any] struct {
	family     string
	candidates CandidatesFunc[K]
	load       LoadFunc[K, M]
	opts       options
	shared     *InferenceLock

	mu      sync.Mutex
	entries map[K]*entry[M]
	closed  bool
}

// NewRegistry creates an empty registry for family.
func NewRegistry[K Key, M any](family string, candidates CandidatesFunc[K], load LoadFunc[K, M], opts ...Option) *Registry[K, M] {
	o := options{logger: slog.Default(), placement: device.CPU}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry[K, M]{
		family:     family,
		candidates: candidates,
		load:       load,
		opts:       o,
		entries:    make(map[K]*entry[M]),
	}
	if o.sharedLock {
		r.shared = NewInferenceLock()
	}
	return r
}

// Family returns the family name.
func (r *Registry[K, M]) Family() string { return r.family }

// Acquire returns the resident handle for key, loading it on first use.
// Concurrent first callers share a single load; a failed load is reported
// to every waiter and forgotten so a later call retries.
func (r *Registry[K, M]) Acquire(ctx context.Context, key K) (*Handle[M], error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	e, ok := r.entries[key]
	if !ok {
		e = &entry[M]{ready: make(chan struct{})}
		r.entries[key] = e
		// The load outlives the caller that triggered it.
		go r.fill(context.WithoutCancel(ctx), key, e)
	}
	r.mu.Unlock()

	select {
	case <-e.ready:
		if e.err != nil {
			return nil, e.err
		}
		return e.handle, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Preload loads keys eagerly, one after another.
func (r *Registry[K, M]) Preload(ctx context.Context, keys ...K) error {
	var errs []error
	for _, key := range keys {
		if _, err := r.Acquire(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resident returns the loaded handles ordered by key.
func (r *Registry[K, M]) Resident() []*Handle[M] {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]*Handle[M], 0, len(r.entries))
	for _, e := range r.entries {
		select {
		case <-e.ready:
			if e.err == nil {
				handles = append(handles, e.handle)
			}
		default:
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Key < handles[j].Key })
	return handles
}

// Close releases every resident runtime. Loads still in flight are closed
// when they finish.
func (r *Registry[K, M]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := make([]*entry[M], 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		<-e.ready
		if e.err != nil {
			continue
		}
		if err := e.handle.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry[K, M]) fill(ctx context.Context, key K, e *entry[M]) {
	handle, err := r.loadKey(ctx, key)

	r.mu.Lock()
	if err != nil {
		if r.entries[key] == e {
			delete(r.entries, key)
		}
	}
	e.handle, e.err = handle, err
	r.mu.Unlock()

	close(e.ready)
}

func (r *Registry[K, M]) loadKey(ctx context.Context, key K) (*Handle[M], error) {
	logger := r.opts.logger.With("family", r.family, "key", key.String())

	candidates, err := r.candidates(key)
	if err == nil && len(candidates) == 0 {
		err = ErrNoCandidates
	}
	if err != nil {
		logger.Error("no model candidates", "error", err)
		return nil, &ModelUnavailableError{Family: r.family, Key: key.String(), Err: err}
	}

	var errs []error
	for _, candidate := range candidates {
		logger.Info("loading model", "candidate", candidate, "device", r.opts.placement)

		start := time.Now()
		runtime, err := r.load(ctx, key, candidate, r.opts.placement)
		elapsed := time.Since(start)
		r.opts.metrics.ModelLoad(ctx, r.family, candidate, elapsed, err)

		if err != nil {
			logger.Warn("model candidate failed", "candidate", candidate, "error", err)
			errs = append(errs, err)
			continue
		}

		logger.Info("model loaded", "candidate", candidate, "duration", elapsed)

		lock := r.shared
		if lock == nil {
			lock = NewInferenceLock()
		}
		return &Handle[M]{
			Family:   r.family,
			Key:      key.String(),
			Artifact: candidate,
			Device:   r.opts.placement,
			LoadedAt: time.Now(),
			runtime:  runtime,
			lock:     lock,
			metrics:  r.opts.metrics,
		}, nil
	}

	logger.Error("model unavailable", "candidates", candidates)
	return nil, &ModelUnavailableError{
		Family:     r.family,
		Key:        key.String(),
		Candidates: candidates,
		Err:        errors.Join(errs...),
	}
}
