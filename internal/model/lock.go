package model

import "context"

// InferenceLock guards a non-reentrant model. Waiters are served in arrival
// order and may give up through their context.
type InferenceLock struct {
	ch chan struct{}
}

// NewInferenceLock returns an unlocked lock.
func NewInferenceLock() *InferenceLock {
	return &InferenceLock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *InferenceLock) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release unlocks. Releasing an unlocked lock panics, like sync.Mutex.
func (l *InferenceLock) Release() {
	select {
	case <-l.ch:
	default:
		panic("model: release of unlocked inference lock")
	}
}
