// Package proctest provides in-process stand-ins for external programs.
package proctest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Script plays the part of a started process.
type Script func(stdin io.Reader, stdout, stderr io.Writer) error

// RunFunc plays the part of a process run to completion.
type RunFunc func(name string, args []string) (stdout, stderr []byte, err error)

// Runner records invocations and serves them from Script and Run.
type Runner struct {
	Script Script
	OnRun  RunFunc

	mu       sync.Mutex
	starts   int
	runs     int
	lastName string
	lastArgs []string
}

// Starts returns how many processes were started.
func (r *Runner) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// Runs returns how many processes were run to completion.
func (r *Runner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// Invocations returns Starts plus Runs.
func (r *Runner) Invocations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts + r.runs
}

// LastCommand returns the most recent program name and arguments.
func (r *Runner) LastCommand() (string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastName, append([]string(nil), r.lastArgs...)
}

func (r *Runner) record(name string, args []string, start bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if start {
		r.starts++
	} else {
		r.runs++
	}
	r.lastName, r.lastArgs = name, append([]string(nil), args...)
}

// Run serves a run-to-completion invocation from OnRun.
func (r *Runner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	r.record(name, args, false)
	if r.OnRun == nil {
		return nil, nil, errors.New("proctest: no run func")
	}
	return r.OnRun(name, args)
}

// Start runs Script on a goroutine wired to pipes.
func (r *Runner) Start(ctx context.Context, name string, args []string, stdin io.Reader) (io.ReadCloser, io.ReadCloser, func() error, error) {
	r.record(name, args, true)
	if r.Script == nil {
		return nil, nil, nil, errors.New("proctest: no script")
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	done := make(chan error, 1)

	go func() {
		err := r.Script(stdin, outW, errW)
		outW.Close()
		errW.Close()
		done <- err
	}()

	return outR, errR, func() error { return <-done }, nil
}

// Emit writes v as one JSON line.
func Emit(w io.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	fmt.Fprintf(w, "%s\n", data)
}
