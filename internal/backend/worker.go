package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// Message types of the worker protocol. A worker writes one JSON object per
// line on stdout; result, done and error end a call.
const (
	MessageReady   = "ready"
	MessageInfo    = "info"
	MessageSegment = "segment"
	MessageResult  = "result"
	MessageDone    = "done"
	MessageError   = "error"
)

const defaultStartTimeout = 5 * time.Minute

// Message is one line written by a worker.
type Message struct {
	Type    string          `json:"type"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (m Message) terminal() bool {
	return m.Type == MessageResult || m.Type == MessageDone || m.Type == MessageError
}

// WorkerSpec describes how to launch a worker.
type WorkerSpec struct {
	// Name identifies the worker in logs.
	Name string
	// Command is the interpreter command line, e.g. "python3 -u".
	Command string
	// Script is appended to Command when set.
	Script string
	Args   []string

	Runner       CommandRunner
	StartTimeout time.Duration
	Logger       *slog.Logger
}

type line struct {
	data []byte
}

// Worker is a resident process holding one loaded model. It serves one call
// at a time over stdin/stdout.
type Worker struct {
	name   string
	logger *slog.Logger

	stdin  *io.PipeWriter
	lines  chan line
	cancel context.CancelFunc
	exited chan struct{}
	quit   chan struct{}
	once   sync.Once
	stderr *tail

	waitErr error

	mu     sync.Mutex
	broken error
}

// StartWorker launches the worker and waits for its ready message. A worker
// that reports an error during startup is stopped and the error returned.
func StartWorker(ctx context.Context, spec WorkerSpec) (*Worker, error) {
	parser := shellwords.NewParser()
	parts, err := parser.Parse(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("parse worker command: %w", err)
	}
	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}

	args := append([]string{}, parts[1:]...)
	if spec.Script != "" {
		args = append(args, spec.Script)
	}
	args = append(args, spec.Args...)

	runner := spec.Runner
	if runner == nil {
		runner = ExecCommandRunner{}
	}
	logger := spec.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := spec.StartTimeout
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}

	procCtx, cancel := context.WithCancel(context.Background())
	stdinR, stdinW := io.Pipe()

	stdout, stderr, wait, err := runner.Start(procCtx, parts[0], args, stdinR)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start worker %s: %w", spec.Name, err)
	}

	w := &Worker{
		name:   spec.Name,
		logger: logger.With("worker", spec.Name),
		stdin:  stdinW,
		lines:  make(chan line),
		cancel: cancel,
		exited: make(chan struct{}),
		quit:   make(chan struct{}),
		stderr: newTail(4096),
	}

	stderrDone := make(chan struct{})
	go w.drainStderr(stderr, stderrDone)
	go w.readStdout(stdout, stderrDone, wait)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		var msg Message
		select {
		case l, ok := <-w.lines:
			if !ok {
				return nil, w.exitError()
			}
			if !w.decode(l, &msg) {
				continue
			}
		case <-timer.C:
			w.kill()
			return nil, fmt.Errorf("worker %s not ready after %s", spec.Name, timeout)
		case <-ctx.Done():
			w.kill()
			return nil, ctx.Err()
		}

		switch msg.Type {
		case MessageReady:
			w.logger.Debug("Worker ready")
			return w, nil
		case MessageError:
			_ = w.Close()
			return nil, &WorkerError{Code: msg.Code, Message: msg.Message}
		default:
			w.logger.Warn("Unexpected message before ready", "type", msg.Type)
		}
	}
}

// Call sends req and passes every message of the reply to handle until the
// worker ends the call. Once req is written the call runs to completion; ctx
// is only checked before sending. The first error returned by handle is
// reported after the reply is drained.
func (w *Worker) Call(ctx context.Context, req any, handle func(Message) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken != nil {
		return w.broken
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode worker request: %w", err)
	}
	if _, err := w.stdin.Write(append(payload, '\n')); err != nil {
		w.broken = w.exitError()
		return w.broken
	}

	var handleErr error
	for {
		l, ok := <-w.lines
		if !ok {
			w.broken = w.exitError()
			return w.broken
		}

		var msg Message
		if !w.decode(l, &msg) {
			continue
		}

		if msg.Type == MessageError {
			return &WorkerError{Code: msg.Code, Message: msg.Message}
		}
		if handleErr == nil && handle != nil {
			handleErr = handle(msg)
		}
		if msg.terminal() {
			return handleErr
		}
	}
}

// Close stops the worker, waiting for an in-flight call first.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.broken == nil {
		w.broken = fmt.Errorf("%w: closed", ErrWorkerExited)
	}

	_ = w.stdin.Close()
	w.stopReading()

	select {
	case <-w.exited:
	case <-time.After(5 * time.Second):
		w.logger.Warn("Worker did not exit, killing")
		w.kill()
	}
	w.cancel()
	return nil
}

func (w *Worker) kill() {
	w.cancel()
	_ = w.stdin.Close()
	w.stopReading()
	<-w.exited
}

// stopReading lets the stdout reader discard output nobody will consume.
func (w *Worker) stopReading() {
	w.once.Do(func() { close(w.quit) })
}

func (w *Worker) decode(l line, msg *Message) bool {
	if err := json.Unmarshal(l.data, msg); err != nil || msg.Type == "" {
		w.logger.Debug("Ignoring worker output", "line", string(l.data))
		return false
	}
	return true
}

func (w *Worker) readStdout(stdout io.Reader, stderrDone <-chan struct{}, wait func() error) {
	reader := bufio.NewReader(stdout)
	for {
		data, err := reader.ReadBytes('\n')
		if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
			select {
			case w.lines <- line{data: []byte(trimmed)}:
			case <-w.quit:
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Debug("Worker stdout closed", "error", err)
			}
			break
		}
	}

	// Unblock the stdin copier so wait can return.
	_ = w.stdin.Close()
	<-stderrDone
	w.waitErr = wait()
	close(w.lines)
	close(w.exited)
}

func (w *Worker) drainStderr(stderr io.Reader, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		w.stderr.add(text)
		w.logger.Debug("Worker stderr", "line", text)
	}
}

func (w *Worker) exitError() error {
	<-w.exited

	var detail []string
	if w.waitErr != nil {
		detail = append(detail, w.waitErr.Error())
	}
	if s := w.stderr.String(); s != "" {
		detail = append(detail, s)
	}
	if len(detail) == 0 {
		return ErrWorkerExited
	}
	return fmt.Errorf("%w: %s", ErrWorkerExited, strings.Join(detail, ": "))
}

// tail keeps the last bytes of a worker's stderr for error reports.
type tail struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTail(limit int) *tail { return &tail{limit: limit} }

func (t *tail) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, s...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
