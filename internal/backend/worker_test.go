package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notflix/aiservice/internal/backend/proctest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoWorker answers {"op":"echo","texts":[...]} with the same texts and
// {"op":"stream","n":N} with N segment lines.
func echoWorker(stdin io.Reader, stdout, stderr io.Writer) error {
	fmt.Fprintln(stderr, "loading weights")
	fmt.Fprintln(stdout, "some library banner")
	proctest.Emit(stdout, map[string]any{"type": "ready"})

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		var req struct {
			Op    string   `json:"op"`
			Texts []string `json:"texts"`
			N     int      `json:"n"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			return err
		}
		switch req.Op {
		case "echo":
			proctest.Emit(stdout, map[string]any{"type": "result", "data": req.Texts})
		case "stream":
			for i := range req.N {
				proctest.Emit(stdout, map[string]any{"type": "segment", "data": map[string]any{"start": i, "end": i + 1, "text": "x"}})
			}
			proctest.Emit(stdout, map[string]any{"type": "done"})
		case "fail":
			proctest.Emit(stdout, map[string]any{"type": "error", "code": "decode_failed", "message": "bad audio"})
		case "crash":
			fmt.Fprintln(stderr, "segmentation fault")
			return errors.New("exit status 139")
		}
	}
	return nil
}

func startEcho(t *testing.T) (*Worker, *proctest.Runner) {
	t.Helper()
	runner := &proctest.Runner{Script: echoWorker}
	w, err := StartWorker(context.Background(), WorkerSpec{
		Name:    "echo",
		Command: "python3 -u",
		Script:  "/tmp/worker.py",
		Args:    []string{"--model", "tiny"},
		Runner:  runner,
		Logger:  discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, runner
}

func TestWorkerStartParsesCommand(t *testing.T) {
	_, runner := startEcho(t)

	name, args := runner.LastCommand()
	assert.Equal(t, "python3", name)
	assert.Equal(t, []string{"-u", "/tmp/worker.py", "--model", "tiny"}, args)
	assert.Equal(t, 1, runner.Starts())
}

func TestWorkerCallResult(t *testing.T) {
	w, _ := startEcho(t)

	for range 3 {
		var got []string
		err := w.Call(context.Background(), map[string]any{"op": "echo", "texts": []string{"a", "b"}}, func(m Message) error {
			require.Equal(t, MessageResult, m.Type)
			return json.Unmarshal(m.Data, &got)
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, got)
	}
}

func TestWorkerCallStreamsUntilDone(t *testing.T) {
	w, _ := startEcho(t)

	var types []string
	err := w.Call(context.Background(), map[string]any{"op": "stream", "n": 3}, func(m Message) error {
		types = append(types, m.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{MessageSegment, MessageSegment, MessageSegment, MessageDone}, types)
}

func TestWorkerHandlerErrorDrainsReply(t *testing.T) {
	w, _ := startEcho(t)

	boom := errors.New("consumer failed")
	calls := 0
	err := w.Call(context.Background(), map[string]any{"op": "stream", "n": 4}, func(m Message) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	// the worker is still in sync
	var got []string
	err = w.Call(context.Background(), map[string]any{"op": "echo", "texts": []string{"ok"}}, func(m Message) error {
		return json.Unmarshal(m.Data, &got)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)
}

func TestWorkerErrorMessage(t *testing.T) {
	w, _ := startEcho(t)

	err := w.Call(context.Background(), map[string]any{"op": "fail"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)

	var workerErr *WorkerError
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, "bad audio", workerErr.Message)
}

func TestWorkerCrashBreaksWorker(t *testing.T) {
	w, _ := startEcho(t)

	err := w.Call(context.Background(), map[string]any{"op": "crash"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkerExited)
	assert.Contains(t, err.Error(), "segmentation fault")

	err = w.Call(context.Background(), map[string]any{"op": "echo"}, nil)
	assert.ErrorIs(t, err, ErrWorkerExited)
}

func TestWorkerCallCancelledBeforeSend(t *testing.T) {
	w, _ := startEcho(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Call(ctx, map[string]any{"op": "echo"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerStartupError(t *testing.T) {
	runner := &proctest.Runner{Script: func(stdin io.Reader, stdout, stderr io.Writer) error {
		proctest.Emit(stdout, map[string]any{"type": "error", "code": "not_found", "message": "can't find model 'es_core_news_lg'"})
		_, _ = io.Copy(io.Discard, stdin)
		return nil
	}}

	_, err := StartWorker(context.Background(), WorkerSpec{Name: "spacy", Command: "python3", Runner: runner, Logger: discardLogger()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestWorkerExitsBeforeReady(t *testing.T) {
	runner := &proctest.Runner{Script: func(stdin io.Reader, stdout, stderr io.Writer) error {
		fmt.Fprintln(stderr, "ModuleNotFoundError: No module named 'spacy'")
		return errors.New("exit status 1")
	}}

	_, err := StartWorker(context.Background(), WorkerSpec{Name: "spacy", Command: "python3", Runner: runner, Logger: discardLogger()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkerExited)
	assert.Contains(t, err.Error(), "No module named 'spacy'")
}

func TestWorkerStartTimeout(t *testing.T) {
	runner := &proctest.Runner{Script: func(stdin io.Reader, stdout, stderr io.Writer) error {
		_, _ = io.Copy(io.Discard, stdin)
		return nil
	}}

	_, err := StartWorker(context.Background(), WorkerSpec{
		Name: "slow", Command: "python3", Runner: runner, Logger: discardLogger(), StartTimeout: 20 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
}

func TestWorkerEmptyCommand(t *testing.T) {
	_, err := StartWorker(context.Background(), WorkerSpec{Name: "x", Command: "  "})
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestMaterializeScript(t *testing.T) {
	content := []byte("print('hello')\n")

	path, err := MaterializeScript("hello_worker.py", content)
	require.NoError(t, err)
	assert.Equal(t, ".py", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	again, err := MaterializeScript("hello_worker.py", content)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	other, err := MaterializeScript("hello_worker.py", []byte("print('bye')\n"))
	require.NoError(t, err)
	assert.NotEqual(t, path, other)
}
