package whisper

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/backend/proctest"
	"github.com/notflix/aiservice/internal/device"
)

func fakeWhisper(stdin io.Reader, stdout, stderr io.Writer) error {
	proctest.Emit(stdout, map[string]any{"type": "ready"})

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		var req transcribeRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			return err
		}
		if req.AudioPath == "/media/broken.wav" {
			proctest.Emit(stdout, map[string]any{"type": "error", "code": "decode_failed", "message": "Invalid data found when processing input"})
			continue
		}

		lang, prob := "es", 0.87
		if req.Language != "" {
			lang, prob = req.Language, 1.0
		}
		proctest.Emit(stdout, map[string]any{"type": "info", "data": map[string]any{"language": lang, "language_probability": prob, "duration": 2.5}})
		proctest.Emit(stdout, map[string]any{"type": "segment", "data": map[string]any{"start": 0.0, "end": 1.2, "text": " Hola"}})
		proctest.Emit(stdout, map[string]any{"type": "segment", "data": map[string]any{"start": 1.2, "end": 2.5, "text": " mundo", "beam": req.BeamSize}})
		proctest.Emit(stdout, map[string]any{"type": "done"})
	}
	return nil
}

func load(t *testing.T, runner *proctest.Runner) *Model {
	t.Helper()
	m, err := Load(context.Background(), Config{
		Command:   "python3",
		Options:   map[string]any{"compute_type": "int8", "beam_size": 3},
		ModelsDir: "/models",
		Runner:    runner,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, "tiny", device.CPU)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func drain(ch <-chan backend.SpeechChunk) (info *backend.SpeechInfo, segs []backend.Segment, err error) {
	for c := range ch {
		switch {
		case c.Info != nil:
			info = c.Info
		case c.Segment != nil:
			segs = append(segs, *c.Segment)
		case c.Done:
			err = c.Error
		}
	}
	return info, segs, err
}

func TestLoadPassesModelArguments(t *testing.T) {
	runner := &proctest.Runner{Script: fakeWhisper}
	m := load(t, runner)

	name, args := runner.LastCommand()
	assert.Equal(t, "python3", name)
	require.NotEmpty(t, args)
	assert.Contains(t, args[0], "whisper_worker")
	assert.Equal(t, []string{"--model", "tiny", "--device", "cpu", "--compute-type", "int8", "--download-root", "/models"}, args[1:])
	assert.Equal(t, 3, m.beamSize)
	assert.Equal(t, backend.ProviderFasterWhisper, m.Provider())
}

func TestTranscribeStreamDetectsLanguage(t *testing.T) {
	m := load(t, &proctest.Runner{Script: fakeWhisper})

	ch, err := m.TranscribeStream(context.Background(), &backend.TranscribeRequest{AudioPath: "/media/a.wav"})
	require.NoError(t, err)

	info, segs, err := drain(ch)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "es", info.Language)
	assert.InDelta(t, 0.87, info.LanguageProbability, 1e-9)
	assert.Equal(t, []backend.Segment{{Start: 0, End: 1.2, Text: " Hola"}, {Start: 1.2, End: 2.5, Text: " mundo"}}, segs)
}

func TestTranscribeStreamDecodeFailure(t *testing.T) {
	m := load(t, &proctest.Runner{Script: fakeWhisper})

	ch, err := m.TranscribeStream(context.Background(), &backend.TranscribeRequest{AudioPath: "/media/broken.wav"})
	require.NoError(t, err)

	info, segs, err := drain(ch)
	assert.Nil(t, info)
	assert.Empty(t, segs)
	assert.ErrorIs(t, err, backend.ErrDecode)

	// the worker stays usable
	ch, err = m.TranscribeStream(context.Background(), &backend.TranscribeRequest{AudioPath: "/media/a.wav", Language: "en"})
	require.NoError(t, err)
	info, _, err = drain(ch)
	require.NoError(t, err)
	assert.Equal(t, "en", info.Language)
}

func TestLoadMissingModel(t *testing.T) {
	runner := &proctest.Runner{Script: func(stdin io.Reader, stdout, stderr io.Writer) error {
		proctest.Emit(stdout, map[string]any{"type": "error", "code": "not_found", "message": "Invalid model size 'huge'"})
		_, _ = io.Copy(io.Discard, stdin)
		return nil
	}}

	_, err := Load(context.Background(), Config{Command: "python3", Runner: runner, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, "huge", device.CPU)
	assert.ErrorIs(t, err, backend.ErrArtifactNotFound)
}
