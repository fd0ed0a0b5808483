package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/device"
	"github.com/notflix/aiservice/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	return path
}

// fakeSpeech replays a fixed script. When gate is set, the final chunk waits
// for it to close.
type fakeSpeech struct {
	info     *backend.SpeechInfo
	segments []backend.Segment
	err      error
	gate     chan struct{}
}

func (f *fakeSpeech) Provider() backend.Provider { return "fake" }

func (f *fakeSpeech) TranscribeStream(ctx context.Context, req *backend.TranscribeRequest) (<-chan backend.SpeechChunk, error) {
	ch := make(chan backend.SpeechChunk)
	go func() {
		defer close(ch)
		if f.err != nil {
			ch <- backend.SpeechChunk{Done: true, Error: f.err}
			return
		}
		info := *f.info
		ch <- backend.SpeechChunk{Info: &info}
		for i := range f.segments {
			seg := f.segments[i]
			ch <- backend.SpeechChunk{Segment: &seg}
		}
		if f.gate != nil {
			<-f.gate
		}
		ch <- backend.SpeechChunk{Done: true}
	}()
	return ch, nil
}

func (f *fakeSpeech) Close() error { return nil }

func speechRegistry(t *testing.T, m backend.SpeechModel, loads *atomic.Int32) *model.Registry[model.Name, backend.SpeechModel] {
	t.Helper()
	return model.NewRegistry("transcription",
		func(key model.Name) ([]string, error) { return []string{string(key)}, nil },
		func(ctx context.Context, key model.Name, artifact string, _ device.Kind) (backend.SpeechModel, error) {
			if loads != nil {
				loads.Add(1)
			}
			if m == nil {
				return nil, errors.New("model files missing")
			}
			return m, nil
		},
		model.WithLogger(discard()),
	)
}

// fakeAnalyzer tokenizes on spaces and counts which path was used.
type fakeAnalyzer struct {
	lang    string
	singles atomic.Int32
	batches atomic.Int32
	fail    bool
}

func (f *fakeAnalyzer) Provider() backend.Provider { return "fake" }

func (f *fakeAnalyzer) tokens(text string) []backend.Token {
	out := []backend.Token{}
	for _, w := range strings.Fields(text) {
		lower := strings.ToLower(w)
		tok := backend.Token{Text: w, Lemma: lower, POS: "VERB", Whitespace: " "}
		switch lower {
		case "i", "they", "the":
			tok.IsStop, tok.POS = true, "PRON"
		case "ran":
			tok.Lemma = "run"
		case ".":
			tok.POS = "PUNCT"
		}
		out = append(out, tok)
	}
	return out
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) ([]backend.Token, error) {
	f.singles.Add(1)
	if f.fail {
		return nil, errors.New("pipeline crashed")
	}
	return f.tokens(text), nil
}

func (f *fakeAnalyzer) AnalyzeBatch(ctx context.Context, texts []string) ([][]backend.Token, error) {
	f.batches.Add(1)
	if f.fail {
		return nil, errors.New("pipeline crashed")
	}
	out := make([][]backend.Token, len(texts))
	for i, text := range texts {
		out[i] = f.tokens(text)
	}
	return out, nil
}

func (f *fakeAnalyzer) Close() error { return nil }

// analyzerRegistry serves only the languages in analyzers.
func analyzerRegistry(t *testing.T, analyzers map[string]*fakeAnalyzer, opts ...model.Option) *model.Registry[model.Lang, backend.Analyzer] {
	t.Helper()
	opts = append(opts, model.WithLogger(discard()))
	return model.NewRegistry("filter",
		func(key model.Lang) ([]string, error) {
			return []string{string(key) + "_core_lg", string(key) + "_core_sm"}, nil
		},
		func(ctx context.Context, key model.Lang, artifact string, _ device.Kind) (backend.Analyzer, error) {
			a, ok := analyzers[string(key)]
			if !ok || strings.HasSuffix(artifact, "_lg") {
				return nil, backend.ErrArtifactNotFound
			}
			return a, nil
		},
		opts...,
	)
}

// fakeTranslator tags texts and records overlapping calls.
type fakeTranslator struct {
	target   string
	calls    atomic.Int32
	inside   atomic.Int32
	overlaps atomic.Int32
	delay    time.Duration
	short    bool

	mu     sync.Mutex
	chunks [][]string
}

func (f *fakeTranslator) Provider() backend.Provider { return "fake" }

func (f *fakeTranslator) Translate(ctx context.Context, texts []string) ([]string, error) {
	if f.inside.Add(1) > 1 {
		f.overlaps.Add(1)
	}
	defer f.inside.Add(-1)

	f.calls.Add(1)
	f.mu.Lock()
	f.chunks = append(f.chunks, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = f.target + ":" + text
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeTranslator) Close() error { return nil }

func translatorRegistry(t *testing.T, translators map[string]*fakeTranslator) *model.Registry[model.Pair, backend.Translator] {
	t.Helper()
	return model.NewRegistry("translation",
		func(key model.Pair) ([]string, error) { return []string{"opus-mt-" + key.String()}, nil },
		func(ctx context.Context, key model.Pair, artifact string, _ device.Kind) (backend.Translator, error) {
			tr, ok := translators[key.String()]
			if !ok {
				return nil, backend.ErrArtifactNotFound
			}
			return tr, nil
		},
		model.WithLogger(discard()),
	)
}
