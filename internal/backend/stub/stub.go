// Package stub provides deterministic runtimes used when the service runs in
// test mode, so the gateway can be exercised without model weights.
package stub

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/notflix/aiservice/internal/backend"
)

// Languages the stub analyzer and translator know.
var supported = map[string]bool{"en": true, "es": true}

// SpeechModel "transcribes" WAV files into one segment per window of audio.
type SpeechModel struct {
	window float64
}

// NewSpeechModel returns a speech model emitting one segment per second.
func NewSpeechModel() *SpeechModel {
	return &SpeechModel{window: 1}
}

// Provider returns the backend provider.
func (m *SpeechModel) Provider() backend.Provider { return backend.ProviderStub }

// TranscribeStream reads the WAV header to learn the duration and emits
// "test" segments covering it. The language is the hint, or "en".
func (m *SpeechModel) TranscribeStream(ctx context.Context, req *backend.TranscribeRequest) (<-chan backend.SpeechChunk, error) {
	ch := make(chan backend.SpeechChunk, 32)

	go func() {
		defer close(ch)

		duration, err := wavDuration(req.AudioPath)
		if err != nil {
			ch <- backend.SpeechChunk{Done: true, Error: err}
			return
		}

		lang := req.Language
		if lang == "" {
			lang = "en"
		}
		ch <- backend.SpeechChunk{Info: &backend.SpeechInfo{Language: lang, LanguageProbability: 1, Duration: duration}}

		for start := 0.0; start < duration; start += m.window {
			end := min(start+m.window, duration)
			ch <- backend.SpeechChunk{Segment: &backend.Segment{Start: start, End: end, Text: "test"}}
		}
		ch <- backend.SpeechChunk{Done: true}
	}()

	return ch, nil
}

// Close is a no-op.
func (m *SpeechModel) Close() error { return nil }

func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", backend.ErrDecode, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, fmt.Errorf("%w: %s is not a WAV file", backend.ErrDecode, path)
	}
	if err := d.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("%w: %w", backend.ErrDecode, err)
	}

	bytesPerSecond := int64(d.SampleRate) * int64(d.NumChans) * int64(d.BitDepth/8)
	if bytesPerSecond == 0 {
		return 0, fmt.Errorf("%w: %s has no audio format", backend.ErrDecode, path)
	}
	return float64(d.PCMLen()) / float64(bytesPerSecond), nil
}

// NewAnalyzer returns a rule-based analyzer for lang.
func NewAnalyzer(lang string) (*Analyzer, error) {
	if !supported[lang] {
		return nil, fmt.Errorf("%w: no stub pipeline for %q", backend.ErrArtifactNotFound, lang)
	}
	return &Analyzer{lang: lang}, nil
}

// NewTranslator returns a translator that tags texts with the target language.
func NewTranslator(source, target string) (*Translator, error) {
	if !supported[source] || !supported[target] || source == target {
		return nil, fmt.Errorf("%w: no stub model for %s-%s", backend.ErrArtifactNotFound, source, target)
	}
	return &Translator{target: target}, nil
}

// Translator prefixes each text with its target language.
type Translator struct {
	target string
}

// Provider returns the backend provider.
func (t *Translator) Provider() backend.Provider { return backend.ProviderStub }

// Translate returns "[target] text" for every text.
func (t *Translator) Translate(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = "[" + t.target + "] " + text
	}
	return out, nil
}

// Close is a no-op.
func (t *Translator) Close() error { return nil }

var errClosed = errors.New("stub: closed")
