// Package backend defines the contracts every model runtime satisfies and the
// process plumbing runtimes are built on.
package backend

import "context"

// Provider identifies the implementation behind a runtime.
type Provider string

const (
	ProviderFasterWhisper Provider = "faster-whisper"
	ProviderSpacy         Provider = "spacy"
	ProviderMarian        Provider = "marian"
	ProviderStub          Provider = "stub"
)

// Segment is a timed piece of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SpeechInfo is what a speech model knows before the first segment.
type SpeechInfo struct {
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
	Duration            float64 `json:"duration,omitempty"`
}

// TranscribeRequest describes one transcription call.
type TranscribeRequest struct {
	// AudioPath is an absolute path to an audio file.
	AudioPath string
	// Language skips detection when set.
	Language string
}

// SpeechChunk is one event of a transcription. Exactly one of Info or
// Segment is set on data chunks; the last chunk has Done set.
type SpeechChunk struct {
	Info    *SpeechInfo
	Segment *Segment
	Done    bool
	Error   error
}

// SpeechModel converts audio into segments. Implementations are not safe for
// concurrent use.
type SpeechModel interface {
	Provider() Provider

	// TranscribeStream starts decoding and returns the chunk channel. The
	// first data chunk carries the SpeechInfo. The channel must be drained.
	TranscribeStream(ctx context.Context, req *TranscribeRequest) (<-chan SpeechChunk, error)

	Close() error
}

// Token is the linguistic analysis of one token.
type Token struct {
	Text        string  `json:"text"`
	Lemma       string  `json:"lemma"`
	POS         string  `json:"pos"`
	IsStop      bool    `json:"is_stop"`
	Whitespace  string  `json:"whitespace"`
	Translation *string `json:"translation,omitempty"`
}

// Analyzer annotates text in one language. Implementations are not safe for
// concurrent use.
type Analyzer interface {
	Provider() Provider

	Analyze(ctx context.Context, text string) ([]Token, error)

	// AnalyzeBatch processes texts through the runtime's native batch path and
	// returns one token sequence per text, in input order.
	AnalyzeBatch(ctx context.Context, texts []string) ([][]Token, error)

	Close() error
}

// Translator translates texts for one directed language pair.
// Implementations are not safe for concurrent use.
type Translator interface {
	Provider() Provider

	// Translate returns one translation per text, in input order.
	Translate(ctx context.Context, texts []string) ([]string, error)

	Close() error
}
