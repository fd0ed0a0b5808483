package config

import (
	"errors"
	"fmt"
	"strings"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"
)

// Runtime names the implementation backing a model family.
type Runtime string

const (
	RuntimeWhisper Runtime = "whisper"
	RuntimeSpacy   Runtime = "spacy"
	RuntimeMarian  Runtime = "marian"
	RuntimeStub    Runtime = "stub"
)

// LockScope selects how inference locks are shared inside a family.
type LockScope string

const (
	// LockScopeModel gives every resident model its own lock.
	LockScopeModel LockScope = "model"
	// LockScopeFamily serializes the whole family through one lock.
	LockScopeFamily LockScope = "family"
)

// Config holds the main configuration for the application.
type Config struct {
	Version   string                 `json:"version"             yaml:"version"`
	Storage   StorageConfig          `json:"storage,omitempty"   yaml:"storage,omitempty"`
	Media     MediaConfig            `json:"media,omitempty"     yaml:"media,omitempty"`
	Server    ServerConfig           `json:"server,omitempty"    yaml:"server,omitempty"`
	Log       LogConfig              `json:"log,omitempty"       yaml:"log,omitempty"`
	Telemetry TelemetryConfig        `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	Device    string                 `json:"device,omitempty"    yaml:"device,omitempty"`
	TestMode  bool                   `json:"test_mode,omitempty" yaml:"test_mode,omitempty"`
	Models    map[string]ModelConfig `json:"models,omitempty"    yaml:"models,omitempty"`
	Services  ServicesConfig         `json:"services"            yaml:"services"`
}

// StorageConfig holds configuration for model artifacts on disk.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// MediaConfig holds the shared media directory.
type MediaConfig struct {
	Root string `json:"root,omitempty" yaml:"root,omitempty"`
}

// ServerConfig holds listener and access settings.
type ServerConfig struct {
	HTTPAddr string `json:"http_addr,omitempty" yaml:"http_addr,omitempty"`
	GRPCAddr string `json:"grpc_addr,omitempty" yaml:"grpc_addr,omitempty"`
	APIKey   string `json:"api_key,omitempty"   yaml:"api_key,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty"   yaml:"level,omitempty"`
	File   string `json:"file,omitempty"    yaml:"file,omitempty"`
	ToFile bool   `json:"to_file,omitempty" yaml:"to_file,omitempty"`
}

// TelemetryConfig toggles the metrics endpoint.
type TelemetryConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// ModelConfig describes a downloadable model artifact.
type ModelConfig struct {
	Source SourceConfig `json:"source"         yaml:"source"`
	Type   string       `json:"type,omitempty" yaml:"type,omitempty"`
	Tags   []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
}

// ServicesConfig holds configuration for all model families.
type ServicesConfig struct {
	Transcription TranscriptionConfig `json:"transcription" yaml:"transcription"`
	Filter        FilterConfig        `json:"filter"        yaml:"filter"`
	Translation   TranslationConfig   `json:"translation"   yaml:"translation"`
	Thumbnail     ThumbnailConfig     `json:"thumbnail"     yaml:"thumbnail"`
}

// FamilyConfig holds the settings shared by every model family.
type FamilyConfig struct {
	Runtime Runtime        `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Command string         `json:"command,omitempty" yaml:"command,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// TranscriptionConfig configures the speech model.
type TranscriptionConfig struct {
	FamilyConfig `yaml:",inline"`
	Model        string `json:"model,omitempty"   yaml:"model,omitempty"`
	Preload      bool   `json:"preload,omitempty" yaml:"preload,omitempty"`
}

// FilterConfig configures the linguistic analyzers.
type FilterConfig struct {
	FamilyConfig    `yaml:",inline"`
	Languages       map[string][]string `json:"languages,omitempty"        yaml:"languages,omitempty"`
	DefaultLanguage string              `json:"default_language,omitempty" yaml:"default_language,omitempty"`
	Strict          bool                `json:"strict,omitempty"           yaml:"strict,omitempty"`
	LockScope       LockScope           `json:"lock_scope,omitempty"       yaml:"lock_scope,omitempty"`
	Preload         []string            `json:"preload,omitempty"          yaml:"preload,omitempty"`
}

// TranslationConfig configures the language-pair models.
type TranslationConfig struct {
	FamilyConfig `yaml:",inline"`
	ModelPattern string   `json:"model_pattern,omitempty" yaml:"model_pattern,omitempty"`
	BatchSize    int      `json:"batch_size,omitempty"    yaml:"batch_size,omitempty"`
	Pairs        []string `json:"pairs,omitempty"         yaml:"pairs,omitempty"`
	Preload      []string `json:"preload,omitempty"       yaml:"preload,omitempty"`
}

// ThumbnailConfig configures the ffmpeg collaborator.
type ThumbnailConfig struct {
	FFmpegPath string `json:"ffmpeg_path,omitempty" yaml:"ffmpeg_path,omitempty"`
	Offset     string `json:"offset,omitempty"      yaml:"offset,omitempty"`
	Timeout    string `json:"timeout,omitempty"     yaml:"timeout,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// GetSource returns the active source for the model.
func (m *ModelConfig) GetSource() (ModelSource, error) {
	if m.Source.HuggingFace != nil {
		return *m.Source.HuggingFace, nil
	}

	return nil, errors.New("no source configured for model")
}

// ParsePair splits "es-en" into its source and target codes.
func ParsePair(s string) (source, target string, err error) {
	source, target, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || source == "" || target == "" {
		return "", "", fmt.Errorf("invalid language pair %q, want <source>-<target>", s)
	}
	return source, target, nil
}
