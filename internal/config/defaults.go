package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

const (
	DefaultHTTPAddr          = ":8000"
	DefaultTranscribeModel   = "tiny"
	DefaultFilterLanguage    = "en"
	DefaultTranslationBatch  = 32
	DefaultTranslationFormat = "Helsinki-NLP/opus-mt-{source}-{target}"
	DefaultWorkerCommand     = "python3"
	DefaultFFmpegPath        = "ffmpeg"
	DefaultThumbnailOffset   = "00:00:01"
	DefaultThumbnailTimeout  = "2m"
)

// DefaultConfigPath returns the default path for the aiservice config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "aiservice", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "aiservice")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "aiservice")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "aiservice")
		}
		return filepath.Join(home, ".config", "aiservice")
	}
}

// DefaultModelsPath returns the default path for the models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "aiservice", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "aiservice", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "aiservice", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "aiservice", "models")
		}
		return filepath.Join(home, ".cache", "aiservice", "models")
	}
}

// DefaultFilterLanguages lists the analyzer packages tried per language,
// most accurate first.
func DefaultFilterLanguages() map[string][]string {
	return map[string][]string{
		"es": {"es_core_news_lg", "es_core_news_sm"},
		"en": {"en_core_web_lg", "en_core_web_sm"},
	}
}

// Default returns the configuration used when no config file is present.
// It mirrors the model set the service has always shipped with.
func Default() *Config {
	cfg := &Config{
		Version: "1",
		Services: ServicesConfig{
			Transcription: TranscriptionConfig{Preload: true},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Storage.ModelsDir == "" {
		c.Storage.ModelsDir = DefaultModelsPath()
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.File == "" {
		c.Log.File = "logs/aiservice.log"
	}
	if c.Device == "" {
		c.Device = "auto"
	}

	t := &c.Services.Transcription
	defaultFamily(&t.FamilyConfig, RuntimeWhisper)
	if t.Model == "" {
		t.Model = DefaultTranscribeModel
	}

	f := &c.Services.Filter
	defaultFamily(&f.FamilyConfig, RuntimeSpacy)
	if len(f.Languages) == 0 {
		f.Languages = DefaultFilterLanguages()
	}
	f.Languages = normalizeLanguageKeys(f.Languages)
	f.DefaultLanguage = NormalizeLanguage(f.DefaultLanguage)
	if f.DefaultLanguage == "" {
		f.DefaultLanguage = defaultFilterLanguage(f.Languages)
	}
	for i, l := range f.Preload {
		f.Preload[i] = NormalizeLanguage(l)
	}
	if f.LockScope == "" {
		f.LockScope = LockScopeModel
	}

	tr := &c.Services.Translation
	defaultFamily(&tr.FamilyConfig, RuntimeMarian)
	if tr.ModelPattern == "" {
		tr.ModelPattern = DefaultTranslationFormat
	}
	if tr.BatchSize <= 0 {
		tr.BatchSize = DefaultTranslationBatch
	}

	th := &c.Services.Thumbnail
	if th.FFmpegPath == "" {
		th.FFmpegPath = DefaultFFmpegPath
	}
	if th.Offset == "" {
		th.Offset = DefaultThumbnailOffset
	}
	if th.Timeout == "" {
		th.Timeout = DefaultThumbnailTimeout
	}

	if c.TestMode {
		t.Runtime, f.Runtime, tr.Runtime = RuntimeStub, RuntimeStub, RuntimeStub
	}
}

// NormalizeLanguage lower-cases a language code and uses "-" as the subtag
// separator, so "pt_BR" and "PT-br" name the same key.
func NormalizeLanguage(code string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(code)), "_", "-")
}

func normalizeLanguageKeys(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for lang, candidates := range in {
		out[NormalizeLanguage(lang)] = candidates
	}
	return out
}

// defaultFilterLanguage prefers DefaultFilterLanguage and otherwise the first
// configured language in sort order.
func defaultFilterLanguage(languages map[string][]string) string {
	if _, ok := languages[DefaultFilterLanguage]; ok {
		return DefaultFilterLanguage
	}
	keys := slices.Sorted(maps.Keys(languages))
	if len(keys) == 0 {
		return DefaultFilterLanguage
	}
	return keys[0]
}

// Validate checks the relations the schema cannot express.
func (c *Config) Validate() error {
	f := c.Services.Filter
	if _, ok := f.Languages[f.DefaultLanguage]; !ok {
		return fmt.Errorf("filter.default_language %q is not one of filter.languages", f.DefaultLanguage)
	}
	return nil
}

func defaultFamily(f *FamilyConfig, runtime Runtime) {
	if f.Runtime == "" {
		f.Runtime = runtime
	}
	if f.Command == "" {
		f.Command = DefaultWorkerCommand
	}
	if f.Options == nil {
		f.Options = map[string]any{}
	}
}
