package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notflix/aiservice/internal/envvar"
)

const validYAML = `
version: "1"
device: cpu
media:
  root: /srv/media
server:
  http_addr: ":9000"
  api_key: secret
services:
  transcription:
    model: small
    options:
      beam_size: 5
  filter:
    strict: true
    lock_scope: family
    languages:
      de: [de_core_news_lg, de_core_news_sm]
    preload: [de]
  translation:
    batch_size: 8
    pairs: [es-en, en-es]
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validYAML), "")
	require.NoError(t, err)

	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, "/srv/media", cfg.Media.Root)
	assert.Equal(t, ":9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "secret", cfg.Server.APIKey)

	assert.Equal(t, "small", cfg.Services.Transcription.Model)
	assert.Equal(t, RuntimeWhisper, cfg.Services.Transcription.Runtime)
	assert.Equal(t, 5, cfg.Services.Transcription.Options["beam_size"])

	assert.True(t, cfg.Services.Filter.Strict)
	assert.Equal(t, LockScopeFamily, cfg.Services.Filter.LockScope)
	assert.Equal(t, []string{"de_core_news_lg", "de_core_news_sm"}, cfg.Services.Filter.Languages["de"])
	assert.Equal(t, "de", cfg.Services.Filter.DefaultLanguage)

	assert.Equal(t, 8, cfg.Services.Translation.BatchSize)
	assert.Equal(t, DefaultTranslationFormat, cfg.Services.Translation.ModelPattern)
	assert.Equal(t, []string{"es-en", "en-es"}, cfg.Services.Translation.Pairs)

	assert.Equal(t, DefaultFFmpegPath, cfg.Services.Thumbnail.FFmpegPath)
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	tests := map[string]string{
		"missing services": `version: "1"`,
		"bad lock scope":   "version: \"1\"\nservices:\n  filter:\n    lock_scope: global\n",
		"bad pair":         "version: \"1\"\nservices:\n  translation:\n    pairs: [spanish]\n",
		"unknown key":      "version: \"1\"\nservices: {}\nextra: true\n",
		"bad batch size":   "version: \"1\"\nservices:\n  translation:\n    batch_size: 0\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), "")
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("version: [unterminated"), "")
	assert.ErrorContains(t, err, "invalid YAML")
}

func TestLoadAndValidateWithSchemaFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	schemaPath := filepath.Join(dir, "schema.json")

	require.NoError(t, os.WriteFile(configPath, []byte(validYAML), 0o644))
	require.NoError(t, os.WriteFile(schemaPath, []byte(embeddedSchema), 0o644))

	cfg, err := LoadAndValidate(configPath, schemaPath)
	require.NoError(t, err)
	assert.Equal(t, "small", cfg.Services.Transcription.Model)

	_, err = LoadAndValidate(filepath.Join(dir, "missing.yaml"), "")
	assert.ErrorContains(t, err, "failed to read config")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		envvar.AIServiceAPIKey:     "from-env",
		envvar.MediaRoot:           "/data/media",
		envvar.AIServiceTestMode:   "1",
		envvar.AIServiceModelsPath: "/opt/models",
	}

	ApplyEnv(cfg, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, "from-env", cfg.Server.APIKey)
	assert.Equal(t, "/data/media", cfg.Media.Root)
	assert.Equal(t, "/opt/models", cfg.Storage.ModelsDir)
	assert.True(t, cfg.TestMode)
	assert.Equal(t, RuntimeStub, cfg.Services.Transcription.Runtime)
	assert.Equal(t, RuntimeStub, cfg.Services.Filter.Runtime)
	assert.Equal(t, RuntimeStub, cfg.Services.Translation.Runtime)
}

func TestApplyEnvLeavesKeyUnsetWhenAbsent(t *testing.T) {
	cfg := Default()
	ApplyEnv(cfg, func(string) (string, bool) { return "", false })

	assert.Empty(t, cfg.Server.APIKey)
	assert.False(t, cfg.TestMode)
}

func TestParsePair(t *testing.T) {
	src, tgt, err := ParsePair("es-en")
	require.NoError(t, err)
	assert.Equal(t, "es", src)
	assert.Equal(t, "en", tgt)

	for _, bad := range []string{"", "es", "es-", "-en"} {
		_, _, err := ParsePair(bad)
		assert.Error(t, err, bad)
	}
}

func TestShippedExampleConfigIsValid(t *testing.T) {
	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "config.yaml"), "")
	require.NoError(t, err)

	assert.Equal(t, RuntimeMarian, cfg.Services.Translation.Runtime)
	assert.Equal(t, []string{"es", "en"}, cfg.Services.Filter.Preload)
	assert.Len(t, cfg.Models, 2)
}

func TestParseNormalizesFilterLanguages(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1"
services:
  filter:
    languages:
      EN: [en_core_web_sm]
      pt_BR: [pt_core_news_sm]
    default_language: PT_br
    preload: [En]
`), "")
	require.NoError(t, err)

	f := cfg.Services.Filter
	assert.Equal(t, []string{"en_core_web_sm"}, f.Languages["en"])
	assert.Equal(t, []string{"pt_core_news_sm"}, f.Languages["pt-br"])
	assert.NotContains(t, f.Languages, "EN")
	assert.Equal(t, "pt-br", f.DefaultLanguage)
	assert.Equal(t, []string{"en"}, f.Preload)
}

func TestParseRejectsDefaultLanguageWithoutModels(t *testing.T) {
	_, err := Parse([]byte(`
version: "1"
services:
  filter:
    languages:
      es: [es_core_news_sm]
    default_language: fr
`), "")
	require.Error(t, err)
	assert.ErrorContains(t, err, `filter.default_language "fr" is not one of filter.languages`)
}

func TestDefaultLanguageFollowsConfiguredLanguages(t *testing.T) {
	cfg, err := Parse([]byte(`
version: "1"
services:
  filter:
    languages:
      it: [it_core_news_sm]
      de: [de_core_news_sm]
`), "")
	require.NoError(t, err)
	assert.Equal(t, "de", cfg.Services.Filter.DefaultLanguage)
	assert.NoError(t, Default().Validate())
}
