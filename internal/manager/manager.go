// Package manager builds the per-family model registries from configuration
// and owns their lifecycle.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/backend/marian"
	"github.com/notflix/aiservice/internal/backend/spacy"
	"github.com/notflix/aiservice/internal/backend/stub"
	"github.com/notflix/aiservice/internal/backend/whisper"
	"github.com/notflix/aiservice/internal/config"
	"github.com/notflix/aiservice/internal/device"
	"github.com/notflix/aiservice/internal/model"
	"github.com/notflix/aiservice/internal/source"
	"github.com/notflix/aiservice/internal/telemetry"
)

// Family names used in logs, metrics and the /models listing.
const (
	FamilyTranscription = "transcription"
	FamilyFilter        = "filter"
	FamilyTranslation   = "translation"
)

// Option configures a Manager.
type Option func(*Manager)

// WithRunner replaces os/exec for every worker the manager starts.
func WithRunner(r backend.CommandRunner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithMetrics records model measurements.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager orchestrates model lifecycle for every family.
type Manager struct {
	cfg       *config.Config
	placement device.Placement
	runner    backend.CommandRunner
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	transcription *model.Registry[model.Name, backend.SpeechModel]
	filter        *model.Registry[model.Lang, backend.Analyzer]
	translation   *model.Registry[model.Pair, backend.Translator]
}

// New creates the registries. Nothing is loaded until Preload or first use.
func New(cfg *config.Config, placement device.Placement, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:       cfg,
		placement: placement,
		runner:    backend.ExecCommandRunner{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	common := []model.Option{
		model.WithLogger(m.logger),
		model.WithMetrics(m.metrics),
		model.WithPlacement(placement.Kind),
	}

	var err error
	if m.transcription, err = m.newTranscription(common); err != nil {
		return nil, err
	}
	if m.filter, err = m.newFilter(common); err != nil {
		return nil, err
	}
	if m.translation, err = m.newTranslation(common); err != nil {
		return nil, err
	}
	return m, nil
}

// Transcription returns the speech model registry.
func (m *Manager) Transcription() *model.Registry[model.Name, backend.SpeechModel] {
	return m.transcription
}

// Filter returns the analyzer registry.
func (m *Manager) Filter() *model.Registry[model.Lang, backend.Analyzer] {
	return m.filter
}

// Translation returns the translation registry.
func (m *Manager) Translation() *model.Registry[model.Pair, backend.Translator] {
	return m.translation
}

// Placement returns the device decision the models were loaded with.
func (m *Manager) Placement() device.Placement {
	return m.placement
}

// Close stops every resident model.
func (m *Manager) Close() error {
	return errors.Join(m.transcription.Close(), m.filter.Close(), m.translation.Close())
}

func (m *Manager) newTranscription(common []model.Option) (*model.Registry[model.Name, backend.SpeechModel], error) {
	fc := m.cfg.Services.Transcription
	candidates := func(key model.Name) ([]string, error) {
		return []string{string(key)}, nil
	}

	var load model.LoadFunc[model.Name, backend.SpeechModel]
	switch fc.Runtime {
	case config.RuntimeStub:
		load = func(ctx context.Context, _ model.Name, _ string, _ device.Kind) (backend.SpeechModel, error) {
			return stub.NewSpeechModel(), nil
		}
	case config.RuntimeWhisper:
		wc := whisper.Config{
			Command:   fc.Command,
			Options:   fc.Options,
			ModelsDir: filepath.Join(m.cfg.Storage.ModelsDir, "whisper"),
			Runner:    m.runner,
			Logger:    m.logger,
		}
		load = func(ctx context.Context, _ model.Name, artifact string, placement device.Kind) (backend.SpeechModel, error) {
			return whisper.Load(ctx, wc, artifact, placement)
		}
	default:
		return nil, fmt.Errorf("manager: runtime %q cannot serve %s", fc.Runtime, FamilyTranscription)
	}

	return model.NewRegistry(FamilyTranscription, candidates, load, common...), nil
}

func (m *Manager) newFilter(common []model.Option) (*model.Registry[model.Lang, backend.Analyzer], error) {
	fc := m.cfg.Services.Filter
	languages := make(map[string][]string, len(fc.Languages))
	for lang, list := range fc.Languages {
		languages[config.NormalizeLanguage(lang)] = list
	}
	candidates := func(key model.Lang) ([]string, error) {
		list, ok := languages[config.NormalizeLanguage(string(key))]
		if !ok {
			return nil, fmt.Errorf("language %q is not configured", key)
		}
		return list, nil
	}

	var load model.LoadFunc[model.Lang, backend.Analyzer]
	switch fc.Runtime {
	case config.RuntimeStub:
		load = func(ctx context.Context, key model.Lang, _ string, _ device.Kind) (backend.Analyzer, error) {
			return stub.NewAnalyzer(string(key))
		}
	case config.RuntimeSpacy:
		sc := spacy.Config{Command: fc.Command, Options: fc.Options, Runner: m.runner, Logger: m.logger}
		load = func(ctx context.Context, _ model.Lang, artifact string, placement device.Kind) (backend.Analyzer, error) {
			return spacy.Load(ctx, sc, artifact, placement)
		}
	default:
		return nil, fmt.Errorf("manager: runtime %q cannot serve %s", fc.Runtime, FamilyFilter)
	}

	opts := common
	if fc.LockScope == config.LockScopeFamily {
		opts = append(append([]model.Option{}, common...), model.WithSharedLock())
	}
	return model.NewRegistry(FamilyFilter, candidates, load, opts...), nil
}

func (m *Manager) newTranslation(common []model.Option) (*model.Registry[model.Pair, backend.Translator], error) {
	fc := m.cfg.Services.Translation
	candidates := func(key model.Pair) ([]string, error) {
		return []string{marian.ModelName(fc.ModelPattern, key.Source, key.Target)}, nil
	}

	var load model.LoadFunc[model.Pair, backend.Translator]
	switch fc.Runtime {
	case config.RuntimeStub:
		load = func(ctx context.Context, key model.Pair, _ string, _ device.Kind) (backend.Translator, error) {
			return stub.NewTranslator(key.Source, key.Target)
		}
	case config.RuntimeMarian:
		mc := marian.Config{
			Command:  fc.Command,
			Options:  fc.Options,
			CacheDir: filepath.Join(m.cfg.Storage.ModelsDir, "transformers"),
			Runner:   m.runner,
			Logger:   m.logger,
		}
		load = func(ctx context.Context, _ model.Pair, artifact string, placement device.Kind) (backend.Translator, error) {
			return marian.Load(ctx, mc, artifact, placement)
		}
	default:
		return nil, fmt.Errorf("manager: runtime %q cannot serve %s", fc.Runtime, FamilyTranslation)
	}

	return model.NewRegistry(FamilyTranslation, candidates, load, common...), nil
}

// TranslationPairs parses the configured pair list.
func TranslationPairs(cfg *config.Config) ([]model.Pair, error) {
	pairs := make([]model.Pair, 0, len(cfg.Services.Translation.Pairs))
	for _, p := range cfg.Services.Translation.Pairs {
		pair, err := model.ParsePair(p)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// Pull prefetches every model listed under models: in the configuration.
func (m *Manager) Pull(ctx context.Context) error {
	modelsPath := m.cfg.Storage.ModelsDir
	if err := source.EnsureModelsDirectory(modelsPath); err != nil {
		return fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
	}

	var errs []error
	for id, modelConfig := range m.cfg.Models {
		modelSource, err := modelConfig.GetSource()
		if err != nil {
			errs = append(errs, fmt.Errorf("model %s: %w", id, err))
			continue
		}

		downloader, err := source.GetDownloader(modelSource.Type(), source.WithRunner(m.runner), source.WithLogger(m.logger))
		if err != nil {
			errs = append(errs, fmt.Errorf("model %s: %w", id, err))
			continue
		}

		path, cached, err := downloader.Download(ctx, &modelConfig, modelsPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to download model %s into %s: %w", id, modelsPath, err))
			continue
		}
		m.logger.Info("Model available", "model_id", id, "path", path, "cached", cached)
	}
	return errors.Join(errs...)
}

// Resident describes one loaded model.
type Resident struct {
	Family   string      `json:"family"`
	Key      string      `json:"key"`
	Artifact string      `json:"artifact"`
	Device   device.Kind `json:"device"`
	LoadedAt time.Time   `json:"loaded_at"`
}

// Resident lists every loaded model, grouped by family.
func (m *Manager) Resident() []Resident {
	var out []Resident
	for _, h := range m.transcription.Resident() {
		out = append(out, resident(h))
	}
	for _, h := range m.filter.Resident() {
		out = append(out, resident(h))
	}
	for _, h := range m.translation.Resident() {
		out = append(out, resident(h))
	}
	return out
}

func resident[M any](h *model.Handle[M]) Resident {
	return Resident{Family: h.Family, Key: h.Key, Artifact: h.Artifact, Device: h.Device, LoadedAt: h.LoadedAt}
}
