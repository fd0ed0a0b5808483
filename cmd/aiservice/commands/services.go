package commands

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/config"
	"github.com/notflix/aiservice/internal/manager"
	"github.com/notflix/aiservice/internal/model"
	httpserver "github.com/notflix/aiservice/internal/server/http"
	"github.com/notflix/aiservice/internal/service"
	"github.com/notflix/aiservice/internal/telemetry"
)

func newServices(cfg *config.Config, mgr *manager.Manager, metrics *telemetry.Metrics, log *slog.Logger) (httpserver.Services, error) {
	pairs, err := manager.TranslationPairs(cfg)
	if err != nil {
		return httpserver.Services{}, err
	}

	languages := make([]string, 0, len(cfg.Services.Filter.Languages))
	for lang := range cfg.Services.Filter.Languages {
		languages = append(languages, lang)
	}
	slices.Sort(languages)

	th := cfg.Services.Thumbnail
	timeout, err := time.ParseDuration(th.Timeout)
	if err != nil {
		return httpserver.Services{}, fmt.Errorf("thumbnail timeout %q: %w", th.Timeout, err)
	}
	ffmpeg, err := backend.NewExecutor(th.FFmpegPath, timeout)
	if err != nil {
		log.Warn("ffmpeg not found, thumbnails will fail", "path", th.FFmpegPath, "error", err)
		ffmpeg = backend.NewExecutorWithRunner(th.FFmpegPath, timeout, backend.ExecCommandRunner{})
	}

	translation := service.NewTranslation(mgr.Translation(), cfg.Services.Translation.BatchSize, pairs, log.With("service", "translation"))

	return httpserver.Services{
		Transcription: service.NewTranscription(mgr.Transcription(), cfg.Services.Transcription.Model, log.With("service", "transcription")),
		Filter: service.NewFilter(mgr.Filter(), service.FilterOptions{
			Languages:       languages,
			DefaultLanguage: cfg.Services.Filter.DefaultLanguage,
			Strict:          cfg.Services.Filter.Strict,
		}, translation, log.With("service", "filter")),
		Translation: translation,
		Thumbnail:   service.NewThumbnail(ffmpeg, th.Offset, metrics, log.With("service", "thumbnail")),
	}, nil
}

// preload loads the models listed for eager loading. Failures are logged
// and left to be retried by the first request that needs the model.
func preload(ctx context.Context, cfg *config.Config, services httpserver.Services, log *slog.Logger) {
	if cfg.Services.Transcription.Preload {
		if err := services.Transcription.Preload(ctx); err != nil {
			log.Error("Failed to preload transcription model", "error", err)
		}
	}

	if langs := cfg.Services.Filter.Preload; len(langs) > 0 {
		if err := services.Filter.Preload(ctx, langs...); err != nil {
			log.Error("Failed to preload filter models", "error", err)
		}
	}

	if len(cfg.Services.Translation.Preload) > 0 {
		pairs := make([]model.Pair, 0, len(cfg.Services.Translation.Preload))
		for _, p := range cfg.Services.Translation.Preload {
			pair, err := model.ParsePair(p)
			if err != nil {
				log.Error("Invalid translation preload entry", "pair", p, "error", err)
				continue
			}
			pairs = append(pairs, pair)
		}
		if err := services.Translation.Preload(ctx, pairs...); err != nil {
			log.Error("Failed to preload translation models", "error", err)
		}
	}
}
