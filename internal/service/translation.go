package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/model"
)

var langCode = regexp.MustCompile(`^[a-z]{2,3}$`)

// Translation serves directed language-pair models.
type Translation struct {
	models    *model.Registry[model.Pair, backend.Translator]
	batchSize int
	allowed   map[model.Pair]bool
	logger    *slog.Logger
}

// NewTranslation creates the service. Texts are sent to the model in chunks
// of batchSize. A non-empty allow-list rejects every other pair up front.
func NewTranslation(models *model.Registry[model.Pair, backend.Translator], batchSize int, allowed []model.Pair, logger *slog.Logger) *Translation {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	var allow map[model.Pair]bool
	if len(allowed) > 0 {
		allow = make(map[model.Pair]bool, len(allowed))
		for _, p := range allowed {
			allow[p] = true
		}
	}

	return &Translation{models: models, batchSize: batchSize, allowed: allow, logger: logger}
}

// Pair validates a requested source and target.
func (s *Translation) Pair(source, target string) (model.Pair, error) {
	pair := model.NewPair(source, target)

	if !langCode.MatchString(pair.Source) {
		return model.Pair{}, &ValidationError{Field: "source_lang", Value: source, Reason: "not a language code"}
	}
	if !langCode.MatchString(pair.Target) {
		return model.Pair{}, &ValidationError{Field: "target_lang", Value: target, Reason: "not a language code"}
	}
	if pair.Source == pair.Target {
		return model.Pair{}, &ValidationError{Field: "target_lang", Value: target, Reason: "same as source language"}
	}
	if s.allowed != nil && !s.allowed[pair] {
		return model.Pair{}, &ValidationError{Field: "language pair", Value: pair.String(), Reason: "pair is not enabled"}
	}
	return pair, nil
}

// Translate returns one translation per text, in input order. The pair's
// model stays locked across all chunks of the call.
func (s *Translation) Translate(ctx context.Context, texts []string, source, target string) ([]string, error) {
	pair, err := s.Pair(source, target)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return []string{}, nil
	}

	h, err := s.models.Acquire(ctx, pair)
	if err != nil {
		if errors.Is(err, model.ErrModelUnavailable) {
			return nil, &TranslationModelUnavailable{Pair: pair, Err: err}
		}
		return nil, err
	}

	out := make([]string, 0, len(texts))
	err = h.Do(ctx, func(t backend.Translator) error {
		for start := 0; start < len(texts); start += s.batchSize {
			chunk := texts[start:min(start+s.batchSize, len(texts))]

			translated, err := t.Translate(ctx, chunk)
			if err != nil {
				return err
			}
			if len(translated) != len(chunk) {
				return fmt.Errorf("%w: %d translations for %d texts", backend.ErrWorkerProtocol, len(translated), len(chunk))
			}
			out = append(out, translated...)
		}
		return nil
	})
	if err != nil {
		return nil, inferenceFailure("translate "+pair.String(), err)
	}

	s.logger.Debug("Translated batch", "pair", pair.String(), "texts", len(texts))
	return out, nil
}

// Preload loads pairs eagerly.
func (s *Translation) Preload(ctx context.Context, pairs ...model.Pair) error {
	return s.models.Preload(ctx, pairs...)
}
