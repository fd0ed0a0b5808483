package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/logger"
	"github.com/notflix/aiservice/internal/service"
)

type (
	TranslateRequestDTO struct {
		Texts      []string `json:"texts" maxItems:"10000"`
		SourceLang string   `json:"source_lang" example:"es"`
		TargetLang string   `json:"target_lang" example:"en"`
	}

	TranslateInput struct {
		Body TranslateRequestDTO
	}

	TranslateResponseDTO struct {
		Translations []string `json:"translations"`
	}

	TranslateOutput struct {
		Body TranslateResponseDTO
	}
)

type (
	FilterRequestDTO struct {
		Texts       []string `json:"texts" maxItems:"10000"`
		Language    string   `json:"language" example:"es"`
		TranslateTo string   `json:"translate_to,omitempty" doc:"Attach a translation of each content word's lemma" example:"en"`
	}

	FilterInput struct {
		Body FilterRequestDTO
	}

	FilterResponseDTO struct {
		Results [][]backend.Token `json:"results"`
	}

	FilterOutput struct {
		Body FilterResponseDTO
	}
)

// TranslationHandler handles HTTP requests for translation.
type TranslationHandler struct {
	service *service.Translation
}

// NewTranslationHandler creates a new TranslationHandler instance.
func NewTranslationHandler(api huma.API, service *service.Translation) *TranslationHandler {
	h := &TranslationHandler{service: service}

	huma.Register(api, huma.Operation{
		OperationID:   "translate",
		Method:        http.MethodPost,
		Path:          "/translate",
		Summary:       "Translate texts between two languages",
		Tags:          []string{"translation"},
		DefaultStatus: http.StatusOK,
	}, h.handleTranslate)

	return h
}

func (h *TranslationHandler) handleTranslate(ctx context.Context, input *TranslateInput) (*TranslateOutput, error) {
	pair := input.Body.SourceLang + "-" + input.Body.TargetLang
	logger.FromContext(ctx).Info("Translating", "pair", pair, "texts", len(input.Body.Texts))

	out, err := h.service.Translate(ctx, input.Body.Texts, input.Body.SourceLang, input.Body.TargetLang)
	if err != nil {
		return nil, fail(ctx, pair, err)
	}

	return &TranslateOutput{Body: TranslateResponseDTO{Translations: out}}, nil
}

// FilterHandler handles HTTP requests for linguistic analysis.
type FilterHandler struct {
	service *service.Filter
}

// NewFilterHandler creates a new FilterHandler instance.
func NewFilterHandler(api huma.API, service *service.Filter) *FilterHandler {
	h := &FilterHandler{service: service}

	huma.Register(api, huma.Operation{
		OperationID:   "filter",
		Method:        http.MethodPost,
		Path:          "/filter",
		Summary:       "Tokenize, lemmatize and tag texts",
		Tags:          []string{"filter"},
		DefaultStatus: http.StatusOK,
	}, h.handleFilter)

	return h
}

func (h *FilterHandler) handleFilter(ctx context.Context, input *FilterInput) (*FilterOutput, error) {
	lang, err := h.service.Resolve(input.Body.Language)
	if err != nil {
		return nil, fail(ctx, input.Body.Language, err)
	}

	logger.FromContext(ctx).Info("Analyzing", "language", lang, "texts", len(input.Body.Texts))

	docs, err := h.service.AnalyzeBatchResolved(ctx, input.Body.Texts, lang)
	if err != nil {
		return nil, fail(ctx, string(lang), err)
	}

	if target := strings.TrimSpace(input.Body.TranslateTo); target != "" {
		if err := h.service.TranslateLemmas(ctx, docs, string(lang), target); err != nil {
			return nil, fail(ctx, string(lang)+"-"+target, err)
		}
	}

	return &FilterOutput{Body: FilterResponseDTO{Results: docs}}, nil
}
