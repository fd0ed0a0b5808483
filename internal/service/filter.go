package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/config"
	"github.com/notflix/aiservice/internal/model"
)

// FilterOptions selects the language policy of the Filter service.
type FilterOptions struct {
	// Languages lists the supported codes.
	Languages []string
	// DefaultLanguage serves unsupported codes unless Strict is set.
	DefaultLanguage string
	// Strict rejects unsupported codes instead of falling back.
	Strict bool
}

// Filter annotates text with per-language analyzers. Each language model has
// its own inference lock unless its registry was built with a shared lock.
type Filter struct {
	models     *model.Registry[model.Lang, backend.Analyzer]
	opts       FilterOptions
	supported  map[string]bool
	translator *Translation
	logger     *slog.Logger
}

// NewFilter creates the service. translator may be nil, in which case lemma
// translation is rejected.
func NewFilter(models *model.Registry[model.Lang, backend.Analyzer], opts FilterOptions, translator *Translation, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	supported := make(map[string]bool, len(opts.Languages))
	for _, l := range opts.Languages {
		supported[normalizeLang(l)] = true
	}
	opts.DefaultLanguage = normalizeLang(opts.DefaultLanguage)

	return &Filter{
		models:     models,
		opts:       opts,
		supported:  supported,
		translator: translator,
		logger:     logger,
	}
}

// Languages returns the supported language codes, sorted.
func (s *Filter) Languages() []string {
	out := make([]string, 0, len(s.supported))
	for l := range s.supported {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// Resolve maps a requested code to the language whose model will serve it.
// Regional variants such as "en-US" resolve to their base language.
func (s *Filter) Resolve(language string) (model.Lang, error) {
	lang := normalizeLang(language)
	if s.supported[lang] {
		return model.Lang(lang), nil
	}
	if base, _, ok := strings.Cut(lang, "-"); ok && s.supported[base] {
		return model.Lang(base), nil
	}

	if s.opts.Strict {
		return "", &ValidationError{Field: "language", Value: language, Reason: "unsupported language"}
	}

	s.logger.Warn("Unsupported language, using default", "language", language, "default", s.opts.DefaultLanguage)
	return model.Lang(s.opts.DefaultLanguage), nil
}

// Analyze annotates one text.
func (s *Filter) Analyze(ctx context.Context, text, language string) ([]backend.Token, error) {
	h, err := s.acquire(ctx, language)
	if err != nil {
		return nil, err
	}

	var tokens []backend.Token
	err = h.Do(ctx, func(a backend.Analyzer) error {
		var err error
		tokens, err = a.Analyze(ctx, text)
		return err
	})
	if err != nil {
		return nil, inferenceFailure("analyze", err)
	}
	return tokens, nil
}

// AnalyzeBatch annotates texts through the model's batch path. The result
// has one token sequence per text, in input order.
func (s *Filter) AnalyzeBatch(ctx context.Context, texts []string, language string) ([][]backend.Token, error) {
	lang, err := s.Resolve(language)
	if err != nil {
		return nil, err
	}
	return s.AnalyzeBatchResolved(ctx, texts, lang)
}

// AnalyzeBatchResolved is AnalyzeBatch for a language already returned by
// Resolve.
func (s *Filter) AnalyzeBatchResolved(ctx context.Context, texts []string, lang model.Lang) ([][]backend.Token, error) {
	h, err := s.models.Acquire(ctx, lang)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]backend.Token{}, nil
	}

	var docs [][]backend.Token
	err = h.Do(ctx, func(a backend.Analyzer) error {
		var err error
		docs, err = a.AnalyzeBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, inferenceFailure("analyze batch", err)
	}
	if len(docs) != len(texts) {
		return nil, inferenceFailure("analyze batch", backend.ErrWorkerProtocol)
	}
	return docs, nil
}

// TranslateLemmas fills Token.Translation for content words, translating
// each distinct lemma once. Stop words and punctuation are left untouched.
func (s *Filter) TranslateLemmas(ctx context.Context, docs [][]backend.Token, source, target string) error {
	if s.translator == nil {
		return &ValidationError{Field: "translate_to", Value: target, Reason: "translation is not enabled"}
	}

	var lemmas []string
	seen := map[string]bool{}
	for _, doc := range docs {
		for _, tok := range doc {
			if !translatable(tok) || seen[tok.Lemma] {
				continue
			}
			seen[tok.Lemma] = true
			lemmas = append(lemmas, tok.Lemma)
		}
	}
	if len(lemmas) == 0 {
		return nil
	}

	translated, err := s.translator.Translate(ctx, lemmas, source, target)
	if err != nil {
		return err
	}

	byLemma := make(map[string]string, len(lemmas))
	for i, l := range lemmas {
		byLemma[l] = translated[i]
	}
	for _, doc := range docs {
		for i := range doc {
			if !translatable(doc[i]) {
				continue
			}
			tr := byLemma[doc[i].Lemma]
			doc[i].Translation = &tr
		}
	}
	return nil
}

func translatable(tok backend.Token) bool {
	return !tok.IsStop && tok.POS != "PUNCT" && tok.POS != "SPACE" && strings.TrimSpace(tok.Lemma) != ""
}

func (s *Filter) acquire(ctx context.Context, language string) (*model.Handle[backend.Analyzer], error) {
	lang, err := s.Resolve(language)
	if err != nil {
		return nil, err
	}
	return s.models.Acquire(ctx, lang)
}

func normalizeLang(code string) string {
	return config.NormalizeLanguage(code)
}

// Preload loads the analyzers for languages eagerly.
func (s *Filter) Preload(ctx context.Context, languages ...string) error {
	keys := make([]model.Lang, 0, len(languages))
	for _, l := range languages {
		lang, err := s.Resolve(l)
		if err != nil {
			return err
		}
		keys = append(keys, lang)
	}
	return s.models.Preload(ctx, keys...)
}
