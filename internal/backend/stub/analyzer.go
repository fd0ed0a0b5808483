package stub

import (
	"context"
	"strings"
	"unicode"

	"github.com/notflix/aiservice/internal/backend"
)

var stopWords = map[string]map[string]bool{
	"en": set("a", "an", "the", "and", "or", "but", "is", "are", "was", "were", "be", "to", "of", "in", "on", "at", "i", "you", "he", "she", "it", "we", "they", "this", "that"),
	"es": set("el", "la", "los", "las", "un", "una", "y", "o", "pero", "es", "son", "de", "del", "en", "a", "yo", "tú", "él", "ella", "nosotros", "ellos", "que", "se", "lo"),
}

var pronouns = map[string]map[string]bool{
	"en": set("i", "you", "he", "she", "it", "we", "they", "me", "him", "her", "us", "them"),
	"es": set("yo", "tú", "él", "ella", "nosotros", "vosotros", "ellos", "ellas", "me", "te", "se"),
}

var lemmas = map[string]map[string]string{
	"en": {"ran": "run", "runs": "run", "running": "run", "is": "be", "are": "be", "was": "be", "were": "be", "went": "go", "goes": "go"},
	"es": {"corro": "correr", "corre": "correr", "corrió": "correr", "soy": "ser", "es": "ser", "son": "ser", "fue": "ir"},
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Analyzer splits on whitespace and punctuation and annotates with small
// per-language tables.
type Analyzer struct {
	lang   string
	closed bool
}

// Provider returns the backend provider.
func (a *Analyzer) Provider() backend.Provider { return backend.ProviderStub }

// Analyze tokenizes one text.
func (a *Analyzer) Analyze(ctx context.Context, text string) ([]backend.Token, error) {
	if a.closed {
		return nil, errClosed
	}
	return a.analyze(text), nil
}

// AnalyzeBatch tokenizes every text.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, texts []string) ([][]backend.Token, error) {
	if a.closed {
		return nil, errClosed
	}
	out := make([][]backend.Token, len(texts))
	for i, text := range texts {
		out[i] = a.analyze(text)
	}
	return out, nil
}

// Close marks the analyzer unusable.
func (a *Analyzer) Close() error {
	a.closed = true
	return nil
}

func (a *Analyzer) analyze(text string) []backend.Token {
	tokens := []backend.Token{}
	for _, piece := range split(text) {
		lower := strings.ToLower(piece.text)
		tok := backend.Token{
			Text:       piece.text,
			Lemma:      lower,
			POS:        "X",
			IsStop:     stopWords[a.lang][lower],
			Whitespace: piece.space,
		}
		if l, ok := lemmas[a.lang][lower]; ok {
			tok.Lemma = l
		}
		switch {
		case isPunct(piece.text):
			tok.POS = "PUNCT"
		case pronouns[a.lang][lower]:
			tok.POS = "PRON"
		case isNumber(piece.text):
			tok.POS = "NUM"
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

type piece struct {
	text  string
	space string
}

// split breaks text on whitespace and peels punctuation off word edges.
func split(text string) []piece {
	var out []piece
	fields := strings.Fields(text)
	for i, field := range fields {
		runes := []rune(field)
		start, end := 0, len(runes)
		for start < end && unicode.IsPunct(runes[start]) {
			start++
		}
		for end > start && unicode.IsPunct(runes[end-1]) {
			end--
		}

		var parts []string
		for _, r := range runes[:start] {
			parts = append(parts, string(r))
		}
		if start < end {
			parts = append(parts, string(runes[start:end]))
		}
		for _, r := range runes[end:] {
			parts = append(parts, string(r))
		}

		for j, p := range parts {
			space := ""
			if j == len(parts)-1 && i < len(fields)-1 {
				space = " "
			}
			out = append(out, piece{text: p, space: space})
		}
	}
	return out
}

func isPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return s != ""
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			return false
		}
	}
	return s != ""
}
