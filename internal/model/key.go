package model

import (
	"fmt"
	"strings"
)

// Key identifies one resident model inside a family. Keys compare by value.
type Key interface {
	comparable
	String() string
}

// Name keys a family that serves a single named model.
type Name string

func (n Name) String() string { return string(n) }

// Lang keys models that serve a single language.
type Lang string

func (l Lang) String() string { return string(l) }

// Pair keys directed translation models.
type Pair struct {
	Source string
	Target string
}

func (p Pair) String() string { return p.Source + "-" + p.Target }

// NewPair normalizes the language codes of a directed pair.
func NewPair(source, target string) Pair {
	return Pair{
		Source: strings.ToLower(strings.TrimSpace(source)),
		Target: strings.ToLower(strings.TrimSpace(target)),
	}
}

// ParsePair reads the "src-tgt" form produced by Pair.String.
func ParsePair(s string) (Pair, error) {
	source, target, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || source == "" || target == "" {
		return Pair{}, fmt.Errorf("model: invalid language pair %q", s)
	}
	return NewPair(source, target), nil
}
