// Package spacy runs spaCy pipelines in resident workers.
package spacy

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/device"
	"github.com/notflix/aiservice/internal/mapsafe"
)

//go:embed worker.py
var workerScript []byte

// Config holds what every analyzer worker is started with.
type Config struct {
	Command string
	// Options: batch_size, start_timeout.
	Options map[string]any
	Runner  backend.CommandRunner
	Logger  *slog.Logger
}

// Analyzer is one loaded spaCy pipeline.
type Analyzer struct {
	worker    *backend.Worker
	batchSize int
}

type request struct {
	Op        string   `json:"op"`
	Text      string   `json:"text,omitempty"`
	Texts     []string `json:"texts,omitempty"`
	BatchSize int      `json:"batch_size,omitempty"`
}

// Load starts a worker holding the named pipeline (e.g. en_core_web_sm).
func Load(ctx context.Context, cfg Config, artifact string, placement device.Kind) (*Analyzer, error) {
	script, err := backend.MaterializeScript("spacy_worker.py", workerScript)
	if err != nil {
		return nil, err
	}

	worker, err := backend.StartWorker(ctx, backend.WorkerSpec{
		Name:         "spacy:" + artifact,
		Command:      cfg.Command,
		Script:       script,
		Args:         []string{"--model", artifact, "--device", string(placement)},
		Runner:       cfg.Runner,
		StartTimeout: mapsafe.Get(cfg.Options, "start_timeout", 2*time.Minute),
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("spacy: load %s: %w", artifact, err)
	}

	return &Analyzer{
		worker:    worker,
		batchSize: mapsafe.Get(cfg.Options, "batch_size", 64),
	}, nil
}

// Provider returns the backend provider.
func (a *Analyzer) Provider() backend.Provider {
	return backend.ProviderSpacy
}

// Analyze runs the pipeline on one text.
func (a *Analyzer) Analyze(ctx context.Context, text string) ([]backend.Token, error) {
	var tokens []backend.Token
	err := a.worker.Call(ctx, request{Op: "analyze", Text: text}, func(msg backend.Message) error {
		return decodeResult(msg, &tokens)
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// AnalyzeBatch streams texts through nlp.pipe in a single call.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, texts []string) ([][]backend.Token, error) {
	if len(texts) == 0 {
		return [][]backend.Token{}, nil
	}

	var docs [][]backend.Token
	err := a.worker.Call(ctx, request{Op: "pipe", Texts: texts, BatchSize: a.batchSize}, func(msg backend.Message) error {
		return decodeResult(msg, &docs)
	})
	if err != nil {
		return nil, err
	}
	if len(docs) != len(texts) {
		return nil, fmt.Errorf("%w: %d docs for %d texts", backend.ErrWorkerProtocol, len(docs), len(texts))
	}
	return docs, nil
}

// Close stops the worker.
func (a *Analyzer) Close() error {
	return a.worker.Close()
}

func decodeResult(msg backend.Message, v any) error {
	if msg.Type != backend.MessageResult {
		return nil
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return fmt.Errorf("%w: result: %w", backend.ErrWorkerProtocol, err)
	}
	return nil
}
