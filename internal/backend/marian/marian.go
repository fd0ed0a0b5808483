// Package marian runs MarianMT translation models in resident workers.
package marian

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/device"
	"github.com/notflix/aiservice/internal/mapsafe"
)

//go:embed worker.py
var workerScript []byte

// Config holds what every translation worker is started with.
type Config struct {
	Command string
	// Options: start_timeout.
	Options map[string]any
	// CacheDir is where transformers caches downloaded weights.
	CacheDir string
	Runner   backend.CommandRunner
	Logger   *slog.Logger
}

// ModelName expands a pattern such as "Helsinki-NLP/opus-mt-{source}-{target}".
func ModelName(pattern, source, target string) string {
	return strings.NewReplacer("{source}", source, "{target}", target).Replace(pattern)
}

// Translator is one loaded language-pair model.
type Translator struct {
	worker *backend.Worker
}

type request struct {
	Op    string   `json:"op"`
	Texts []string `json:"texts"`
}

// Load starts a worker holding the named model.
func Load(ctx context.Context, cfg Config, artifact string, placement device.Kind) (*Translator, error) {
	script, err := backend.MaterializeScript("marian_worker.py", workerScript)
	if err != nil {
		return nil, err
	}

	args := []string{"--model", artifact, "--device", string(placement)}
	if cfg.CacheDir != "" {
		args = append(args, "--cache-dir", cfg.CacheDir)
	}

	worker, err := backend.StartWorker(ctx, backend.WorkerSpec{
		Name:         "marian:" + artifact,
		Command:      cfg.Command,
		Script:       script,
		Args:         args,
		Runner:       cfg.Runner,
		StartTimeout: mapsafe.Get(cfg.Options, "start_timeout", 5*time.Minute),
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("marian: load %s: %w", artifact, err)
	}

	return &Translator{worker: worker}, nil
}

// Provider returns the backend provider.
func (t *Translator) Provider() backend.Provider {
	return backend.ProviderMarian
}

// Translate generates one translation per text in a single padded batch.
func (t *Translator) Translate(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}

	var out []string
	err := t.worker.Call(ctx, request{Op: "translate", Texts: texts}, func(msg backend.Message) error {
		if msg.Type != backend.MessageResult {
			return nil
		}
		if err := json.Unmarshal(msg.Data, &out); err != nil {
			return fmt.Errorf("%w: result: %w", backend.ErrWorkerProtocol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close stops the worker.
func (t *Translator) Close() error {
	return t.worker.Close()
}
