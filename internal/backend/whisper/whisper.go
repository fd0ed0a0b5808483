// Package whisper runs faster-whisper speech models in resident workers.
package whisper

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

// Config holds what every speech worker is started with.
type Config struct {
	// Command is the Python interpreter command line.
	Command string
	// Options: compute_type, beam_size, start_timeout.
	Options map[string]any
	// ModelsDir is passed as the download root.
	ModelsDir string
	Runner    backend.CommandRunner
	Logger    *slog.Logger
}

// Model is a loaded faster-whisper model.
type Model struct {
	worker   *backend.Worker
	beamSize int
}

type transcribeRequest struct {
	Op        string `json:"op"`
	AudioPath string `json:"audio_path"`
	Language  string `json:"language,omitempty"`
	BeamSize  int    `json:"beam_size"`
}

// Load starts a worker holding the named model (tiny, base, small, ...).
func Load(ctx context.Context, cfg Config, artifact string, placement device.Kind) (*Model, error) {
	script, err := backend.MaterializeScript("whisper_worker.py", workerScript)
	if err != nil {
		return nil, err
	}

	computeType := mapsafe.Get(cfg.Options, "compute_type", "float32")
	args := []string{"--model", artifact, "--device", string(placement), "--compute-type", computeType}
	if cfg.ModelsDir != "" {
		args = append(args, "--download-root", cfg.ModelsDir)
	}

	worker, err := backend.StartWorker(ctx, backend.WorkerSpec{
		Name:         "whisper:" + artifact,
		Command:      cfg.Command,
		Script:       script,
		Args:         args,
		Runner:       cfg.Runner,
		StartTimeout: mapsafe.Get(cfg.Options, "start_timeout", 5*time.Minute),
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("whisper: load %s: %w", artifact, err)
	}

	return &Model{
		worker:   worker,
		beamSize: mapsafe.Get(cfg.Options, "beam_size", 5),
	}, nil
}

// Provider returns the backend provider.
func (m *Model) Provider() backend.Provider {
	return backend.ProviderFasterWhisper
}

// TranscribeStream sends the file to the worker and relays its events.
func (m *Model) TranscribeStream(ctx context.Context, req *backend.TranscribeRequest) (<-chan backend.SpeechChunk, error) {
	ch := make(chan backend.SpeechChunk, 32)

	go func() {
		defer close(ch)

		err := m.worker.Call(ctx, transcribeRequest{
			Op:        "transcribe",
			AudioPath: req.AudioPath,
			Language:  req.Language,
			BeamSize:  m.beamSize,
		}, func(msg backend.Message) error {
			switch msg.Type {
			case backend.MessageInfo:
				var info backend.SpeechInfo
				if err := json.Unmarshal(msg.Data, &info); err != nil {
					return fmt.Errorf("%w: info: %w", backend.ErrWorkerProtocol, err)
				}
				ch <- backend.SpeechChunk{Info: &info}
			case backend.MessageSegment:
				var seg backend.Segment
				if err := json.Unmarshal(msg.Data, &seg); err != nil {
					return fmt.Errorf("%w: segment: %w", backend.ErrWorkerProtocol, err)
				}
				ch <- backend.SpeechChunk{Segment: &seg}
			}
			return nil
		})

		ch <- backend.SpeechChunk{Done: true, Error: err}
	}()

	return ch, nil
}

// Close stops the worker.
func (m *Model) Close() error {
	return m.worker.Close()
}
