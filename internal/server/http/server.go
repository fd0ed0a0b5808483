// Package http exposes the services over HTTP with huma.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/notflix/aiservice/internal/manager"
	"github.com/notflix/aiservice/internal/service"
)

// Services groups everything the handlers call into.
type Services struct {
	Transcription *service.Transcription
	Filter        *service.Filter
	Translation   *service.Translation
	Thumbnail     *service.Thumbnail
}

// ResidentLister reports the loaded models.
type ResidentLister interface {
	Resident() []manager.Resident
}

// Options configures the gateway.
type Options struct {
	// MediaRoot bounds every file path a client may name.
	MediaRoot string
	// APIKey returns the current shared secret. Empty disables the check.
	APIKey func() string
	// GPU is reported by /health.
	GPU bool
	// Models backs /models.
	Models ResidentLister
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	Version string
}

// Register installs the middleware and every operation on api.
func Register(api huma.API, services Services, opts Options) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.APIKey == nil {
		opts.APIKey = func() string { return "" }
	}

	api.UseMiddleware(
		requestIDMiddleware(opts.Logger),
		apiKeyMiddleware(api, opts.APIKey),
	)

	NewHealthHandler(api, opts.GPU, opts.Models)
	NewTranscriptionHandler(api, services.Transcription, opts.MediaRoot)
	NewTranslationHandler(api, services.Translation)
	NewFilterHandler(api, services.Filter)
	NewThumbnailHandler(api, services.Thumbnail, opts.MediaRoot)
}

// Server is the HTTP listener.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the ServeMux, the huma API on top of it and the listener.
func NewServer(addr string, services Services, opts Options) *Server {
	mux := http.NewServeMux()

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	config := huma.DefaultConfig("AI Service", version)
	config.Info.Description = "Stateless inference gateway: transcription, linguistic filtering, translation and thumbnails."
	api := humago.New(mux, config)

	Register(api, services, opts)

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe blocks until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
