// Package source prefetches model artifacts so the first request after a
// deploy does not pay for a download.
package source

import (
	"context"
	"fmt"
	"os"

	"github.com/notflix/aiservice/internal/config"
)

// Downloader fetches one model artifact into a target directory.
type Downloader interface {
	// Download returns the local path of the artifact and whether it was
	// already present.
	Download(ctx context.Context, modelConfig *config.ModelConfig, targetDir string) (path string, cached bool, err error)
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(t config.SourceType, opts ...Option) (Downloader, error) {
	switch t {
	case config.SourceTypeHuggingFace:
		return NewHuggingFaceDownloader(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported model source %q", t)
	}
}

// EnsureModelsDirectory creates the models directory if needed.
func EnsureModelsDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	return nil
}
