package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/telemetry"
	"github.com/notflix/aiservice/internal/xfs"
)

const maxStderr = 2048

// Thumbnail extracts a still frame from a video with one ffmpeg process per
// call. Calls share nothing, so they run concurrently.
type Thumbnail struct {
	executor *backend.Executor
	offset   string
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewThumbnail creates the service. offset is an ffmpeg time such as
// "00:00:01".
func NewThumbnail(executor *backend.Executor, offset string, metrics *telemetry.Metrics, logger *slog.Logger) *Thumbnail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Thumbnail{executor: executor, offset: offset, metrics: metrics, logger: logger}
}

// Generate writes <source without extension>.jpg next to the source and
// returns its path. sourcePath must already be validated.
func (s *Thumbnail) Generate(ctx context.Context, sourcePath string) (string, error) {
	if !xfs.Exists(sourcePath) {
		return "", &ResourceMissingError{Path: sourcePath}
	}

	thumbPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + ".jpg"
	if thumbPath == sourcePath {
		thumbPath = sourcePath + ".thumb.jpg"
	}

	args := []string{"-y", "-i", sourcePath, "-ss", s.offset, "-vframes", "1", thumbPath}
	s.logger.Info("Running ffmpeg", "command", s.executor.BinaryPath()+" "+strings.Join(args, " "))

	_, stderr, err := s.executor.Execute(ctx, args, nil)
	s.metrics.ExternalProcess(ctx, "ffmpeg", err)
	if err != nil {
		return "", &ExternalProcessFailure{Process: "ffmpeg", Stderr: tailString(stderr, maxStderr), Err: err}
	}

	return thumbPath, nil
}

func tailString(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
