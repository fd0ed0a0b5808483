package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/notflix/aiservice/internal/backend"
	"github.com/notflix/aiservice/internal/config"
)

const (
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Minute
	markerFilename    = ".aiservice-downloaded"
)

// Option configures a HuggingFaceDownloader.
type Option func(*HuggingFaceDownloader)

// WithRunner replaces os/exec.
func WithRunner(r backend.CommandRunner) Option {
	return func(d *HuggingFaceDownloader) { d.runner = r }
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *HuggingFaceDownloader) { d.retryDelay = delay }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *HuggingFaceDownloader) { d.logger = logger }
}

// HuggingFaceDownloader downloads repositories with the hf CLI.
type HuggingFaceDownloader struct {
	binary     string
	runner     backend.CommandRunner
	retryDelay time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewHuggingFaceDownloader creates a downloader that shells out to hf.
func NewHuggingFaceDownloader(opts ...Option) *HuggingFaceDownloader {
	d := &HuggingFaceDownloader{
		binary:     "hf",
		runner:     backend.ExecCommandRunner{},
		retryDelay: defaultRetryDelay,
		maxRetries: defaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download downloads a Hugging Face repository to the local cache. A marker
// file records the repo and revision so unchanged models are skipped.
func (d *HuggingFaceDownloader) Download(ctx context.Context, modelConfig *config.ModelConfig, targetDir string) (string, bool, error) {
	source, err := modelConfig.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get model source: %w", err)
	}

	hfSource, ok := source.(config.HuggingFaceSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", source)
	}

	repo := strings.TrimSpace(hfSource.Repo)
	if repo == "" || strings.Contains(repo, "..") {
		return "", false, fmt.Errorf("invalid repo name: %q", repo)
	}

	fullPath := filepath.Join(targetDir, repo)
	markerPath := filepath.Join(fullPath, markerFilename)
	marker := markerContent(repo, hfSource.Revision)

	if !hfSource.ForceDownload && !d.shouldRedownload(markerPath, marker) {
		d.logger.Info("Model already downloaded, skipping", "repo", repo, "path", fullPath)
		return fullPath, true, nil
	}

	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create directory: %w", err)
	}

	args := downloadArgs(hfSource, repo, fullPath)

	var lastErr error
	for attempt := range d.maxRetries {
		if attempt > 0 {
			d.logger.Info("Retrying download", "repo", repo, "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return "", false, fmt.Errorf("download canceled: %w", ctx.Err())
			}
		} else {
			d.logger.Info("Downloading model", "repo", repo, "path", fullPath)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		_, stderr, err := d.runner.Run(attemptCtx, d.binary, args, nil)
		attemptErr := attemptCtx.Err()
		cancel()

		if err == nil {
			if err := os.WriteFile(markerPath, []byte(marker), 0o644); err != nil {
				d.logger.Warn("Failed to write download marker", "path", markerPath, "error", err)
			}
			d.logger.Info("Model downloaded", "repo", repo, "path", fullPath, "attempt", attempt+1)
			return fullPath, false, nil
		}

		lastErr = err
		d.logger.Error("Failed to download model", "repo", repo, "attempt", attempt+1, "error", err, "stderr", strings.TrimSpace(string(stderr)))

		if errors.Is(attemptErr, context.DeadlineExceeded) {
			d.logger.Warn("Download timed out", "repo", repo, "attempt", attempt+1)
		}
		if ctx.Err() != nil {
			return "", false, fmt.Errorf("download canceled: %w", err)
		}
	}

	return "", false, fmt.Errorf("download %s: %w", repo, lastErr)
}

func downloadArgs(src config.HuggingFaceSource, repo, dir string) []string {
	args := []string{"download", repo, "--local-dir", dir}

	if src.Revision != "" {
		args = append(args, "--revision", src.Revision)
	}
	if src.RepoType != "" {
		args = append(args, "--repo-type", src.RepoType)
	}
	for _, inc := range src.Include {
		args = append(args, "--include", inc)
	}
	for _, exc := range src.Exclude {
		args = append(args, "--exclude", exc)
	}
	if src.ForceDownload {
		args = append(args, "--force-download")
	}
	if src.Token != "" {
		args = append(args, "--token", src.Token)
	}
	if src.MaxWorkers > 0 {
		args = append(args, "--max-workers", fmt.Sprintf("%d", src.MaxWorkers))
	}
	return args
}

func markerContent(repo, revision string) string {
	return fmt.Sprintf("repo: %s\nrevision: %s\n", repo, revision)
}

func (d *HuggingFaceDownloader) shouldRedownload(markerPath, expected string) bool {
	content, err := os.ReadFile(markerPath)
	if err != nil {
		return true
	}
	if string(content) != expected {
		d.logger.Info("Model config changed, will redownload", "marker_path", markerPath)
		return true
	}
	return false
}
