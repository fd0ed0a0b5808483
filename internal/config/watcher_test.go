package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	var latest atomic.Pointer[Config]
	w, err := NewWatcher(path, "", func(cfg *Config, err error) {
		if err == nil {
			latest.Store(cfg)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, "secret", w.Snapshot().Server.APIKey)

	updated := []byte("version: \"1\"\nserver:\n  api_key: rotated\nservices: {}\n")
	require.NoError(t, os.WriteFile(path, updated, 0o644))

	require.Eventually(t, func() bool {
		cfg := latest.Load()
		return cfg != nil && cfg.Server.APIKey == "rotated"
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "rotated", w.Snapshot().Server.APIKey)
	assert.GreaterOrEqual(t, w.ReloadCount(), uint32(1))
}

func TestWatcherKeepsSnapshotOnInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	var failures atomic.Int32
	w, err := NewWatcher(path, "", func(_ *Config, err error) {
		if err != nil {
			failures.Add(1)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("version: \"2\"\n"), 0o644))

	require.Eventually(t, func() bool { return failures.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "secret", w.Snapshot().Server.APIKey)
}

func TestNewWatcherFailsOnInvalidInitialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services: {}\n"), 0o644))

	_, err := NewWatcher(path, "", nil)
	assert.Error(t, err)
}
