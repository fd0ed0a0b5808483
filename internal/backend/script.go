package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaterializeScript writes an embedded worker program to a stable location
// under the temp directory and returns its path. The file name carries a
// content hash so upgrades never run a stale copy.
func MaterializeScript(name string, content []byte) (string, error) {
	dir := filepath.Join(os.TempDir(), "aiservice-workers")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create worker dir: %w", err)
	}

	sum := sha256.Sum256(content)
	ext := filepath.Ext(name)
	path := filepath.Join(dir, strings.TrimSuffix(name, ext)+"-"+hex.EncodeToString(sum[:6])+ext)

	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(content)) {
		return path, nil
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("write worker script: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write worker script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write worker script: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("install worker script: %w", err)
	}
	return path, nil
}
