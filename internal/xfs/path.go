package xfs

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"syscall"
)

// Error definitions for path resolution. Both are caller errors: the input
// is rejected before the filesystem is consulted for the target itself.
var (
	ErrEmptyPath   = errors.New("path is empty")
	ErrUnsafePath  = errors.New("path is not a bare filename")
	ErrOutsideRoot = errors.New("path resolves outside the allowed root")
)

// BareFilename joins name onto root after checking that name is a plain file
// name: not empty, not absolute, free of separators and traversal elements.
// The returned path is not checked for existence.
func BareFilename(root, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q contains a separator", ErrUnsafePath, name)
	}
	if name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	return filepath.Join(root, name), nil
}

// ResolveWithin resolves p (absolute, or relative to root) and checks that the
// result lies strictly inside root once ".." elements and symlinks have been
// followed. A target that does not exist yet is resolved through its nearest
// existing ancestor, so the bounds check never depends on existence.
func ResolveWithin(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	realRoot, err := evalExisting(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}

	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)

	// Lexical check first, then the same check on the symlink-free path.
	if !within(absRoot, target) && !within(realRoot, target) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, p)
	}

	resolved, err := evalExisting(target)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, p)
	}

	return resolved, nil
}

// within reports whether target is strictly below root.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// evalExisting follows symlinks for the longest existing prefix of p and
// re-appends the missing tail unchanged.
func evalExisting(p string) (string, error) {
	var tail []string
	current := p
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			parts := append([]string{resolved}, reverse(tail)...)
			return filepath.Join(parts...), nil
		}
		// A regular file used as a directory cannot exist either.
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return p, nil
		}
		tail = append(tail, filepath.Base(current))
		current = parent
	}
}

func reverse(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
