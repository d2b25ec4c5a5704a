package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the file that marks a workspace root.
const ManifestName = "vigil.toml"

// ErrManifestNotFound reports that no vigil.toml exists in the start
// directory or any of its parents.
var ErrManifestNotFound = errors.New("no " + ManifestName + " found")

// FindManifest walks up from startDir to locate vigil.toml.
func FindManifest(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// FindRoot returns the directory containing vigil.toml.
func FindRoot(startDir string) (string, error) {
	manifestPath, ok, err := FindManifest(startDir)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrManifestNotFound
	}
	return filepath.Dir(manifestPath), nil
}

// resolveDir resolves a project directory relative to the workspace root.
// Absolute directories and directories escaping the root are rejected.
func resolveDir(root, dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("empty dir")
	}
	if filepath.IsAbs(dir) {
		return "", fmt.Errorf("dir %q: must be relative", dir)
	}
	path := filepath.Join(root, filepath.Clean(filepath.FromSlash(dir)))
	if !pathWithin(root, path) {
		return "", fmt.Errorf("dir %q: escapes workspace root", dir)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("dir %q: not a directory", dir)
	}
	return path, nil
}

func pathWithin(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
