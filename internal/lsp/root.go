package lsp

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"vigil/internal/project"
	"vigil/internal/workspace"
)

// detectRoot picks the directory a session is opened for: the manifest
// root above the client's workspace folder, else the folder itself, else
// the process working directory.
func detectRoot(workspaceRoot string) string {
	if dir := resolveStartDir(workspaceRoot); dir != "" {
		if found, err := project.FindRoot(dir); err == nil {
			return found
		}
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func resolveStartDir(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}

// filePath maps a document URI to the path the workspace stores it under.
// Bare paths are accepted. Other schemes and remote hosts map to "".
func filePath(uri string) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	switch {
	case err == nil && len(u.Scheme) <= 1, err != nil && !strings.Contains(uri, "://"):
		// a bare path, possibly with a drive letter
		return workspace.CleanPath(filepath.FromSlash(uri))
	case err != nil || u.Scheme != "file":
		return ""
	}
	if u.Host != "" && u.Host != "localhost" {
		return ""
	}
	p := u.Path
	// file:///C:/x carries the drive after a leading slash
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return workspace.CleanPath(filepath.FromSlash(p))
}

// fileURI is the inverse of filePath.
func fileURI(path string) string {
	if path == "" {
		return ""
	}
	p := filepath.ToSlash(workspace.CleanPath(path))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// documentKey is the key open documents are tracked under. Spellings of
// the same file URI share a key; URIs of other schemes are kept verbatim.
func documentKey(uri string) string {
	if p := filePath(uri); p != "" {
		return fileURI(p)
	}
	return uri
}
