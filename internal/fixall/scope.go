package fixall

import (
	"errors"
	"fmt"
	"strings"

	"vigil/internal/workspace"
)

// ScopeKind selects which documents a fix-all request covers.
type ScopeKind uint8

const (
	ScopeDocument ScopeKind = iota
	ScopeProject
	ScopeWorkspace
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeDocument:
		return "document"
	case ScopeProject:
		return "project"
	case ScopeWorkspace:
		return "workspace"
	}
	return "unknown"
}

func ParseScope(s string) (ScopeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "document", "file", "":
		return ScopeDocument, nil
	case "project":
		return ScopeProject, nil
	case "workspace", "solution":
		return ScopeWorkspace, nil
	}
	return ScopeDocument, fmt.Errorf("unknown fix-all scope %q (expected document|project|workspace)", s)
}

// Scope is a scope kind anchored at a document path. Workspace scope needs
// no path.
type Scope struct {
	Kind ScopeKind
	Path string
}

var (
	ErrNoPath          = errors.New("fixall: scope needs a document path")
	ErrDocumentUnknown = errors.New("fixall: document is not part of the workspace")
)

// resolved is a scope bound to a snapshot: the projects to query and an
// optional document filter.
type resolved struct {
	keys []workspace.ProjectID
	path string
}

func (s Scope) resolve(snap *workspace.Snapshot) (resolved, error) {
	if s.Kind == ScopeWorkspace {
		return resolved{keys: snap.ProjectIDs()}, nil
	}
	if s.Path == "" {
		return resolved{}, ErrNoPath
	}
	p, ok := snap.ProjectForPath(s.Path)
	if !ok {
		return resolved{}, fmt.Errorf("%w: %s", ErrDocumentUnknown, s.Path)
	}
	r := resolved{keys: []workspace.ProjectID{p.ID}}
	if s.Kind == ScopeDocument {
		doc, ok := p.Document(s.Path)
		if !ok {
			return resolved{}, fmt.Errorf("%w: %s", ErrDocumentUnknown, s.Path)
		}
		r.path = doc.Path
	}
	return r, nil
}
