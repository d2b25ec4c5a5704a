package workspace

import (
	"path/filepath"
	"sort"

	"vigil/internal/source"
)

// Kind distinguishes real build units from the loose files bucket.
type Kind uint8

const (
	// KindPackage is a Go package directory with its own configuration.
	KindPackage Kind = iota
	// KindLoose holds documents that belong to no configured project.
	KindLoose
)

func (k Kind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindLoose:
		return "loose"
	}
	return "unknown"
}

// LooseProjectName is the display name of the loose files project.
const LooseProjectName = "miscellaneous-files"

// Document is an immutable view of one source file.
type Document struct {
	Path    string
	Text    *source.Text
	Version int32
}

// ProjectInfo describes a project when it is added to the workspace.
type ProjectInfo struct {
	Name       string
	Dir        string
	ImportPath string
	Rules      map[string]string
}

// Project is an immutable view of one project inside a Snapshot.
type Project struct {
	ID         ProjectID
	Name       string
	Dir        string
	ImportPath string
	Kind       Kind
	// Documents are sorted by path.
	Documents  []*Document
	References []ProjectID
	// MissingReferences names configured references that are not part of
	// the workspace.
	MissingReferences []string
	// Rules maps diagnostic ids to a severity label or "none".
	Rules map[string]string
}

func (p *Project) IsLoose() bool {
	return p.Kind == KindLoose
}

// Document returns the document with the given path.
func (p *Project) Document(path string) (*Document, bool) {
	path = CleanPath(path)
	i := sort.Search(len(p.Documents), func(i int) bool { return p.Documents[i].Path >= path })
	if i < len(p.Documents) && p.Documents[i].Path == path {
		return p.Documents[i], true
	}
	return nil, false
}

// Contains reports whether path is inside the project directory.
func (p *Project) Contains(path string) bool {
	if p.Dir == "" {
		return false
	}
	return source.Within(CleanPath(path), p.Dir)
}

func (p *Project) clone() *Project {
	cp := *p
	cp.Documents = append([]*Document(nil), p.Documents...)
	cp.References = append([]ProjectID(nil), p.References...)
	cp.MissingReferences = append([]string(nil), p.MissingReferences...)
	return &cp
}

// withDocument inserts or replaces doc, reporting whether it was new.
func (p *Project) withDocument(doc *Document) (added bool) {
	i := sort.Search(len(p.Documents), func(i int) bool { return p.Documents[i].Path >= doc.Path })
	if i < len(p.Documents) && p.Documents[i].Path == doc.Path {
		p.Documents[i] = doc
		return false
	}
	p.Documents = append(p.Documents, nil)
	copy(p.Documents[i+1:], p.Documents[i:])
	p.Documents[i] = doc
	return true
}

func (p *Project) withoutDocument(path string) bool {
	i := sort.Search(len(p.Documents), func(i int) bool { return p.Documents[i].Path >= path })
	if i < len(p.Documents) && p.Documents[i].Path == path {
		p.Documents = append(p.Documents[:i], p.Documents[i+1:]...)
		return true
	}
	return false
}

// CleanPath makes p absolute and clean. Document and project paths are
// stored in this form.
func CleanPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}
