package workspace

import (
	"sort"
)

// Snapshot is an immutable view of the workspace at one version. Analyses
// run against a snapshot and never observe later mutations.
type Snapshot struct {
	version  uint64
	projects map[ProjectID]*Project
	// order lists dependencies before dependents.
	order []ProjectID
}

func emptySnapshot() *Snapshot {
	return &Snapshot{projects: make(map[ProjectID]*Project)}
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

func (s *Snapshot) Len() int {
	return len(s.projects)
}

func (s *Snapshot) Project(id ProjectID) (*Project, bool) {
	p, ok := s.projects[id]
	return p, ok
}

// ProjectIDs returns every project id, dependencies first.
func (s *Snapshot) ProjectIDs() []ProjectID {
	return append([]ProjectID(nil), s.order...)
}

// Projects returns every project, dependencies first.
func (s *Snapshot) Projects() []*Project {
	out := make([]*Project, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.projects[id])
	}
	return out
}

func (s *Snapshot) ProjectByName(name string) (*Project, bool) {
	for _, id := range s.order {
		if p := s.projects[id]; p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func (s *Snapshot) ProjectByImportPath(importPath string) (*Project, bool) {
	for _, id := range s.order {
		if p := s.projects[id]; p.Kind == KindPackage && p.ImportPath == importPath {
			return p, true
		}
	}
	return nil, false
}

// FindDocument locates the project holding a document with this path.
func (s *Snapshot) FindDocument(path string) (*Project, *Document, bool) {
	path = CleanPath(path)
	for _, id := range s.order {
		p := s.projects[id]
		if doc, ok := p.Document(path); ok {
			return p, doc, true
		}
	}
	return nil, nil, false
}

// ProjectForPath returns the project that owns path: the project already
// holding it as a document, otherwise the package project with the deepest
// directory containing it.
func (s *Snapshot) ProjectForPath(path string) (*Project, bool) {
	if p, _, ok := s.FindDocument(path); ok {
		return p, true
	}
	path = CleanPath(path)
	var best *Project
	for _, id := range s.order {
		p := s.projects[id]
		if p.Kind != KindPackage || !p.Contains(path) {
			continue
		}
		if best == nil || len(p.Dir) > len(best.Dir) {
			best = p
		}
	}
	return best, best != nil
}

func (s *Snapshot) next() *Snapshot {
	projects := make(map[ProjectID]*Project, len(s.projects))
	for id, p := range s.projects {
		projects[id] = p
	}
	return &Snapshot{version: s.version + 1, projects: projects, order: s.order}
}

func sortedByName(projects map[ProjectID]*Project) []ProjectID {
	ids := make([]ProjectID, 0, len(projects))
	for id := range projects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := projects[ids[i]], projects[ids[j]]
		if pi.Name != pj.Name {
			return pi.Name < pj.Name
		}
		return ids[i].String() < ids[j].String()
	})
	return ids
}
