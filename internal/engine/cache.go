package engine

import (
	"sync"
	"time"

	"vigil/internal/diag"
	"vigil/internal/workspace"
)

// ProjectResult is the outcome of one successful analysis of a project.
type ProjectResult struct {
	Key         workspace.ProjectID
	Name        string
	Diagnostics []diag.Diagnostic
	AnalyzedAt  time.Time
}

// ProjectDiagnostic pairs a diagnostic with the display name its project had
// when the diagnostic was produced.
type ProjectDiagnostic struct {
	ProjectName string
	Diagnostic  diag.Diagnostic
}

// ResultCache maps project keys to their latest result. Each Store replaces
// the entry wholesale; entries are never merged or deleted.
type ResultCache struct {
	entries sync.Map // workspace.ProjectID -> *ProjectResult
}

// NewResultCache returns an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{}
}

// Store records result as the current entry for result.Key.
func (c *ResultCache) Store(result ProjectResult) {
	diags := make([]diag.Diagnostic, len(result.Diagnostics))
	for i, d := range result.Diagnostics {
		diags[i] = d.WithProject(result.Name)
	}
	result.Diagnostics = diags
	c.entries.Store(result.Key, &result)
}

// Entry returns the current result for key.
func (c *ResultCache) Entry(key workspace.ProjectID) (ProjectResult, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return ProjectResult{}, false
	}
	return *v.(*ProjectResult), true
}

// Get flattens the current entries of keys. Keys without an entry
// contribute nothing.
func (c *ResultCache) Get(keys []workspace.ProjectID) []ProjectDiagnostic {
	var out []ProjectDiagnostic
	for _, key := range keys {
		v, ok := c.entries.Load(key)
		if !ok {
			continue
		}
		r := v.(*ProjectResult)
		for _, d := range r.Diagnostics {
			out = append(out, ProjectDiagnostic{ProjectName: r.Name, Diagnostic: d})
		}
	}
	return out
}

// Range calls fn for every entry until fn returns false.
func (c *ResultCache) Range(fn func(ProjectResult) bool) {
	c.entries.Range(func(_, v any) bool {
		return fn(*v.(*ProjectResult))
	})
}

// Len counts entries.
func (c *ResultCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Diagnostics strips project names from a flattened query result.
func Diagnostics(items []ProjectDiagnostic) []diag.Diagnostic {
	out := make([]diag.Diagnostic, 0, len(items))
	for _, it := range items {
		out = append(out, it.Diagnostic)
	}
	return out
}
