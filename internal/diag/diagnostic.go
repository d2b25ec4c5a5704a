package diag

import (
	"vigil/internal/source"
)

type Diagnostic struct {
	Project  string
	Path     string
	Severity Severity
	ID       string
	Message  string
	Range    source.Range
}

// TextEdit replaces Span with NewText. When OldText is set the edit only
// applies if the current text under Span matches it.
type TextEdit struct {
	Span    source.Span
	NewText string
	OldText string
}

func New(sev Severity, code Code, path string, rng source.Range, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		ID:       code.ID(),
		Path:     path,
		Range:    rng,
		Message:  msg,
	}
}

func NewError(code Code, path string, rng source.Range, msg string) Diagnostic {
	return New(SevError, code, path, rng, msg)
}

// HasPath reports whether the diagnostic is attached to a file.
func (d Diagnostic) HasPath() bool {
	return d.Path != ""
}

// WithProject returns a copy stamped with the owning project's display name.
func (d Diagnostic) WithProject(name string) Diagnostic {
	d.Project = name
	return d
}
