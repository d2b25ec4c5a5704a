package diag

import (
	"fmt"
	"sort"
	"strings"

	"vigil/internal/source"
)

type shortDiagnostic struct {
	Severity string
	ID       string
	Project  string
	Path     string
	Line     uint32
	Column   uint32
	Message  string
}

// FormatShort renders diagnostics into a stable, single-line-per-entry
// representation intended for CLI short output and golden files. Paths are
// made relative to baseDir when possible; project-scoped diagnostics print
// the project name in place of a path.
func FormatShort(diags []Diagnostic, baseDir string) string {
	if len(diags) == 0 {
		return ""
	}

	rendered := make([]shortDiagnostic, 0, len(diags))
	for _, d := range diags {
		sd := shortDiagnostic{
			Severity: d.Severity.Label(),
			ID:       d.ID,
			Project:  d.Project,
			Message:  sanitizeMessage(d.Message),
		}
		if d.HasPath() {
			sd.Path = source.RelativePath(d.Path, baseDir)
			sd.Line = d.Range.Start.Line
			sd.Column = d.Range.Start.Col
		}
		rendered = append(rendered, sd)
	}

	sort.SliceStable(rendered, func(i, j int) bool {
		di, dj := rendered[i], rendered[j]
		if di.Path != dj.Path {
			return di.Path < dj.Path
		}
		if di.Line != dj.Line {
			return di.Line < dj.Line
		}
		if di.Column != dj.Column {
			return di.Column < dj.Column
		}
		if di.Severity != dj.Severity {
			return di.Severity < dj.Severity
		}
		if di.ID != dj.ID {
			return di.ID < dj.ID
		}
		if di.Project != dj.Project {
			return di.Project < dj.Project
		}
		return di.Message < dj.Message
	})

	var b strings.Builder
	for i, d := range rendered {
		if d.Path == "" {
			fmt.Fprintf(&b, "%s %s [%s] %s", d.Severity, d.ID, d.Project, d.Message)
		} else {
			fmt.Fprintf(&b, "%s %s %s:%d:%d %s", d.Severity, d.ID, d.Path, d.Line, d.Column, d.Message)
		}
		if i < len(rendered)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", " ")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.Join(strings.Fields(msg), " ")
}
