package diagfmt

import (
	"encoding/json"
	"io"

	"vigil/internal/diag"
)

// LocationJSON представляет местоположение в файле для JSON
type LocationJSON struct {
	File      string `json:"file"`
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
	StartLine uint32 `json:"start_line,omitempty"`
	StartCol  uint32 `json:"start_col,omitempty"`
	EndLine   uint32 `json:"end_line,omitempty"`
	EndCol    uint32 `json:"end_col,omitempty"`
}

// DiagnosticJSON представляет диагностику в JSON формате. Location is nil
// for project-scoped diagnostics.
type DiagnosticJSON struct {
	Severity string        `json:"severity"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Project  string        `json:"project,omitempty"`
	Location *LocationJSON `json:"location,omitempty"`
}

// DiagnosticsOutput представляет корневую структуру JSON вывода
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
	Errors      int              `json:"errors"`
	Warnings    int              `json:"warnings"`
	Truncated   bool             `json:"truncated,omitempty"`
}

// BuildDiagnosticsOutput формирует структуру JSON-вывода без сериализации.
// Counters cover every diagnostic, including ones cut by opts.Max.
func BuildDiagnosticsOutput(diags []diag.Diagnostic, opts JSONOpts) DiagnosticsOutput {
	out := DiagnosticsOutput{Diagnostics: make([]DiagnosticJSON, 0, len(diags))}
	for i, d := range diags {
		switch d.Severity {
		case diag.SevError:
			out.Errors++
		case diag.SevWarning:
			out.Warnings++
		}
		if opts.Max > 0 && i >= opts.Max {
			out.Truncated = true
			continue
		}
		dj := DiagnosticJSON{
			Severity: d.Severity.String(),
			Code:     d.ID,
			Message:  d.Message,
			Project:  d.Project,
		}
		if d.HasPath() {
			loc := &LocationJSON{
				File:      formatPath(d.Path, opts.PathMode, opts.BaseDir),
				StartByte: d.Range.Span.Start,
				EndByte:   d.Range.Span.End,
			}
			if opts.IncludePositions {
				loc.StartLine = d.Range.Start.Line
				loc.StartCol = d.Range.Start.Col
				loc.EndLine = d.Range.End.Line
				loc.EndCol = d.Range.End.Col
			}
			dj.Location = loc
		}
		out.Diagnostics = append(out.Diagnostics, dj)
	}
	out.Count = len(out.Diagnostics)
	return out
}

// JSON форматирует диагностики в JSON формат.
func JSON(w io.Writer, diags []diag.Diagnostic, opts JSONOpts) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildDiagnosticsOutput(diags, opts))
}
