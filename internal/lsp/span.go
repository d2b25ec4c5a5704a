package lsp

import (
	"unicode/utf8"

	"fortio.org/safecast"

	"vigil/internal/diag"
	"vigil/internal/source"
)

func toInt(n uint32) int {
	v, err := safecast.Conv[int](n)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return v
}

// positionFor converts a 1-based byte line/column into a 0-based LSP
// position counted in UTF-16 units. Without text the column is passed
// through as is.
func positionFor(text *source.Text, lc source.LineCol) position {
	if lc.Line == 0 {
		return position{}
	}
	pos := position{Line: toInt(lc.Line) - 1}
	if lc.Col <= 1 {
		return pos
	}
	if text == nil {
		pos.Character = toInt(lc.Col) - 1
		return pos
	}
	line := text.Line(lc.Line)
	limit := toInt(lc.Col) - 1
	if limit > len(line) {
		limit = len(line)
	}
	units := 0
	for i := 0; i < limit; {
		r, size := utf8.DecodeRuneInString(line[i:])
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
		i += size
	}
	pos.Character = units
	return pos
}

func rangeFor(text *source.Text, r source.Range) lspRange {
	return lspRange{Start: positionFor(text, r.Start), End: positionFor(text, r.End)}
}

func severityFor(sev diag.Severity) int {
	switch sev {
	case diag.SevError:
		return 1
	case diag.SevWarning:
		return 2
	}
	return 3
}

func toLSPDiagnostic(text *source.Text, d diag.Diagnostic) lspDiagnostic {
	return lspDiagnostic{
		Range:    rangeFor(text, d.Range),
		Severity: severityFor(d.Severity),
		Code:     d.ID,
		Source:   "vigil",
		Message:  d.Message,
	}
}
