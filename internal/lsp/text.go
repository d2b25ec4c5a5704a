package lsp

import (
	"strings"
	"unicode/utf8"
)

// applyChanges applies didChange events in order. An event without a range
// replaces the whole text; ranged events are clamped to the text.
func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := offsetForPosition(text, change.Range.Start)
		end := max(offsetForPosition(text, change.Range.End), start)
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

// offsetForPosition converts a 0-based line and UTF-16 character into a
// byte offset. Positions past the end of a line stop at its newline.
func offsetForPosition(text string, pos position) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	lineStart := 0
	for range pos.Line {
		nl := strings.IndexByte(text[lineStart:], '\n')
		if nl < 0 {
			return len(text)
		}
		lineStart += nl + 1
	}
	line := text[lineStart:]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	units, i := 0, 0
	for i < len(line) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(line[i:])
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if units+need > pos.Character {
			break
		}
		units += need
		i += size
	}
	return lineStart + i
}
