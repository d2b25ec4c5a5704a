package source

import (
	"fmt"

	"fortio.org/safecast"
)

// Text is an immutable document body with a precomputed line index.
type Text struct {
	content []byte
	lineIdx []uint32 // offsets of '\n'
}

// NewText indexes content. The slice is retained; callers must not mutate it.
func NewText(content []byte) *Text {
	return &Text{content: content, lineIdx: buildLineIndex(content)}
}

func (t *Text) Bytes() []byte {
	return t.content
}

func (t *Text) String() string {
	return string(t.content)
}

func (t *Text) Len() uint32 {
	n, err := safecast.Conv[uint32](len(t.content))
	if err != nil {
		panic(fmt.Errorf("content length overflow: %w", err))
	}
	return n
}

// LineCount returns the number of lines, counting a trailing partial line.
func (t *Text) LineCount() int {
	return len(t.lineIdx) + 1
}

// Position converts a byte offset into a 1-based line/column.
func (t *Text) Position(off uint32) LineCol {
	if off > t.Len() {
		off = t.Len()
	}
	return toLineCol(t.lineIdx, off)
}

// Offset converts a 1-based line/column back into a byte offset, clamping the
// column to the end of the line.
func (t *Text) Offset(lc LineCol) uint32 {
	if lc.Line == 0 {
		return 0
	}
	start, end, ok := t.lineBounds(lc.Line)
	if !ok {
		return t.Len()
	}
	col := lc.Col
	if col == 0 {
		col = 1
	}
	off := start + col - 1
	if off > end {
		off = end
	}
	return off
}

// Range resolves a span against the text.
func (t *Text) Range(span Span) Range {
	return Range{Span: span, Start: t.Position(span.Start), End: t.Position(span.End)}
}

// Line возвращает строку с заданным номером (1-based) без символа перевода строки.
// Если строка не существует, возвращает пустую строку.
func (t *Text) Line(lineNum uint32) string {
	start, end, ok := t.lineBounds(lineNum)
	if !ok {
		return ""
	}
	return string(t.content[start:end])
}

// LineSpan returns the span of line lineNum including its trailing newline.
func (t *Text) LineSpan(lineNum uint32) (Span, bool) {
	start, end, ok := t.lineBounds(lineNum)
	if !ok {
		return Span{}, false
	}
	if end < t.Len() {
		end++
	}
	return Span{Start: start, End: end}, true
}

func (t *Text) lineBounds(lineNum uint32) (start, end uint32, ok bool) {
	if lineNum == 0 {
		return 0, 0, false
	}
	lenLineIdx, err := safecast.Conv[uint32](len(t.lineIdx))
	if err != nil {
		panic(fmt.Errorf("line index length overflow: %w", err))
	}
	switch {
	case lineNum == 1:
		start = 0
	case (lineNum - 2) < lenLineIdx:
		start = t.lineIdx[lineNum-2] + 1
	default:
		return 0, 0, false
	}
	if (lineNum - 1) < lenLineIdx {
		end = t.lineIdx[lineNum-1]
	} else {
		end = t.Len()
	}
	if start > t.Len() {
		return 0, 0, false
	}
	return start, end, true
}
