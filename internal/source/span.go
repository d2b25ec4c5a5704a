package source

import (
	"fmt"
)

type Span struct {
	Start uint32 // в байтах включительно
	End   uint32 // в байтах не включительно
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// Cover returns the smallest span containing both s and other.
func (s Span) Cover(other Span) Span {
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Overlaps reports whether the spans share at least one byte. Two empty spans
// at the same offset also overlap: both insert at one point.
func (s Span) Overlaps(other Span) bool {
	if s.Empty() && other.Empty() {
		return s.Start == other.Start
	}
	return s.Start < other.End && other.Start < s.End
}

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based, in bytes
}

func (lc LineCol) String() string {
	return fmt.Sprintf("%d:%d", lc.Line, lc.Col)
}

// Range pairs a byte span with its resolved line/column bounds.
type Range struct {
	Span  Span
	Start LineCol
	End   LineCol
}

func (r Range) IsZero() bool {
	return r == Range{}
}
