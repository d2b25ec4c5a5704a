package fix

import (
	"errors"
	"fmt"
	"sort"

	"vigil/internal/diag"
)

var (
	// ErrNoFixes is returned when no action could be applied.
	ErrNoFixes = errors.New("no applicable fixes found")
	// ErrConflict marks overlapping edits.
	ErrConflict = errors.New("edits overlap")
	// ErrGuardMismatch marks an edit whose expected text is not present.
	ErrGuardMismatch = errors.New("existing text does not match expected content")
	// ErrOutOfRange marks an edit outside the document.
	ErrOutOfRange = errors.New("edit span out of range")
)

// ApplyEdits applies edits to content. Edits are given in the coordinates
// of content; they must not overlap and every guard must match.
func ApplyEdits(content []byte, edits []diag.TextEdit) ([]byte, error) {
	sorted := sortEdits(edits)
	for i, e := range sorted {
		if err := checkEdit(content, e); err != nil {
			return nil, err
		}
		if i > 0 && spansConflict(sorted[i-1], e) {
			return nil, fmt.Errorf("%w at %s", ErrConflict, e.Span)
		}
	}

	out := make([]byte, 0, len(content))
	pos := uint32(0)
	for _, e := range sorted {
		out = append(out, content[pos:e.Span.Start]...)
		out = append(out, e.NewText...)
		pos = e.Span.End
	}
	return append(out, content[pos:]...), nil
}

func checkEdit(content []byte, e diag.TextEdit) error {
	if e.Span.End < e.Span.Start || int(e.Span.End) > len(content) {
		return fmt.Errorf("%w: %s", ErrOutOfRange, e.Span)
	}
	if e.OldText != "" && string(content[e.Span.Start:e.Span.End]) != e.OldText {
		return fmt.Errorf("%w at %s", ErrGuardMismatch, e.Span)
	}
	return nil
}

// sortEdits orders edits by start; inserts at the same position keep their
// relative order.
func sortEdits(edits []diag.TextEdit) []diag.TextEdit {
	out := append([]diag.TextEdit(nil), edits...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.Start != out[j].Span.Start {
			return out[i].Span.Start < out[j].Span.Start
		}
		return out[i].Span.End < out[j].Span.End
	})
	return out
}

// AppliedFix records a successfully staged action.
type AppliedFix struct {
	Title     string
	Key       string
	EditCount int
}

// SkippedFix captures an action that could not be staged.
type SkippedFix struct {
	Title  string
	Reason string
}

// FileChange is the outcome for one document.
type FileChange struct {
	Path      string
	Before    []byte
	After     []byte
	EditCount int
}

// ApplyResult aggregates applied and skipped actions and the changed files.
type ApplyResult struct {
	Applied     []AppliedFix
	Skipped     []SkippedFix
	FileChanges []FileChange
}

// Apply stages actions in order against the documents returned by lookup.
// An action whose edits conflict with an already staged action, or that
// fails validation, is skipped as a whole. Nothing is written anywhere.
func Apply(lookup func(path string) ([]byte, bool), actions []Action) (*ApplyResult, error) {
	result := &ApplyResult{}
	originals := make(map[string][]byte)
	staged := make(map[string][]diag.TextEdit)

	for _, a := range actions {
		if a.EditCount() == 0 {
			result.Skipped = append(result.Skipped, SkippedFix{Title: a.Title, Reason: "fix has no edits"})
			continue
		}
		next := make(map[string][]diag.TextEdit, len(a.Changes))
		reason := ""
		for _, change := range a.Changes {
			content, ok := originals[change.Path]
			if !ok {
				content, ok = lookup(change.Path)
				if !ok {
					reason = fmt.Sprintf("unknown document %s", change.Path)
					break
				}
				originals[change.Path] = content
			}
			if conflictsWithExisting(staged[change.Path], change.Edits) {
				reason = fmt.Sprintf("conflicts with previously applied edits in %s", change.Path)
				break
			}
			merged := append(append([]diag.TextEdit(nil), staged[change.Path]...), change.Edits...)
			if _, err := ApplyEdits(content, merged); err != nil {
				reason = err.Error()
				break
			}
			next[change.Path] = merged
		}
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedFix{Title: a.Title, Reason: reason})
			continue
		}
		for path, edits := range next {
			staged[path] = edits
		}
		result.Applied = append(result.Applied, AppliedFix{Title: a.Title, Key: a.EquivalenceKey, EditCount: a.EditCount()})
	}

	if len(result.Applied) == 0 {
		return result, ErrNoFixes
	}

	for path, edits := range staged {
		after, err := ApplyEdits(originals[path], edits)
		if err != nil {
			return result, fmt.Errorf("apply %s: %w", path, err)
		}
		result.FileChanges = append(result.FileChanges, FileChange{
			Path:      path,
			Before:    originals[path],
			After:     after,
			EditCount: len(edits),
		})
	}
	sort.Slice(result.FileChanges, func(i, j int) bool {
		return result.FileChanges[i].Path < result.FileChanges[j].Path
	})
	return result, nil
}

func conflictsWithExisting(existing, edits []diag.TextEdit) bool {
	for _, prev := range existing {
		for _, cand := range edits {
			if spansConflict(prev, cand) {
				return true
			}
		}
	}
	return false
}

// spansConflict reports whether two edits overlap. Spans are half-open;
// two inserts never conflict, an insert conflicts with a span that strictly
// contains its position or starts at it.
func spansConflict(a, b diag.TextEdit) bool {
	aStart, aEnd := a.Span.Start, a.Span.End
	bStart, bEnd := b.Span.Start, b.Span.End

	if aStart == aEnd && bStart == bEnd {
		return false
	}
	if aStart == aEnd {
		return bStart <= aStart && aStart < bEnd
	}
	if bStart == bEnd {
		return aStart <= bStart && bStart < aEnd
	}
	return aStart < bEnd && bStart < aEnd
}
