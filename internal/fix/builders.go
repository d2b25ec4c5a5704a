package fix

import (
	"vigil/internal/diag"
	"vigil/internal/source"
)

// Option mutates an action during construction.
type Option func(*Action)

// WithEquivalenceKey sets the key fix-all uses to merge the action.
func WithEquivalenceKey(key string) Option {
	return func(a *Action) {
		a.EquivalenceKey = key
	}
}

// WithEdits appends more edits for path.
func WithEdits(path string, edits ...diag.TextEdit) Option {
	return func(a *Action) {
		a.Changes = appendEdits(a.Changes, path, edits)
	}
}

func build(title, path string, edits []diag.TextEdit, opts []Option) Action {
	a := Action{Title: title, Changes: appendEdits(nil, path, edits)}
	for _, opt := range opts {
		if opt != nil {
			opt(&a)
		}
	}
	return a
}

func appendEdits(changes []DocumentEdits, path string, edits []diag.TextEdit) []DocumentEdits {
	if len(edits) == 0 {
		return changes
	}
	for i := range changes {
		if changes[i].Path == path {
			changes[i].Edits = append(changes[i].Edits, edits...)
			return changes
		}
	}
	return append(changes, DocumentEdits{Path: path, Edits: append([]diag.TextEdit(nil), edits...)})
}

// InsertText inserts text at the start of at. guard, when set, must match
// the text under at.
func InsertText(title, path string, at source.Span, text, guard string, opts ...Option) Action {
	return build(title, path, []diag.TextEdit{{
		Span:    source.Span{Start: at.Start, End: at.Start},
		NewText: text,
		OldText: guard,
	}}, opts)
}

// DeleteSpan removes the text covered by span.
func DeleteSpan(title, path string, span source.Span, expect string, opts ...Option) Action {
	return build(title, path, []diag.TextEdit{{Span: span, OldText: expect}}, opts)
}

// ReplaceSpan replaces the text covered by span with newText.
func ReplaceSpan(title, path string, span source.Span, newText, expect string, opts ...Option) Action {
	return build(title, path, []diag.TextEdit{{Span: span, NewText: newText, OldText: expect}}, opts)
}

// WrapWith surrounds span with prefix and suffix.
func WrapWith(title, path string, span source.Span, prefix, suffix string, opts ...Option) Action {
	return build(title, path, []diag.TextEdit{
		{Span: source.Span{Start: span.Start, End: span.Start}, NewText: prefix},
		{Span: source.Span{Start: span.End, End: span.End}, NewText: suffix},
	}, opts)
}
