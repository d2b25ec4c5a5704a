package fix

import (
	"errors"
	"testing"

	"vigil/internal/diag"
	"vigil/internal/source"
)

func TestApplyEditsOrdersAndValidates(t *testing.T) {
	content := []byte("let x = 1")
	got, err := ApplyEdits(content, []diag.TextEdit{
		{Span: source.Span{Start: 8, End: 9}, NewText: "2", OldText: "1"},
		{Span: source.Span{Start: 0, End: 3}, NewText: "const", OldText: "let"},
		{Span: source.Span{Start: 9, End: 9}, NewText: ";"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "const x = 2;" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyEditsRejectsBadEdits(t *testing.T) {
	content := []byte("abcdef")
	cases := map[string]struct {
		edits []diag.TextEdit
		want  error
	}{
		"overlap": {
			edits: []diag.TextEdit{
				{Span: source.Span{Start: 0, End: 3}},
				{Span: source.Span{Start: 2, End: 4}},
			},
			want: ErrConflict,
		},
		"insert inside deletion": {
			edits: []diag.TextEdit{
				{Span: source.Span{Start: 1, End: 4}},
				{Span: source.Span{Start: 2, End: 2}, NewText: "x"},
			},
			want: ErrConflict,
		},
		"guard": {
			edits: []diag.TextEdit{{Span: source.Span{Start: 0, End: 1}, OldText: "z"}},
			want:  ErrGuardMismatch,
		},
		"range": {
			edits: []diag.TextEdit{{Span: source.Span{Start: 4, End: 10}}},
			want:  ErrOutOfRange,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ApplyEdits(content, tc.edits); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyEditsKeepsInsertOrder(t *testing.T) {
	got, err := ApplyEdits([]byte("ab"), []diag.TextEdit{
		{Span: source.Span{Start: 1, End: 1}, NewText: "1"},
		{Span: source.Span{Start: 1, End: 1}, NewText: "2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a12b" {
		t.Fatalf("got %q", got)
	}
}

func TestApplySkipsConflictingActions(t *testing.T) {
	docs := map[string][]byte{"/a.go": []byte("hello world")}
	lookup := func(path string) ([]byte, bool) {
		b, ok := docs[path]
		return b, ok
	}
	actions := []Action{
		ReplaceSpan("first", "/a.go", source.Span{Start: 0, End: 5}, "HELLO", "hello"),
		DeleteSpan("overlaps first", "/a.go", source.Span{Start: 3, End: 8}, ""),
		InsertText("suffix", "/a.go", source.Span{Start: 11, End: 11}, "!", ""),
		DeleteSpan("unknown doc", "/b.go", source.Span{Start: 0, End: 1}, ""),
		{Title: "empty"},
	}

	res, err := Apply(lookup, actions)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Applied) != 2 || len(res.Skipped) != 3 {
		t.Fatalf("applied=%v skipped=%v", res.Applied, res.Skipped)
	}
	if len(res.FileChanges) != 1 {
		t.Fatalf("expected one file change, got %d", len(res.FileChanges))
	}
	fc := res.FileChanges[0]
	if string(fc.After) != "HELLO world!" || string(fc.Before) != "hello world" || fc.EditCount != 2 {
		t.Fatalf("unexpected change: %+v", fc)
	}
}

func TestApplyNothingApplicable(t *testing.T) {
	res, err := Apply(func(string) ([]byte, bool) { return nil, false }, []Action{
		DeleteSpan("x", "/missing.go", source.Span{End: 1}, ""),
	})
	if !errors.Is(err, ErrNoFixes) {
		t.Fatalf("expected ErrNoFixes, got %v", err)
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("expected a skip, got %+v", res.Skipped)
	}
}

func TestWrapWithAndOptions(t *testing.T) {
	a := WrapWith("paren", "/a.go", source.Span{Start: 1, End: 2}, "(", ")",
		WithEquivalenceKey("k"), WithEdits("/a.go", diag.TextEdit{Span: source.Span{Start: 0, End: 0}, NewText: ">"}))
	if a.EquivalenceKey != "k" || len(a.Changes) != 1 || a.EditCount() != 3 {
		t.Fatalf("unexpected action: %+v", a)
	}
	got, err := ApplyEdits([]byte("abc"), a.Changes[0].Edits)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != ">a(b)c" {
		t.Fatalf("got %q", got)
	}
}
