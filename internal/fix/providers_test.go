package fix

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/diag"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

func document(path, text string) *workspace.Document {
	return &workspace.Document{Path: path, Text: source.NewText([]byte(text)), Version: 1}
}

// unusedAt fakes the type checker's diagnostic on the import path literal.
func unusedAt(doc *workspace.Document, importPath string) diag.Diagnostic {
	off := strings.Index(doc.Text.String(), `"`+importPath+`"`)
	span := source.Span{Start: uint32(off), End: uint32(off + len(importPath) + 2)}
	return diag.NewError(diag.SemUnusedImport, doc.Path, doc.Text.Range(span), `"`+importPath+`" imported and not used`)
}

func collect(t *testing.T, p interface {
	RegisterFixes(context.Context, *Context) error
}, doc *workspace.Document, d diag.Diagnostic) []Action {
	t.Helper()
	var out []Action
	require.NoError(t, p.RegisterFixes(context.Background(), NewContext(doc, d, func(a Action) { out = append(out, a) })))
	return out
}

func TestRemoveUnusedImportsSingle(t *testing.T) {
	doc := document("/p/a.go", "package a\n\nimport (\n\t\"example.com/b\"\n\t\"example.com/c\"\n)\n\nvar _ = c.C\n")
	actions := collect(t, RemoveUnusedImports{}, doc, unusedAt(doc, "example.com/b"))
	require.Len(t, actions, 1)
	assert.Equal(t, removeImportKey, actions[0].EquivalenceKey)

	got, err := ApplyEdits(doc.Text.Bytes(), actions[0].Changes[0].Edits)
	require.NoError(t, err)
	assert.Equal(t, "package a\n\nimport (\n\t\"example.com/c\"\n)\n\nvar _ = c.C\n", string(got))
}

func TestRemoveUnusedImportsFixAllDropsEmptyDecl(t *testing.T) {
	doc := document("/p/a.go", "package a\n\nimport (\n\t\"example.com/b\"\n\t\"example.com/c\"\n)\n\nimport \"example.com/d\"\n\nvar _ = d.D\n")
	p := RemoveUnusedImports{}
	a, err := p.FixAllProvider().FixAll(context.Background(), FixAllRequest{
		EquivalenceKey: removeImportKey,
		Document:       doc,
		Diagnostics:    []diag.Diagnostic{unusedAt(doc, "example.com/b"), unusedAt(doc, "example.com/c")},
	})
	require.NoError(t, err)
	require.NotNil(t, a)

	got, err := ApplyEdits(doc.Text.Bytes(), a.Changes[0].Edits)
	require.NoError(t, err)
	assert.Equal(t, "package a\n\n\nimport \"example.com/d\"\n\nvar _ = d.D\n", string(got))

	other, err := p.FixAll(context.Background(), FixAllRequest{EquivalenceKey: "other", Document: doc})
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestRemoveUnusedImportsIgnoresOtherPositions(t *testing.T) {
	doc := document("/p/a.go", "package a\n\nimport \"example.com/b\"\n\nvar _ = b.B\n")
	d := diag.NewError(diag.SemUnusedImport, doc.Path, doc.Text.Range(source.Span{Start: 0, End: 7}), "x")
	assert.Empty(t, collect(t, RemoveUnusedImports{}, doc, d))
}

func TestFormatDocument(t *testing.T) {
	doc := document("/p/a.go", "package a\nfunc  F() {}\n")
	actions := collect(t, FormatDocument{}, doc, diag.Diagnostic{ID: diag.StyNotFormatted.ID(), Path: doc.Path})
	require.Len(t, actions, 1)

	got, err := ApplyEdits(doc.Text.Bytes(), actions[0].Changes[0].Edits)
	require.NoError(t, err)
	assert.Equal(t, "package a\n\nfunc F() {}\n", string(got))

	clean := document("/p/b.go", "package a\n")
	assert.Empty(t, collect(t, FormatDocument{}, clean, diag.Diagnostic{ID: diag.StyNotFormatted.ID()}))
}
