package fix

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"

	"vigil/internal/diag"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

const (
	// RemoveUnusedImportsID is the fixable id of RemoveUnusedImports.
	RemoveUnusedImportsID = "RemoveUnusedImportsFixable"

	removeImportKey = "vigil.remove-unused-imports"
	formatKey       = "vigil.format-document"
)

// RemoveUnusedImports deletes import specs reported as unused.
type RemoveUnusedImports struct{}

func (RemoveUnusedImports) Name() string { return "RemoveUnusedImports" }

func (RemoveUnusedImports) FixableIDs() []string { return []string{RemoveUnusedImportsID} }

func (p RemoveUnusedImports) RegisterFixes(_ context.Context, fc *Context) error {
	edits, err := p.edits(fc.Document, []diag.Diagnostic{fc.Diagnostic})
	if err != nil || len(edits) == 0 {
		return err
	}
	fc.Register(build("Remove unused import", fc.Document.Path, edits, []Option{WithEquivalenceKey(removeImportKey)}))
	return nil
}

func (p RemoveUnusedImports) FixAllProvider() FixAllProvider { return p }

func (p RemoveUnusedImports) FixAll(_ context.Context, req FixAllRequest) (*Action, error) {
	if req.EquivalenceKey != removeImportKey {
		return nil, nil
	}
	edits, err := p.edits(req.Document, req.Diagnostics)
	if err != nil || len(edits) == 0 {
		return nil, err
	}
	a := build("Remove unused imports", req.Document.Path, edits, []Option{WithEquivalenceKey(removeImportKey)})
	return &a, nil
}

// edits deletes the lines of every import spec hit by diags. A declaration
// that loses all its specs is deleted whole.
func (RemoveUnusedImports) edits(doc *workspace.Document, diags []diag.Diagnostic) ([]diag.TextEdit, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, doc.Path, doc.Text.Bytes(), parser.ImportsOnly|parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", doc.Path, err)
	}
	tf := fset.File(f.Package)

	var edits []diag.TextEdit
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.IMPORT {
			continue
		}
		var hit []*ast.ImportSpec
		for _, spec := range gd.Specs {
			is := spec.(*ast.ImportSpec)
			if specReported(tf, is, diags) {
				hit = append(hit, is)
			}
		}
		switch {
		case len(hit) == 0:
		case len(hit) == len(gd.Specs):
			edits = append(edits, lineEdit(doc.Text, tf, gd.Pos(), gd.End()))
		default:
			for _, is := range hit {
				edits = append(edits, lineEdit(doc.Text, tf, is.Pos(), is.End()))
			}
		}
	}
	return edits, nil
}

func specReported(tf *token.File, is *ast.ImportSpec, diags []diag.Diagnostic) bool {
	start, end := uint32(tf.Offset(is.Pos())), uint32(tf.Offset(is.End()))
	for _, d := range diags {
		off := d.Range.Span.Start
		if off >= start && off < end {
			return true
		}
	}
	return false
}

// lineEdit deletes the full lines spanned by [from, to).
func lineEdit(text *source.Text, tf *token.File, from, to token.Pos) diag.TextEdit {
	first, _ := text.LineSpan(uint32(tf.Line(from)))
	last, ok := text.LineSpan(uint32(tf.Line(to)))
	if !ok {
		last = first
	}
	span := source.Span{Start: first.Start, End: last.End}
	return diag.TextEdit{Span: span, OldText: string(text.Bytes()[span.Start:span.End])}
}

// FormatDocument rewrites a document with gofmt.
type FormatDocument struct{}

func (FormatDocument) Name() string { return "FormatDocument" }

func (FormatDocument) FixableIDs() []string { return []string{diag.StyNotFormatted.ID()} }

func (p FormatDocument) RegisterFixes(_ context.Context, fc *Context) error {
	a, err := p.action(fc.Document)
	if err != nil || a == nil {
		return err
	}
	fc.Register(*a)
	return nil
}

func (p FormatDocument) FixAllProvider() FixAllProvider { return p }

func (p FormatDocument) FixAll(_ context.Context, req FixAllRequest) (*Action, error) {
	if req.EquivalenceKey != formatKey {
		return nil, nil
	}
	return p.action(req.Document)
}

func (FormatDocument) action(doc *workspace.Document) (*Action, error) {
	content := doc.Text.Bytes()
	formatted, err := format.Source(content)
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", doc.Path, err)
	}
	if bytes.Equal(formatted, content) {
		return nil, nil
	}
	a := ReplaceSpan("Format document", doc.Path, source.Span{End: doc.Text.Len()}, string(formatted), string(content),
		WithEquivalenceKey(formatKey))
	return &a, nil
}
