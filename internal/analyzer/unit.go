package analyzer

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"strings"
	"unicode"
	"unicode/utf8"

	"fortio.org/safecast"

	"vigil/internal/diag"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

// unit is the parsed form of one project: every Go document in a shared
// FileSet.
type unit struct {
	fset   *token.FileSet
	files  []*ast.File
	docs   map[string]*workspace.Document
	broken map[string]bool
	syntax []diag.Diagnostic
}

func parseUnit(docs []*workspace.Document) *unit {
	u := &unit{
		fset:   token.NewFileSet(),
		docs:   make(map[string]*workspace.Document, len(docs)),
		broken: make(map[string]bool),
	}
	for _, d := range docs {
		u.docs[d.Path] = d
		f, err := parser.ParseFile(u.fset, d.Path, d.Text.Bytes(), parser.ParseComments|parser.AllErrors|parser.SkipObjectResolution)
		if err != nil {
			u.broken[d.Path] = true
			u.addSyntaxErrors(d, err)
		}
		// без package clause файл бесполезен для проверки типов
		if f != nil && f.Name != nil {
			u.files = append(u.files, f)
		}
	}
	return u
}

func (u *unit) addSyntaxErrors(d *workspace.Document, err error) {
	var list scanner.ErrorList
	if !errors.As(err, &list) {
		u.syntax = append(u.syntax, diag.NewError(diag.SynSyntaxError, d.Path, d.Text.Range(source.Span{}), err.Error()))
		return
	}
	for _, e := range list {
		code := diag.SynSyntaxError
		if strings.Contains(e.Msg, "expected 'package'") {
			code = diag.SynPackageClause
		}
		rng := spanAt(d.Text, e.Pos.Offset)
		u.syntax = append(u.syntax, diag.NewError(code, d.Path, rng, e.Msg))
	}
}

func (u *unit) report(rep diag.Reporter) {
	for _, d := range u.syntax {
		rep.Report(d)
	}
}

// typeDiagnostic converts a go/types error. Errors located in files with
// syntax errors are dropped: they mostly restate the parse failure.
func (u *unit) typeDiagnostic(te types.Error) (diag.Diagnostic, bool) {
	pos := te.Fset.Position(te.Pos)
	doc, ok := u.docs[pos.Filename]
	if !ok {
		return diag.Diagnostic{}, false
	}
	if u.broken[pos.Filename] {
		return diag.Diagnostic{}, false
	}
	return diag.NewError(classify(te.Msg), doc.Path, spanAt(doc.Text, pos.Offset), te.Msg), true
}

// classify maps go/types messages to diagnostic codes.
func classify(msg string) diag.Code {
	switch {
	case strings.HasPrefix(msg, "undefined: "),
		strings.Contains(msg, " undefined (type "),
		strings.Contains(msg, "not declared by package"):
		return diag.SemUnresolvedRef
	case strings.HasSuffix(msg, "imported and not used"),
		strings.Contains(msg, "imported as ") && strings.HasSuffix(msg, "and not used"):
		return diag.SemUnusedImport
	case strings.HasPrefix(msg, "declared and not used"):
		return diag.SemUnusedVariable
	case strings.HasPrefix(msg, "could not import "):
		return diag.SemImportNotFound
	case strings.HasPrefix(msg, "package ") && strings.Contains(msg, "; expected "):
		return diag.SemMismatchedPackage
	}
	return diag.SemTypeError
}

// spanAt returns the range of the token starting at off: an identifier, a
// string literal, or a single character.
func spanAt(text *source.Text, off int) source.Range {
	start, err := safecast.Conv[uint32](off)
	if err != nil || start > text.Len() {
		start = text.Len()
	}
	return text.Range(source.Span{Start: start, End: start + tokenLen(text.Bytes()[start:])})
}

func tokenLen(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	if b[0] == '"' || b[0] == '`' {
		if end := strings.IndexByte(string(b[1:]), b[0]); end >= 0 {
			return uint32(end + 2)
		}
		return 1
	}
	n := 0
	for n < len(b) {
		r, size := utf8.DecodeRune(b[n:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		n += size
	}
	if n == 0 {
		_, size := utf8.DecodeRune(b)
		n = size
	}
	return uint32(n)
}
