package analyzer

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/token"

	"vigil/internal/diag"
	"vigil/internal/source"
)

func checkStyle(u *unit, rep diag.Reporter) {
	for _, f := range u.files {
		path := u.fset.Position(f.Package).Filename
		doc, ok := u.docs[path]
		if !ok || u.broken[path] {
			continue
		}
		if formatted, err := format.Source(doc.Text.Bytes()); err == nil && !bytes.Equal(formatted, doc.Text.Bytes()) {
			rep.Report(diag.New(diag.SevInfo, diag.StyNotFormatted, path, doc.Text.Range(source.Span{}), "file is not gofmt-formatted"))
		}
		for _, decl := range f.Decls {
			name, pos, ok := undocumented(decl)
			if !ok {
				continue
			}
			off := u.fset.Position(pos).Offset
			rep.Report(diag.New(diag.SevInfo, diag.StyMissingDocComm, path, spanAt(doc.Text, off),
				"exported "+name+" should have a doc comment"))
		}
	}
}

// undocumented returns the first exported name declared by decl without a
// doc comment.
func undocumented(decl ast.Decl) (string, token.Pos, bool) {
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Doc != nil || !d.Name.IsExported() {
			return "", token.NoPos, false
		}
		if d.Recv != nil && !exportedRecv(d.Recv) {
			return "", token.NoPos, false
		}
		return d.Name.Name, d.Name.Pos(), true
	case *ast.GenDecl:
		if d.Tok != token.TYPE || d.Doc != nil {
			return "", token.NoPos, false
		}
		for _, spec := range d.Specs {
			ts := spec.(*ast.TypeSpec)
			if ts.Doc == nil && ts.Name.IsExported() {
				return ts.Name.Name, ts.Name.Pos(), true
			}
		}
	}
	return "", token.NoPos, false
}

func exportedRecv(recv *ast.FieldList) bool {
	if len(recv.List) == 0 {
		return false
	}
	t := recv.List[0].Type
	for {
		switch x := t.(type) {
		case *ast.StarExpr:
			t = x.X
		case *ast.IndexExpr:
			t = x.X
		case *ast.IndexListExpr:
			t = x.X
		case *ast.Ident:
			return x.IsExported()
		default:
			return false
		}
	}
}
