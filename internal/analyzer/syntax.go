package analyzer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"vigil/internal/diag"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

const (
	maxSyntaxErrors = 50
	maxSyntaxDepth  = 1000
)

func languageFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return golang.GetLanguage()
	case ".py":
		return python.GetLanguage()
	case ".js", ".mjs", ".cjs", ".jsx":
		return javascript.GetLanguage()
	case ".ts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".rs":
		return rust.GetLanguage()
	case ".java":
		return java.GetLanguage()
	}
	return nil
}

// checkSyntax parses a loose document with tree-sitter and reports error
// and missing nodes. Unknown languages produce nothing.
func checkSyntax(ctx context.Context, doc *workspace.Document, rep diag.Reporter) error {
	lang := languageFor(doc.Path)
	if lang == nil {
		return nil
	}
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	content := doc.Text.Bytes()
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fmt.Errorf("parse %s: %w", doc.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}
	count := 0
	collectSyntaxErrors(root, doc, content, rep, &count, 0)
	return nil
}

func collectSyntaxErrors(node *sitter.Node, doc *workspace.Document, content []byte, rep diag.Reporter, count *int, depth int) {
	if node == nil || *count >= maxSyntaxErrors || depth > maxSyntaxDepth {
		return
	}
	switch {
	case node.IsMissing():
		*count++
		rep.Report(diag.NewError(diag.SynMissingToken, doc.Path, nodeRange(doc, node), "missing "+node.Type()))
		return
	case node.IsError():
		*count++
		rep.Report(diag.NewError(diag.SynSyntaxError, doc.Path, nodeRange(doc, node),
			fmt.Sprintf("syntax error near %q", snippet(node.Content(content)))))
		// вложенные ERROR узлы описывают ту же ошибку
		return
	}
	if !node.HasError() {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectSyntaxErrors(node.Child(i), doc, content, rep, count, depth+1)
	}
}

func nodeRange(doc *workspace.Document, node *sitter.Node) source.Range {
	span := source.Span{Start: node.StartByte(), End: node.EndByte()}
	if n := doc.Text.Len(); span.End > n {
		span.End = n
	}
	if span.Start > span.End {
		span.Start = span.End
	}
	return doc.Text.Range(span)
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return s
}
