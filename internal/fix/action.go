package fix

import (
	"context"

	"vigil/internal/diag"
	"vigil/internal/workspace"
)

// DocumentEdits are edits against one document, in the coordinates of its
// current text.
type DocumentEdits struct {
	Path  string
	Edits []diag.TextEdit
}

// Action is a code action a provider offers for a diagnostic.
type Action struct {
	Title string
	// EquivalenceKey groups actions that one fix-all pass can merge.
	EquivalenceKey string
	Changes        []DocumentEdits
}

// EditCount counts edits across every document of the action.
func (a Action) EditCount() int {
	n := 0
	for _, c := range a.Changes {
		n += len(c.Edits)
	}
	return n
}

// Context is handed to a provider for one (document, diagnostic) pair. The
// provider registers zero or more actions through it.
type Context struct {
	Document   *workspace.Document
	Diagnostic diag.Diagnostic
	register   func(Action)
}

func NewContext(doc *workspace.Document, d diag.Diagnostic, register func(Action)) *Context {
	return &Context{Document: doc, Diagnostic: d, register: register}
}

func (c *Context) Register(a Action) {
	if c.register != nil {
		c.register(a)
	}
}

// FixAllRequest asks a provider to fix every listed diagnostic of a
// document the way the action with EquivalenceKey fixes one.
type FixAllRequest struct {
	EquivalenceKey string
	Document       *workspace.Document
	Diagnostics    []diag.Diagnostic
}

// FixAllProvider merges the fixes of many diagnostics into one action.
type FixAllProvider interface {
	FixAll(ctx context.Context, req FixAllRequest) (*Action, error)
}
