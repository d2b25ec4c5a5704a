package fixall

import (
	"context"

	"vigil/internal/diag"
	"vigil/internal/fix"
	"vigil/internal/workspace"
)

// Provider offers fixes for the diagnostic ids it declares.
type Provider interface {
	Name() string
	FixableIDs() []string
	// RegisterFixes may register any number of actions for the diagnostic
	// carried by fc.
	RegisterFixes(ctx context.Context, fc *fix.Context) error
}

// FixAllCapable is implemented by providers that can merge many fixes into
// one action. A nil FixAllProvider means composite application is not
// supported.
type FixAllCapable interface {
	FixAllProvider() fix.FixAllProvider
}

func fixAllOf(p Provider) fix.FixAllProvider {
	c, ok := p.(FixAllCapable)
	if !ok {
		return nil
	}
	return c.FixAllProvider()
}

// aliases maps diagnostic ids to the fixable id of the provider that fixes
// them under a different name.
var aliases = map[string]string{
	diag.SemUnusedImport.ID(): fix.RemoveUnusedImportsID,
}

// DefaultProviders returns the built-in providers.
func DefaultProviders() []Provider {
	return []Provider{fix.RemoveUnusedImports{}, fix.FormatDocument{}}
}

// DocumentDiagnostics are the cached diagnostics of one document.
type DocumentDiagnostics struct {
	Project     workspace.ProjectID
	Document    *workspace.Document
	Diagnostics []diag.Diagnostic
}

// Candidate pairs a provider with the diagnostics of one document it can
// fix. The subset is never empty.
type Candidate struct {
	Provider    Provider
	Project     workspace.ProjectID
	Document    *workspace.Document
	Diagnostics []diag.Diagnostic
}

// MatchingCandidates computes, per provider, the diagnostics of doc it can
// fix, either directly or through the alias table. Providers with nothing
// to fix or without fix-all support are dropped. The result follows
// provider order; nothing is cached.
func MatchingCandidates(doc DocumentDiagnostics, providers []Provider) []Candidate {
	var out []Candidate
	for _, p := range providers {
		fixable := make(map[string]struct{})
		for _, id := range p.FixableIDs() {
			fixable[id] = struct{}{}
		}
		var subset []diag.Diagnostic
		for _, d := range doc.Diagnostics {
			if hasFix(fixable, d.ID) {
				subset = append(subset, d)
			}
		}
		if len(subset) == 0 || fixAllOf(p) == nil {
			continue
		}
		out = append(out, Candidate{
			Provider:    p,
			Project:     doc.Project,
			Document:    doc.Document,
			Diagnostics: subset,
		})
	}
	return out
}

func hasFix(fixable map[string]struct{}, id string) bool {
	if _, ok := fixable[id]; ok {
		return true
	}
	alias, ok := aliases[id]
	if !ok {
		return false
	}
	_, ok = fixable[alias]
	return ok
}

// ComposeFixAllAction runs the provider's registration hook for every
// diagnostic of c against doc and returns the first action registered,
// or nil when the provider registered nothing. Provider errors are
// returned as is.
func ComposeFixAllAction(ctx context.Context, c Candidate, doc *workspace.Document) (*fix.Action, error) {
	var first *fix.Action
	register := func(a fix.Action) {
		if first == nil {
			first = &a
		}
	}
	for _, d := range c.Diagnostics {
		if err := c.Provider.RegisterFixes(ctx, fix.NewContext(doc, d, register)); err != nil {
			return nil, err
		}
	}
	return first, nil
}

// Materialize expands the composite action of c into the provider's
// fix-all action covering every diagnostic of the candidate.
func Materialize(ctx context.Context, c Candidate) (*fix.Action, error) {
	first, err := ComposeFixAllAction(ctx, c, c.Document)
	if err != nil || first == nil {
		return nil, err
	}
	fa := fixAllOf(c.Provider)
	if fa == nil {
		return first, nil
	}
	all, err := fa.FixAll(ctx, fix.FixAllRequest{
		EquivalenceKey: first.EquivalenceKey,
		Document:       c.Document,
		Diagnostics:    c.Diagnostics,
	})
	if err != nil {
		return nil, err
	}
	if all == nil {
		return first, nil
	}
	return all, nil
}
