package fixall

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"vigil/internal/diag"
	"vigil/internal/engine"
	"vigil/internal/fix"
	"vigil/internal/workspace"
)

// Source serves cached diagnostics, waiting for pending analyses of the
// requested projects first.
type Source interface {
	Diagnostics(ctx context.Context, keys []workspace.ProjectID) ([]engine.ProjectDiagnostic, error)
}

// Snapshotter exposes the current project graph.
type Snapshotter interface {
	Snapshot() *workspace.Snapshot
}

// Writer stores the new content of a fixed document.
type Writer interface {
	SetDocument(id workspace.ProjectID, path string, content []byte) error
}

// Item is one fixable diagnostic kind of a summary.
type Item struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Aggregator answers fix-all queries from cached diagnostics and the
// registered providers. It never schedules analysis itself.
type Aggregator struct {
	source Source
	graph  Snapshotter
	writer Writer
	log    logrus.FieldLogger

	mu        sync.RWMutex
	providers []Provider
}

type Option func(*Aggregator)

func WithWriter(w Writer) Option {
	return func(a *Aggregator) { a.writer = w }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Aggregator) { a.log = log }
}

// WithProviders replaces the default providers.
func WithProviders(ps ...Provider) Option {
	return func(a *Aggregator) { a.providers = append([]Provider(nil), ps...) }
}

func New(source Source, graph Snapshotter, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:    source,
		graph:     graph,
		log:       logrus.StandardLogger(),
		providers: DefaultProviders(),
	}
	if w, ok := graph.(Writer); ok {
		a.writer = w
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Register adds a provider; later calls see it.
func (a *Aggregator) Register(p Provider) {
	a.mu.Lock()
	a.providers = append(a.providers, p)
	a.mu.Unlock()
}

func (a *Aggregator) Providers() []Provider {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.providers)
}

// Documents returns the cached diagnostics of every document in scope,
// sorted by path. Project-scoped diagnostics are left out.
func (a *Aggregator) Documents(ctx context.Context, scope Scope) ([]DocumentDiagnostics, error) {
	snap := a.graph.Snapshot()
	r, err := scope.resolve(snap)
	if err != nil {
		return nil, err
	}
	items, err := a.source.Diagnostics(ctx, r.keys)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string][]diag.Diagnostic)
	for _, it := range items {
		d := it.Diagnostic
		if !d.HasPath() || (r.path != "" && d.Path != r.path) {
			continue
		}
		byPath[d.Path] = append(byPath[d.Path], d)
	}

	out := make([]DocumentDiagnostics, 0, len(byPath))
	for path, diags := range byPath {
		p, doc, ok := snap.FindDocument(path)
		if !ok {
			continue
		}
		out = append(out, DocumentDiagnostics{Project: p.ID, Document: doc, Diagnostics: diags})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Document.Path < out[j].Document.Path })
	return out, nil
}

// Candidates flattens MatchingCandidates over every document in scope.
func (a *Aggregator) Candidates(ctx context.Context, scope Scope) ([]Candidate, error) {
	docs, err := a.Documents(ctx, scope)
	if err != nil {
		return nil, err
	}
	providers := a.Providers()
	var out []Candidate
	for _, d := range docs {
		out = append(out, MatchingCandidates(d, providers)...)
	}
	return out, nil
}

// Summary lists the fixable diagnostic kinds in scope, one entry per id,
// sorted by id. The representative message is the first one seen.
func (a *Aggregator) Summary(ctx context.Context, scope Scope) ([]Item, error) {
	cands, err := a.Candidates(ctx, scope)
	if err != nil {
		return nil, err
	}
	return summarize(cands), nil
}

func summarize(cands []Candidate) []Item {
	seen := make(map[string]bool)
	var out []Item
	for _, c := range cands {
		for _, d := range c.Diagnostics {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, Item{ID: d.ID, Message: d.Message})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RunRequest asks for fix-all over a scope. IDs, when set, limits the
// diagnostics considered. Apply writes the result through the Writer.
type RunRequest struct {
	Scope Scope
	IDs   []string
	Apply bool
}

// Failure records a candidate whose action could not be built.
type Failure struct {
	Provider string
	Path     string
	Err      error
}

type RunResult struct {
	Applied  []fix.AppliedFix
	Skipped  []fix.SkippedFix
	Changes  []fix.FileChange
	Failures []Failure
	Written  bool
}

// Run materializes the fix-all action of every candidate in scope and
// applies them in memory. A provider failure only drops its own candidate.
func (a *Aggregator) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	cands, err := a.Candidates(ctx, req.Scope)
	if err != nil {
		return nil, err
	}
	cands = filterIDs(cands, req.IDs)

	res := &RunResult{}
	owners := make(map[string]workspace.ProjectID)
	var actions []fix.Action
	for _, c := range cands {
		action, err := Materialize(ctx, c)
		if err != nil {
			a.log.WithError(err).WithFields(logrus.Fields{
				"provider": c.Provider.Name(),
				"path":     c.Document.Path,
			}).Warn("fixall: provider failed")
			res.Failures = append(res.Failures, Failure{Provider: c.Provider.Name(), Path: c.Document.Path, Err: err})
			continue
		}
		if action == nil {
			continue
		}
		owners[c.Document.Path] = c.Project
		actions = append(actions, *action)
	}
	if len(actions) == 0 {
		return res, fix.ErrNoFixes
	}

	snap := a.graph.Snapshot()
	lookup := func(path string) ([]byte, bool) {
		_, doc, ok := snap.FindDocument(path)
		if !ok {
			return nil, false
		}
		return doc.Text.Bytes(), true
	}
	applied, err := fix.Apply(lookup, actions)
	res.Applied = applied.Applied
	res.Skipped = applied.Skipped
	res.Changes = applied.FileChanges
	if err != nil {
		return res, err
	}

	if !req.Apply {
		return res, nil
	}
	if a.writer == nil {
		return res, fmt.Errorf("fixall: no writer configured")
	}
	for _, ch := range res.Changes {
		owner, ok := owners[ch.Path]
		if !ok {
			if p, _, found := snap.FindDocument(ch.Path); found {
				owner = p.ID
			}
		}
		if err := a.writer.SetDocument(owner, ch.Path, ch.After); err != nil {
			return res, fmt.Errorf("write %s: %w", ch.Path, err)
		}
	}
	res.Written = true
	return res, nil
}

func filterIDs(cands []Candidate, ids []string) []Candidate {
	if len(ids) == 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		var keep []diag.Diagnostic
		for _, d := range c.Diagnostics {
			if slices.Contains(ids, d.ID) || slices.Contains(ids, aliases[d.ID]) {
				keep = append(keep, d)
			}
		}
		if len(keep) == 0 {
			continue
		}
		c.Diagnostics = keep
		out = append(out, c)
	}
	return out
}
