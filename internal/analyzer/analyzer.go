package analyzer

import (
	"context"
	"errors"
	"go/types"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"vigil/internal/diag"
	"vigil/internal/workspace"
)

// Request asks for full analysis of a package project.
type Request struct {
	Snapshot *workspace.Snapshot
	Project  *workspace.Project
	Rules    RuleSet
}

// DocumentRequest asks for syntax-only analysis of one loose document.
type DocumentRequest struct {
	Project  *workspace.Project
	Document *workspace.Document
	Rules    RuleSet
}

// Options tunes the analyzer.
type Options struct {
	// MaxDiagnostics caps diagnostics per project; zero means unlimited.
	MaxDiagnostics int
	// Style enables the STY rules.
	Style bool
	// Importer resolves imports that are not workspace projects. Nil uses a
	// shared source importer.
	Importer types.ImporterFrom
	Log      logrus.FieldLogger
}

func DefaultOptions() Options {
	return Options{Style: true}
}

// Analyzer type-checks Go projects and syntax-checks loose files. One value
// serves concurrent analyses.
type Analyzer struct {
	opts     Options
	fallback types.ImporterFrom
	log      logrus.FieldLogger

	deps  singleflight.Group
	cache *packageCache
}

var errNoProject = errors.New("analyzer: request without project")

func New(opts Options) *Analyzer {
	a := &Analyzer{
		opts:  opts,
		log:   opts.Log,
		cache: newPackageCache(),
	}
	if a.log == nil {
		a.log = logrus.StandardLogger()
	}
	a.fallback = opts.Importer
	if a.fallback == nil {
		a.fallback = newSourceImporter()
	}
	return a
}

// Analyze runs parsing, type checking and the enabled rules for a package
// project, then applies req.Rules.
func (a *Analyzer) Analyze(ctx context.Context, req Request) ([]diag.Diagnostic, error) {
	p := req.Project
	if p == nil {
		return nil, errNoProject
	}
	bag := diag.NewBag(a.opts.MaxDiagnostics)
	rep := diag.NewDedupReporter(diag.BagReporter{Bag: bag})

	for _, name := range p.MissingReferences {
		rep.Report(diag.Diagnostic{
			Severity: diag.SevError,
			ID:       diag.PrjMissingReference.ID(),
			Message:  "referenced project \"" + name + "\" is not part of the workspace",
		})
	}

	docs := goDocuments(p)
	if len(docs) == 0 {
		rep.Report(diag.Diagnostic{
			Severity: diag.SevWarning,
			ID:       diag.PrjEmpty.ID(),
			Message:  "project " + p.Name + " has no Go source files",
		})
		return finish(bag, req.Rules), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unit := parseUnit(docs)
	unit.report(rep)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	imp := &projectImporter{ctx: ctx, analyzer: a, snap: req.Snapshot, from: p}
	typeErrs := a.check(p.ImportPath, unit, imp)
	for _, te := range typeErrs {
		if d, ok := unit.typeDiagnostic(te); ok {
			rep.Report(d)
		}
	}

	if a.opts.Style {
		checkStyle(unit, rep)
	}
	return finish(bag, req.Rules), nil
}

// AnalyzeDocument runs the syntax-only checks used for loose files.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, req DocumentRequest) ([]diag.Diagnostic, error) {
	if req.Document == nil {
		return nil, nil
	}
	bag := diag.NewBag(a.opts.MaxDiagnostics)
	rep := diag.NewDedupReporter(diag.BagReporter{Bag: bag})
	if err := checkSyntax(ctx, req.Document, rep); err != nil {
		return nil, err
	}
	return finish(bag, req.Rules), nil
}

func finish(bag *diag.Bag, rules RuleSet) []diag.Diagnostic {
	bag.Sort()
	out := append([]diag.Diagnostic(nil), bag.Items()...)
	return rules.Apply(out)
}

func goDocuments(p *workspace.Project) []*workspace.Document {
	out := make([]*workspace.Document, 0, len(p.Documents))
	for _, d := range p.Documents {
		if filepath.Ext(d.Path) == ".go" {
			out = append(out, d)
		}
	}
	return out
}
