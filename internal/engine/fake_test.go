package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"vigil/internal/analyzer"
	"vigil/internal/diag"
	"vigil/internal/source"
	"vigil/internal/workspace"
)

// fakeAnalyzer reports one diagnostic per document whose message is the
// document text. Behaviour per project name can be overridden.
type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]error
	panics  map[string]bool
	extra   map[string][]diag.Diagnostic
	block   chan struct{}
	running atomic.Int32
	maxSeen atomic.Int32
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		calls:  make(map[string]int),
		fail:   make(map[string]error),
		panics: make(map[string]bool),
		extra:  make(map[string][]diag.Diagnostic),
	}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analyzer.Request) ([]diag.Diagnostic, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[req.Project.Name]++
	err := f.fail[req.Project.Name]
	panics := f.panics[req.Project.Name]
	extra := f.extra[req.Project.Name]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panics {
		panic("analyzer exploded")
	}
	if err != nil {
		return nil, err
	}
	out := append([]diag.Diagnostic(nil), extra...)
	for _, d := range req.Project.Documents {
		out = append(out, textDiagnostic(d))
	}
	return req.Rules.Apply(out), nil
}

func (f *fakeAnalyzer) AnalyzeDocument(_ context.Context, req analyzer.DocumentRequest) ([]diag.Diagnostic, error) {
	f.mu.Lock()
	f.calls[req.Project.Name]++
	f.mu.Unlock()
	return []diag.Diagnostic{textDiagnostic(req.Document)}, nil
}

func (f *fakeAnalyzer) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAnalyzer) set(fn func(f *fakeAnalyzer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func textDiagnostic(d *workspace.Document) diag.Diagnostic {
	return diag.New(diag.SevWarning, diag.SemTypeError, d.Path, d.Text.Range(source.Span{}), d.Text.String())
}

var errBoom = errors.New("boom")

func addProject(t *testing.T, ws *workspace.Workspace, dir, name string) workspace.ProjectID {
	t.Helper()
	id, err := ws.AddProject(workspace.ProjectInfo{Name: name, Dir: filepath.Join(dir, name)})
	require.NoError(t, err)
	return id
}

func setDoc(t *testing.T, ws *workspace.Workspace, id workspace.ProjectID, file, text string) string {
	t.Helper()
	p, ok := ws.Project(id)
	require.True(t, ok)
	path := filepath.Join(p.Dir, file)
	require.NoError(t, ws.SetDocument(id, path, []byte(text)))
	return path
}

func messages(items []ProjectDiagnostic) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Diagnostic.Message)
	}
	return out
}
