package engine

import (
	"errors"
	"sort"
	"sync"

	"vigil/internal/diag"
	"vigil/internal/workspace"
)

// FileDiagnostics groups the diagnostics of one file.
type FileDiagnostics struct {
	Path        string
	Diagnostics []diag.Diagnostic
}

// DiagnosticMessage is pushed to subscribers after a project analysis that
// produced file diagnostics.
type DiagnosticMessage struct {
	Project     workspace.ProjectID
	ProjectName string
	Files       []FileDiagnostics
}

// GroupByFile groups diagnostics by path, sorted by path. Diagnostics
// without a path are dropped.
func GroupByFile(diags []diag.Diagnostic) []FileDiagnostics {
	byPath := make(map[string][]diag.Diagnostic)
	for _, d := range diags {
		if !d.HasPath() {
			continue
		}
		byPath[d.Path] = append(byPath[d.Path], d)
	}
	out := make([]FileDiagnostics, 0, len(byPath))
	for path, items := range byPath {
		diag.Sort(items)
		out = append(out, FileDiagnostics{Path: path, Diagnostics: items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Forwarder fans diagnostic messages out to subscribers. Subscribers run
// synchronously on the analysis goroutine and must not block. A subscriber
// that panics is skipped; the others still receive the message.
type Forwarder struct {
	mu   sync.RWMutex
	subs map[uint64]func(DiagnosticMessage)
	next uint64
}

func NewForwarder() *Forwarder {
	return &Forwarder{subs: make(map[uint64]func(DiagnosticMessage))}
}

// Subscribe registers fn and returns a function that removes it.
func (f *Forwarder) Subscribe(fn func(DiagnosticMessage)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Enabled reports whether anyone is listening.
func (f *Forwarder) Enabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs) > 0
}

// Forward delivers msg to every subscriber and returns the panics of those
// that failed, each as a *PanicError.
func (f *Forwarder) Forward(msg DiagnosticMessage) error {
	f.mu.RLock()
	subs := make([]func(DiagnosticMessage), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.RUnlock()

	var errs []error
	for _, fn := range subs {
		if err := catch(func() { fn(msg) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
