package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"vigil/internal/engine"
	"vigil/internal/session"
	"vigil/internal/ui"
	"vigil/internal/workspace"
)

type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

func shouldUseTUI(mode uiMode, out io.Writer) bool {
	switch mode {
	case uiModeOn:
		return true
	case uiModeOff:
		return false
	}
	f, ok := out.(*os.File)
	return ok && isTerminal(f)
}

// progressChannel forwards engine progress into a channel the Bubble Tea
// model reads. Events arriving after close are dropped.
type progressChannel struct {
	mu     sync.Mutex
	ch     chan engine.ProgressEvent
	closed bool
}

func newProgressChannel() *progressChannel {
	return &progressChannel{ch: make(chan engine.ProgressEvent, 256)}
}

func (p *progressChannel) OnProgress(ev engine.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- ev:
	default:
	}
}

func (p *progressChannel) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}

type checkOutcome struct {
	results []engine.ProjectDiagnostic
	err     error
}

// checkWithUI runs the analysis of keys while a progress view renders the
// engine's progress events. Quitting the view cancels the analysis.
func checkWithUI(ctx context.Context, out io.Writer, sess *session.Session, keys []workspace.ProjectID) ([]engine.ProjectDiagnostic, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := newProgressChannel()
	unsubscribe := sess.Service.SubscribeProgress(events)
	outcomeCh := make(chan checkOutcome, 1)

	names := projectNames(sess.Workspace.Snapshot(), keys)
	sess.Start(ctx)
	go func() {
		sess.Service.ReAnalyze(keys...)
		results, err := sess.Service.Diagnostics(ctx, keys)
		unsubscribe()
		events.close()
		outcomeCh <- checkOutcome{results: results, err: err}
	}()

	model := ui.NewProgressModel("analyzing workspace", names, events.ch)
	program := tea.NewProgram(model, tea.WithOutput(out))
	_, uiErr := program.Run()
	cancel()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
