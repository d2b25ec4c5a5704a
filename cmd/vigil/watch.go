package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vigil/internal/diag"
	"vigil/internal/engine"
	"vigil/internal/session"
	"vigil/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-analyze on file changes and print diagnostics as they arrive",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "wait this long for a burst of file events to settle")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	debounce, err := cmd.Flags().GetDuration("debounce")
	if err != nil {
		return fmt.Errorf("failed to get debounce flag: %w", err)
	}
	e, err := openEnv(cmd, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	printer := &watchPrinter{out: cmd.OutOrStdout(), root: e.sess.Root}
	unsubscribe := e.sess.Service.Subscribe(printer.onMessage)
	defer unsubscribe()
	unsubscribeProgress := e.sess.Service.SubscribeProgress(engine.ProgressFunc(printer.onProgress))
	defer unsubscribeProgress()

	return runWatcher(cmd.Context(), e.sess, watch.New(e.sess.Workspace, e.sess.Root,
		watch.WithDebounce(debounce),
		watch.WithLogger(e.log),
	))
}

// runWatcher starts the session and the file watcher and blocks until ctx
// is done or the watcher fails.
func runWatcher(ctx context.Context, sess *session.Session, w *watch.Watcher) error {
	g, ctx := errgroup.WithContext(ctx)
	sess.Start(ctx)
	g.Go(func() error { return w.Run(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchPrinter writes one block per forwarded message. Messages come from
// several analysis goroutines.
type watchPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	root string
}

func (p *watchPrinter) onMessage(msg engine.DiagnosticMessage) {
	var all []diag.Diagnostic
	for _, f := range msg.Files {
		all = append(all, f.Diagnostics...)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[%s] %s: %d diagnostic(s)\n", time.Now().Format(time.TimeOnly), msg.ProjectName, len(all))
	if text := diag.FormatShort(all, p.root); text != "" {
		fmt.Fprintln(p.out, text)
	}
}

// onProgress reports clean projects, which produce no forwarded message.
func (p *watchPrinter) onProgress(ev engine.ProgressEvent) {
	if ev.Status == engine.StatusFailed {
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(p.out, "[%s] %s: analysis failed: %v\n", time.Now().Format(time.TimeOnly), ev.Name, ev.Err)
		return
	}
	if ev.Status != engine.StatusAnalyzed || ev.Diagnostics > 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[%s] %s: clean\n", time.Now().Format(time.TimeOnly), ev.Name)
}
