package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vigil/internal/httpapi"
	"vigil/internal/version"
	"vigil/internal/watch"
)

const defaultServeAddr = "127.0.0.1:7411"

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve diagnostics, fix-all and metrics over HTTP",
		Long:  `Run background analysis with a file watcher and expose it over HTTP: /health, /metrics and the /v1 API, including a websocket event stream at /v1/events.`,
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "listen address (default from [server] addr, then "+defaultServeAddr+")")
	cmd.Flags().Bool("no-watch", false, "do not watch the workspace for file changes")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return fmt.Errorf("failed to get addr flag: %w", err)
	}
	noWatch, err := cmd.Flags().GetBool("no-watch")
	if err != nil {
		return fmt.Errorf("failed to get no-watch flag: %w", err)
	}

	e, err := openEnv(cmd, envOptions{})
	if err != nil {
		return err
	}
	defer e.Close()

	if addr == "" && e.sess.Manifest != nil {
		addr = e.sess.Manifest.Server.Addr
	}
	if addr == "" {
		addr = defaultServeAddr
	}

	srv := httpapi.New(e.sess, httpapi.WithLogger(e.log), httpapi.WithGatherer(e.registry))
	g, ctx := errgroup.WithContext(cmd.Context())
	e.sess.Start(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx, addr) })
	if !noWatch {
		w := watch.New(e.sess.Workspace, e.sess.Root, watch.WithLogger(e.log))
		g.Go(func() error { return w.Run(ctx) })
	}
	version.Banner(cmd.ErrOrStderr())
	fmt.Fprintf(cmd.ErrOrStderr(), "vigil: serving %s on http://%s\n", e.sess.Root, addr)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
