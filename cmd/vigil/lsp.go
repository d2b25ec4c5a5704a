package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"vigil/internal/logging"
	"vigil/internal/lsp"
	"vigil/internal/session"
)

func newLSPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Run the vigil language server over stdio",
		Long:  `Run a language server on stdin/stdout. The workspace is opened at the root the client sends in initialize. Logs go to stderr unless --log-file is set.`,
		Args:  cobra.NoArgs,
		RunE:  runLSP,
	}
}

func runLSP(cmd *cobra.Command, _ []string) error {
	logCfg := logging.Config{Output: "stderr"}
	if err := overrideLogging(cmd, &logCfg); err != nil {
		return err
	}
	if logCfg.Output == "stdout" {
		return fmt.Errorf("lsp: stdout carries the protocol; log to stderr or a file")
	}
	log, closeLog, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer closeLog()

	tr, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer tr.cleanup()
	// sessions open lazily on initialize, so there is nothing to sample yet
	defer tr.startHeartbeat(nil)()

	open := func(ctx context.Context, root string) (*session.Session, error) {
		return session.Open(ctx, session.Options{
			Dir:                  root,
			AllowMissingManifest: true,
			Log:                  log,
			Registerer:           prometheus.NewRegistry(),
			Tracer:               tr.tracer,
		})
	}
	maxDiagnostics, err := cmd.Flags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Open:           open,
		Log:            log,
		MaxDiagnostics: maxDiagnostics,
	})
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}
