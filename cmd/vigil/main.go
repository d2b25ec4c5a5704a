package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vigil/internal/prof"
	"vigil/internal/version"
)

// errReported marks a run that already printed its outcome (for example
// diagnostics with errors); main only sets the exit status.
var errReported = errors.New("errors reported")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vigil",
		Short:         "Incremental background diagnostics for Go workspaces",
		Long:          `vigil keeps per-project diagnostics of a Go workspace up to date in the background and serves them to the CLI, editors and HTTP clients`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newCheckCmd())
	root.AddCommand(newFixAllCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newLSPCmd())
	root.AddCommand(newVersionCmd())

	// Глобальные флаги
	flags := root.PersistentFlags()
	flags.StringP("dir", "C", ".", "directory where the vigil.toml search starts")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics to show (0 = all)")
	flags.String("log-level", "", "override the manifest log level")
	flags.String("log-format", "", "override the manifest log format (text|json)")
	flags.String("log-file", "", "write logs to this file instead of the manifest output")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|batch|project|debug)")
	flags.String("trace-mode", "stream", "trace storage mode (stream|ring|both)")
	flags.String("trace-format", "auto", "trace format (auto|text|ndjson)")
	flags.Int("trace-ring-size", 4096, "ring buffer size for --trace-mode ring|both")
	flags.Duration("trace-heartbeat", 0, "emit a trace heartbeat at this interval (0 = off)")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file on exit")
	flags.String("runtime-trace", "", "write a Go runtime execution trace to this file")

	for _, sub := range root.Commands() {
		withProfiling(sub)
	}
	return root
}

// withProfiling runs cmd between profiler start and stop, including when
// it fails.
func withProfiling(cmd *cobra.Command) {
	run := cmd.RunE
	if run == nil {
		return
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts, err := profilingOptions(cmd)
		if err != nil {
			return err
		}
		if !opts.Enabled() {
			return run(cmd, args)
		}
		p, err := prof.Start(opts)
		if err != nil {
			return err
		}
		defer func() {
			if err := p.Stop(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
			}
		}()
		return run(cmd, args)
	}
}

func profilingOptions(cmd *cobra.Command) (prof.Options, error) {
	var opts prof.Options
	for flag, dst := range map[string]*string{
		"cpu-profile":   &opts.CPU,
		"mem-profile":   &opts.Mem,
		"runtime-trace": &opts.Trace,
	} {
		v, err := cmd.Flags().GetString(flag)
		if err != nil {
			return opts, fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		*dst = v
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "vigil: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// useColor resolves --color against the terminal state of stdout.
func useColor(cmd *cobra.Command) (bool, error) {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return false, err
	}
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "", "auto":
		f, ok := cmd.OutOrStdout().(*os.File)
		return ok && isTerminal(f), nil
	}
	return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
}
