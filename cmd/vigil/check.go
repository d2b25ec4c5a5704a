package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/diag"
	"vigil/internal/diagfmt"
	"vigil/internal/engine"
	"vigil/internal/observ"
	"vigil/internal/session"
	"vigil/internal/source"
	"vigil/internal/version"
	"vigil/internal/workspace"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [flags]",
		Short: "Analyze every project once and print the diagnostics",
		Long:  `Load the workspace, analyze all projects (or the ones named by --project), wait for the results and print them. Exits with status 1 when an error is reported.`,
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}
	cmd.Flags().String("format", "pretty", "output format (pretty|short|json|sarif)")
	cmd.Flags().String("ui", "auto", "show analysis progress (auto|on|off)")
	cmd.Flags().StringSlice("project", nil, "limit the check to these projects")
	cmd.Flags().Int("context", 1, "lines of source context in pretty output")
	cmd.Flags().String("path-mode", "auto", "path display (auto|absolute|relative|basename)")
	cmd.Flags().Duration("timeout", 0, "give up after this long (0 = no limit)")
	cmd.Flags().Bool("timings", false, "print phase timings to stderr")
	return cmd
}

func runCheck(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	format = strings.ToLower(format)
	switch format {
	case "pretty", "short", "json", "sarif":
	default:
		return fmt.Errorf("unknown format %q (expected pretty|short|json|sarif)", format)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	names, err := cmd.Flags().GetStringSlice("project")
	if err != nil {
		return fmt.Errorf("failed to get project flag: %w", err)
	}

	showTimings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	timer := observ.NewTimer()
	if showTimings {
		defer func() { fmt.Fprint(cmd.ErrOrStderr(), timer.Summary()) }()
	}

	endLoad := timer.Begin("load")
	e, err := openEnv(cmd, envOptions{engine: func(cfg *engine.Config) {
		// a one-shot check always analyzes, without batching delay
		cfg.Enabled = true
		cfg.Interval = 0
	}})
	if err != nil {
		return err
	}
	defer e.Close()
	endLoad(fmt.Sprintf("%d projects", len(e.sess.Projects)))

	keys, err := projectKeys(e.sess, names)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(cmd.Context(), cmd)
	defer cancel()

	endAnalyze := timer.Begin("analyze")

	var results []engine.ProjectDiagnostic
	if format == "pretty" && shouldUseTUI(mode, cmd.OutOrStdout()) {
		results, err = checkWithUI(ctx, cmd.OutOrStdout(), e.sess, keys)
	} else {
		e.sess.Start(ctx)
		e.sess.Service.ReAnalyze(keys...)
		results, err = e.sess.Service.Diagnostics(ctx, keys)
	}
	if err != nil {
		return err
	}

	diags := engine.Diagnostics(results)
	endAnalyze(fmt.Sprintf("%d diagnostics", len(diags)))
	diag.Sort(diags)
	endRender := timer.Begin("render")
	err = renderDiagnostics(cmd, cmd.OutOrStdout(), e.sess, format, diags)
	endRender("")
	if err != nil {
		return err
	}
	if diag.HasErrors(diags) {
		return errReported
	}
	return nil
}

func renderDiagnostics(cmd *cobra.Command, out io.Writer, sess *session.Session, format string, diags []diag.Diagnostic) error {
	maxDiagnostics, err := cmd.Flags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	shown := diags
	if maxDiagnostics > 0 && len(shown) > maxDiagnostics {
		shown = shown[:maxDiagnostics]
	}

	switch format {
	case "json":
		return diagfmt.JSON(out, diags, diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         diagfmt.PathModeRelative,
			BaseDir:          sess.Root,
			Max:              maxDiagnostics,
		})
	case "sarif":
		return diagfmt.Sarif(out, diags, diagfmt.SarifRunMeta{
			ToolName:       "vigil",
			ToolVersion:    version.Version,
			InvocationArgs: os.Args[1:],
			BaseDir:        sess.Root,
		})
	case "short":
		if text := diag.FormatShort(shown, sess.Root); text != "" {
			fmt.Fprintln(out, text)
		}
		return nil
	}

	colored, err := useColor(cmd)
	if err != nil {
		return err
	}
	if len(diags) == 0 {
		fmt.Fprintln(out, "no problems found")
		return nil
	}
	contextLines, err := cmd.Flags().GetInt("context")
	if err != nil {
		return fmt.Errorf("failed to get context flag: %w", err)
	}
	pathModeValue, err := cmd.Flags().GetString("path-mode")
	if err != nil {
		return fmt.Errorf("failed to get path-mode flag: %w", err)
	}
	pathMode, ok := diagfmt.ParsePathMode(pathModeValue)
	if !ok {
		return fmt.Errorf("unknown path mode %q", pathModeValue)
	}
	diagfmt.Pretty(out, shown, diagfmt.PrettyOpts{
		Color:    colored,
		Context:  contextLines,
		PathMode: pathMode,
		BaseDir:  sess.Root,
		Sources:  snapshotSources(sess.Workspace.Snapshot()),
	})
	if hidden := len(diags) - len(shown); hidden > 0 {
		fmt.Fprintf(out, "\n... and %d more (raise --max-diagnostics)\n", hidden)
	}
	fmt.Fprintln(out)
	diagfmt.Summary(out, diags, colored)
	return nil
}

func snapshotSources(snap *workspace.Snapshot) diagfmt.Sources {
	return func(path string) *source.Text {
		if _, doc, ok := snap.FindDocument(path); ok {
			return doc.Text
		}
		return nil
	}
}

// projectNames lists the display names of keys for the progress view.
func projectNames(snap *workspace.Snapshot, keys []workspace.ProjectID) []string {
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if p, ok := snap.Project(key); ok {
			names = append(names, p.Name)
		}
	}
	return names
}
