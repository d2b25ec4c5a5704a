package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"vigil/internal/diagfmt"
	"vigil/internal/engine"
	"vigil/internal/fix"
	"vigil/internal/fixall"
	"vigil/internal/source"
)

func newFixAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixall [flags] [FILE]",
		Short: "List or apply fix-all actions",
		Long: `Without --apply or --diff, list the diagnostic kinds that have a fix-all action in scope.
With --diff, preview the combined edits. With --apply, write them to disk.
The scope defaults to the whole workspace, or to FILE's document when FILE is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFixAll,
	}
	cmd.Flags().String("scope", "", "fix-all scope (document|project|workspace)")
	cmd.Flags().StringSlice("id", nil, "only fix these diagnostic ids")
	cmd.Flags().Bool("apply", false, "write the fixed files")
	cmd.Flags().Bool("diff", false, "print a diff of the changes")
	cmd.Flags().String("format", "pretty", "output format (pretty|json)")
	cmd.Flags().Duration("timeout", 0, "give up after this long (0 = no limit)")
	return cmd
}

type fixAllSummaryJSON struct {
	Items []fixall.Item `json:"items"`
}

type fixAllRunJSON struct {
	Files    []string `json:"files"`
	Applied  []string `json:"applied"`
	Skipped  []string `json:"skipped,omitempty"`
	Failures []string `json:"failures,omitempty"`
	Written  bool     `json:"written"`
}

func runFixAll(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	scopeValue, err := flags.GetString("scope")
	if err != nil {
		return fmt.Errorf("failed to get scope flag: %w", err)
	}
	ids, err := flags.GetStringSlice("id")
	if err != nil {
		return fmt.Errorf("failed to get id flag: %w", err)
	}
	apply, err := flags.GetBool("apply")
	if err != nil {
		return fmt.Errorf("failed to get apply flag: %w", err)
	}
	showDiff, err := flags.GetBool("diff")
	if err != nil {
		return fmt.Errorf("failed to get diff flag: %w", err)
	}
	format, err := flags.GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unknown format %q (expected pretty|json)", format)
	}

	file := ""
	if len(args) == 1 {
		if file, err = resolveFile(args[0]); err != nil {
			return err
		}
	}
	if scopeValue == "" {
		scopeValue = "workspace"
		if file != "" {
			scopeValue = "document"
		}
	}
	kind, err := fixall.ParseScope(scopeValue)
	if err != nil {
		return err
	}
	scope := fixall.Scope{Kind: kind, Path: file}

	e, err := openEnv(cmd, envOptions{engine: func(cfg *engine.Config) {
		cfg.Enabled = true
		cfg.Interval = 0
	}})
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := withTimeout(cmd.Context(), cmd)
	defer cancel()
	if _, err := e.sess.Check(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !apply && !showDiff {
		items, err := e.sess.FixAll.Summary(ctx, scope)
		if err != nil {
			return err
		}
		return printSummary(out, format, items)
	}

	run, err := e.sess.FixAll.Run(ctx, fixall.RunRequest{Scope: scope, IDs: ids, Apply: apply})
	switch {
	case errors.Is(err, fix.ErrNoFixes):
		if format == "json" {
			return encodeJSON(out, fixAllRunJSON{Files: []string{}, Applied: []string{}})
		}
		fmt.Fprintln(out, "nothing to fix")
		return nil
	case err != nil:
		return err
	}

	if apply {
		if err := writeChanges(run.Changes); err != nil {
			return err
		}
	}
	if format == "json" {
		return encodeJSON(out, runJSON(run, e.sess.Root, apply))
	}

	colored, err := useColor(cmd)
	if err != nil {
		return err
	}
	if showDiff {
		diagfmt.Diff(out, run.Changes, diagfmt.DiffOpts{
			Color:    colored,
			Context:  3,
			PathMode: diagfmt.PathModeRelative,
			BaseDir:  e.sess.Root,
		})
	}
	for _, f := range run.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "fix-all %s failed for %s: %v\n", f.Provider, source.RelativePath(f.Path, e.sess.Root), f.Err)
	}
	verb := "would fix"
	if apply {
		verb = "fixed"
	}
	fmt.Fprintf(out, "%s %d file(s) with %d action(s)\n", verb, len(run.Changes), len(run.Applied))
	return nil
}

func printSummary(out io.Writer, format string, items []fixall.Item) error {
	if format == "json" {
		if items == nil {
			items = []fixall.Item{}
		}
		return encodeJSON(out, fixAllSummaryJSON{Items: items})
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "nothing to fix")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(out, "%s  %s\n", it.ID, it.Message)
	}
	return nil
}

func runJSON(run *fixall.RunResult, root string, written bool) fixAllRunJSON {
	res := fixAllRunJSON{Files: []string{}, Applied: []string{}, Written: written}
	for _, ch := range run.Changes {
		res.Files = append(res.Files, source.RelativePath(ch.Path, root))
	}
	for _, a := range run.Applied {
		res.Applied = append(res.Applied, a.Title)
	}
	for _, sk := range run.Skipped {
		res.Skipped = append(res.Skipped, sk.Title+": "+sk.Reason)
	}
	for _, f := range run.Failures {
		res.Failures = append(res.Failures, fmt.Sprintf("%s: %s: %v", f.Provider, source.RelativePath(f.Path, root), f.Err))
	}
	return res
}

// writeChanges stores fixed documents on disk, keeping file modes.
func writeChanges(changes []fix.FileChange) error {
	for _, ch := range changes {
		mode := os.FileMode(0o644)
		if info, err := os.Stat(ch.Path); err == nil {
			mode = info.Mode().Perm()
		}
		if err := os.WriteFile(ch.Path, ch.After, mode); err != nil {
			return fmt.Errorf("write %s: %w", ch.Path, err)
		}
	}
	return nil
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

