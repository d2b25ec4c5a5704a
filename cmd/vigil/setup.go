package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vigil/internal/engine"
	"vigil/internal/logging"
	"vigil/internal/project"
	"vigil/internal/session"
	"vigil/internal/workspace"
)

// env is everything a command needs around an open session.
type env struct {
	sess     *session.Session
	log      *logrus.Logger
	registry *prometheus.Registry
	cleanups []func()
}

// Close closes the session and then releases tracer and log output.
func (e *env) Close() error {
	var err error
	if e.sess != nil {
		err = e.sess.Close()
	}
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
	return err
}

type envOptions struct {
	allowMissingManifest bool
	// logOutput replaces the manifest log output unless --log-file is set.
	logOutput string
	engine    func(*engine.Config)
}

// openEnv discovers the manifest from --dir, builds the logger, the tracer
// and the metrics registry, and opens the session. The session is not
// started.
func openEnv(cmd *cobra.Command, opts envOptions) (*env, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}
	m, err := project.Discover(dir)
	switch {
	case errors.Is(err, project.ErrManifestNotFound) && opts.allowMissingManifest:
		m = nil
	case err != nil:
		return nil, err
	}

	e := &env{}
	logCfg := logging.Config{}
	if m != nil {
		logCfg = m.LoggingConfig()
	}
	if opts.logOutput != "" {
		logCfg.Output = opts.logOutput
	}
	if err := overrideLogging(cmd, &logCfg); err != nil {
		return nil, err
	}
	log, closeLog, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	e.log = log
	e.cleanups = append(e.cleanups, func() { _ = closeLog() })

	tr, err := setupTracing(cmd)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.cleanups = append(e.cleanups, tr.cleanup)

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	e.sess, err = session.Open(cmd.Context(), session.Options{
		Dir:                  dir,
		AllowMissingManifest: opts.allowMissingManifest,
		Manifest:             m,
		Engine:               opts.engine,
		Log:                  log,
		Registerer:           e.registry,
		Tracer:               tr.tracer,
	})
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.cleanups = append(e.cleanups, tr.startHeartbeat(e.sess.Service.Stats))
	return e, nil
}

func overrideLogging(cmd *cobra.Command, cfg *logging.Config) error {
	for flag, dst := range map[string]*string{
		"log-level":  &cfg.Level,
		"log-format": &cfg.Format,
		"log-file":   &cfg.Output,
	} {
		v, err := cmd.Flags().GetString(flag)
		if err != nil {
			return err
		}
		if v != "" {
			*dst = v
		}
	}
	if cfg.Level == "" {
		cfg.Level = "warn"
	}
	return nil
}

// resolveFile makes a FILE argument absolute.
func resolveFile(arg string) (string, error) {
	if arg == "" {
		return "", nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", arg, err)
	}
	return abs, nil
}

// projectKeys resolves --project names, or every project when none is given.
func projectKeys(sess *session.Session, names []string) ([]workspace.ProjectID, error) {
	if len(names) == 0 {
		return sess.Workspace.ProjectIDs(), nil
	}
	keys := make([]workspace.ProjectID, 0, len(names))
	for _, name := range names {
		id, err := sess.ProjectID(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, id)
	}
	return keys, nil
}

func withTimeout(ctx context.Context, cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
