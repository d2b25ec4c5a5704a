// Package session wires a workspace, the analysis engine and the fix-all
// aggregator for one workspace root. The CLI, the language server and the
// HTTP API all run on top of a Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"vigil/internal/analyzer"
	"vigil/internal/engine"
	"vigil/internal/fixall"
	"vigil/internal/project"
	"vigil/internal/trace"
	"vigil/internal/workspace"
)

// Options configures Open.
type Options struct {
	// Dir is where the vigil.toml search starts.
	Dir string
	// AllowMissingManifest opens an empty workspace rooted at Dir when no
	// manifest exists. Only loose documents can be analyzed then.
	AllowMissingManifest bool
	// Manifest skips discovery when the caller already loaded one.
	Manifest *project.Manifest
	// Engine, when set, adjusts the engine settings read from the manifest.
	Engine     func(*engine.Config)
	Log        logrus.FieldLogger
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
}

type Session struct {
	Root      string
	Manifest  *project.Manifest
	Workspace *workspace.Workspace
	Projects  map[string]workspace.ProjectID
	Analyzer  *analyzer.Analyzer
	Service   *engine.Service
	FixAll    *fixall.Aggregator

	log       logrus.FieldLogger
	tracer    trace.Tracer
	cachePath string
}

// Open discovers the manifest, loads every project from disk and builds the
// engine. Background analysis does not run until Start.
func Open(ctx context.Context, opts Options) (*Session, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	m := opts.Manifest
	if m == nil {
		var err error
		m, err = project.Discover(dir)
		switch {
		case errors.Is(err, project.ErrManifestNotFound) && opts.AllowMissingManifest:
			m = nil
		case err != nil:
			return nil, err
		}
	}

	s := &Session{
		Workspace: workspace.New(workspace.WithLogger(log)),
		log:       log,
		tracer:    tracer,
	}
	cfg := engine.DefaultConfig()
	if m != nil {
		s.Manifest = m
		s.Root = m.Root
		cfg = m.EngineConfig()
		s.cachePath = m.CachePath()
		projects, err := project.Load(ctx, m, s.Workspace, log)
		if err != nil {
			return nil, err
		}
		s.Projects = projects
	} else {
		root, err := filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
		s.Root = root
		s.Projects = map[string]workspace.ProjectID{}
		s.Workspace.MarkInitialized()
		log.WithField("root", root).Info("no " + project.ManifestName + " found; analyzing open files only")
	}
	if opts.Engine != nil {
		opts.Engine(&cfg)
	}

	aopts := analyzer.DefaultOptions()
	aopts.Log = log
	s.Analyzer = analyzer.New(aopts)
	s.Service = engine.NewService(s.Workspace, s.Analyzer,
		engine.WithConfig(cfg),
		engine.WithLogger(log),
		engine.WithRegisterer(opts.Registerer),
	)
	s.FixAll = fixall.New(s.Service, s.Workspace, fixall.WithLogger(log))

	if s.cachePath != "" {
		n, err := s.Service.LoadCache(s.cachePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			log.WithError(err).Warn("ignoring result cache")
		default:
			log.WithField("projects", n).Debug("result cache loaded")
		}
	}
	return s, nil
}

// Start launches background analysis under ctx.
func (s *Session) Start(ctx context.Context) {
	s.Service.Start(trace.WithTracer(ctx, s.tracer))
}

// Check queues every project and waits for the results.
func (s *Session) Check(ctx context.Context) ([]engine.ProjectDiagnostic, error) {
	s.Service.ReAnalyze()
	return s.Service.AllDiagnostics(ctx)
}

// ProjectID resolves a configured project name.
func (s *Session) ProjectID(name string) (workspace.ProjectID, error) {
	id, ok := s.Projects[name]
	if !ok {
		return workspace.ProjectID{}, fmt.Errorf("%w: %s", workspace.ErrUnknownProject, name)
	}
	return id, nil
}

// Close stops the engine and writes the result cache when one is
// configured.
func (s *Session) Close() error {
	s.Service.Stop()
	if s.cachePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.cachePath), 0o755); err != nil {
		return err
	}
	if err := s.Service.SaveCache(s.cachePath); err != nil {
		return fmt.Errorf("save result cache: %w", err)
	}
	return nil
}
