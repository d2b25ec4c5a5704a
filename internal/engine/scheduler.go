package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"vigil/internal/analyzer"
	"vigil/internal/diag"
	"vigil/internal/trace"
	"vigil/internal/workspace"
)

// Graph is the read side of the project graph the engine depends on.
type Graph interface {
	Snapshot() *workspace.Snapshot
	Ready() bool
	Subscribe(fn func(workspace.Change)) func()
}

// Analyzer produces diagnostics for one project. It must be safe to call
// concurrently for distinct projects.
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) ([]diag.Diagnostic, error)
	AnalyzeDocument(ctx context.Context, req analyzer.DocumentRequest) ([]diag.Diagnostic, error)
}

// RulesFunc resolves the configured rules of a project.
type RulesFunc func(p *workspace.Project) analyzer.RuleSet

// Scheduler drains the WorkQueue in batches and analyzes every project of a
// batch concurrently.
type Scheduler struct {
	queue     *WorkQueue
	cache     *ResultCache
	graph     Graph
	analyzer  Analyzer
	rules     RulesFunc
	forwarder *Forwarder
	progress  ProgressSink
	metrics   *Metrics
	log       logrus.FieldLogger

	interval    time.Duration
	maxParallel int
	now         func() time.Time
}

// SchedulerConfig tunes the loop.
type SchedulerConfig struct {
	// Interval is the pause after each settled batch. Zero is allowed.
	Interval time.Duration
	// MaxParallel bounds concurrent project analyses; zero means unbounded.
	MaxParallel int
}

// SchedulerDeps are the collaborators of a Scheduler. Queue, Cache, Graph
// and Analyzer are required.
type SchedulerDeps struct {
	Queue     *WorkQueue
	Cache     *ResultCache
	Graph     Graph
	Analyzer  Analyzer
	Rules     RulesFunc
	Forwarder *Forwarder
	Progress  ProgressSink
	Metrics   *Metrics
	Log       logrus.FieldLogger
}

// NewScheduler wires a scheduler. Missing optional collaborators get no-op
// or default implementations.
func NewScheduler(deps SchedulerDeps, cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		queue:       deps.Queue,
		cache:       deps.Cache,
		graph:       deps.Graph,
		analyzer:    deps.Analyzer,
		rules:       deps.Rules,
		forwarder:   deps.Forwarder,
		progress:    deps.Progress,
		metrics:     deps.Metrics,
		log:         deps.Log,
		interval:    cfg.Interval,
		maxParallel: cfg.MaxParallel,
		now:         time.Now,
	}
	if s.rules == nil {
		s.rules = analyzer.RulesFor
	}
	if s.forwarder == nil {
		s.forwarder = NewForwarder()
	}
	if s.progress == nil {
		s.progress = ProgressFunc(func(ProgressEvent) {})
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.interval < 0 {
		s.interval = 0
	}
	return s
}

// Run loops until ctx is cancelled. Failures outside a single project's
// analysis are logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithField("interval", s.interval).Info("scheduler: started")
	defer s.log.Info("scheduler: stopped")

	for {
		if err := s.queue.WaitForWork(ctx); err != nil {
			return err
		}
		s.runBatchSafely(ctx)
		if err := sleep(ctx, s.interval); err != nil {
			return err
		}
	}
}

func (s *Scheduler) runBatchSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.loopFailures.Inc()
			s.log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("scheduler: batch panicked")
		}
	}()
	if err := s.RunBatch(ctx); err != nil {
		s.metrics.loopFailures.Inc()
		s.log.WithError(err).Error("scheduler: batch failed")
	}
}

// RunBatch pops one batch and analyzes it, returning once every project of
// the batch has settled and been acknowledged.
func (s *Scheduler) RunBatch(ctx context.Context) error {
	keys := s.queue.PopBatch()
	if len(keys) == 0 {
		return nil
	}
	// keys popped here are acknowledged exactly once, even if this
	// function panics half way through.
	acks := newAckSet(s.queue, keys)
	g := new(errgroup.Group)
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	defer func() {
		_ = g.Wait()
		acks.rest()
	}()

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeBatch, "batch", trace.CurrentSpan(ctx).SpanID)
	span.WithExtra("size", strconv.Itoa(len(keys)))
	defer span.End("")
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	s.metrics.batchSize.Observe(float64(len(keys)))
	snap := s.graph.Snapshot()

	for _, key := range keys {
		project, ok := snap.Project(key)
		if !ok {
			s.log.WithField("key", key.Short()).Debug("scheduler: project no longer exists, skipping")
			trace.Point(tracer, trace.ScopeProject, "skipped", key.Short(), span.ID())
			acks.done(key)
			continue
		}
		g.Go(func() error {
			defer acks.done(key)
			if err := catch(func() { s.analyzeProject(ctx, snap, project) }); err != nil {
				s.callbackFailed(s.log.WithField("project", project.Name), "project", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) analyzeProject(ctx context.Context, snap *workspace.Snapshot, p *workspace.Project) {
	log := s.log.WithFields(logrus.Fields{"project": p.Name, "key": p.ID.Short()})
	span := trace.Begin(trace.FromContext(ctx), trace.ScopeProject, p.Name, trace.CurrentSpan(ctx).SpanID)
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	s.report(log, ProgressEvent{Project: p.ID, Name: p.Name, Status: StatusAnalyzing})

	started := s.now()
	diags, err := s.safeAnalyze(ctx, snap, p)
	elapsed := s.now().Sub(started)

	kind := p.Kind.String()
	s.metrics.duration.WithLabelValues(kind).Observe(elapsed.Seconds())

	if err != nil {
		span.Fail(err)
		s.metrics.analyses.WithLabelValues(kind, "failed").Inc()
		entry := log.WithError(err).WithField("elapsed", elapsed)
		var perr *PanicError
		if errors.As(err, &perr) {
			entry.WithField("stack", string(perr.Stack)).Error("scheduler: analysis panicked")
		} else {
			entry.Warn("scheduler: analysis failed")
		}
		s.report(log, ProgressEvent{Project: p.ID, Name: p.Name, Status: StatusFailed, Elapsed: elapsed, Err: err})
		return
	}

	for i := range diags {
		diags[i].Project = p.Name
	}
	s.cache.Store(ProjectResult{Key: p.ID, Name: p.Name, Diagnostics: diags, AnalyzedAt: s.now()})
	s.metrics.analyses.WithLabelValues(kind, "ok").Inc()
	span.WithExtra("diagnostics", strconv.Itoa(len(diags))).End("ok")

	if len(diags) > 0 {
		if files := GroupByFile(diags); len(files) > 0 {
			msg := DiagnosticMessage{Project: p.ID, ProjectName: p.Name, Files: files}
			if err := s.forwarder.Forward(msg); err != nil {
				s.callbackFailed(log, "subscriber", err)
			}
			s.metrics.forwarded.Inc()
		}
	}

	log.WithFields(logrus.Fields{"elapsed": elapsed, "diagnostics": len(diags)}).Debug("scheduler: project analyzed")
	s.report(log, ProgressEvent{
		Project:     p.ID,
		Name:        p.Name,
		Status:      StatusAnalyzed,
		Diagnostics: len(diags),
		Elapsed:     elapsed,
	})
}

func (s *Scheduler) report(log logrus.FieldLogger, ev ProgressEvent) {
	if err := catch(func() { s.progress.OnProgress(ev) }); err != nil {
		s.callbackFailed(log.WithField("status", ev.Status), "progress", err)
	}
}

// callbackFailed records a panic raised outside the analyzer itself. The
// project result, if any, is already stored.
func (s *Scheduler) callbackFailed(log logrus.FieldLogger, callback string, err error) {
	s.metrics.loopFailures.Inc()
	entry := log.WithError(err).WithField("callback", callback)
	var perr *PanicError
	if errors.As(err, &perr) {
		entry = entry.WithField("stack", string(perr.Stack))
	}
	entry.Error("scheduler: callback panicked")
}

func (s *Scheduler) safeAnalyze(ctx context.Context, snap *workspace.Snapshot, p *workspace.Project) (diags []diag.Diagnostic, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	rules := s.rules(p)
	if p.IsLoose() {
		return s.analyzeLoose(ctx, p, rules)
	}
	return s.analyzer.Analyze(ctx, analyzer.Request{Snapshot: snap, Project: p, Rules: rules})
}

// analyzeLoose runs syntax-only checks for every document of the loose
// files project.
func (s *Scheduler) analyzeLoose(ctx context.Context, p *workspace.Project, rules analyzer.RuleSet) ([]diag.Diagnostic, error) {
	var (
		mu  sync.Mutex
		out []diag.Diagnostic
	)
	g := new(errgroup.Group)
	for _, doc := range p.Documents {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			}()
			diags, err := s.analyzer.AnalyzeDocument(ctx, analyzer.DocumentRequest{Project: p, Document: doc, Rules: rules})
			if err != nil {
				return fmt.Errorf("%s: %w", doc.Path, err)
			}
			mu.Lock()
			out = append(out, diags...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ackSet acknowledges each key of a batch at most once.
type ackSet struct {
	mu    sync.Mutex
	queue *WorkQueue
	open  map[workspace.ProjectID]struct{}
}

func newAckSet(q *WorkQueue, keys []workspace.ProjectID) *ackSet {
	open := make(map[workspace.ProjectID]struct{}, len(keys))
	for _, k := range keys {
		open[k] = struct{}{}
	}
	return &ackSet{queue: q, open: open}
}

func (a *ackSet) done(key workspace.ProjectID) {
	a.mu.Lock()
	_, ok := a.open[key]
	delete(a.open, key)
	a.mu.Unlock()
	if ok {
		a.queue.Acknowledge(key)
	}
}

func (a *ackSet) rest() {
	a.mu.Lock()
	keys := make([]workspace.ProjectID, 0, len(a.open))
	for k := range a.open {
		keys = append(keys, k)
	}
	clear(a.open)
	a.mu.Unlock()
	for _, k := range keys {
		a.queue.Acknowledge(k)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
