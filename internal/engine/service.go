package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"vigil/internal/workspace"
)

// Config controls background analysis.
type Config struct {
	// Enabled starts the listener and scheduler; when false the service
	// only serves whatever is cached.
	Enabled bool
	// Interval is the pause between batches.
	Interval time.Duration
	// StartupPoll is how often readiness is checked before the first full
	// enqueue.
	StartupPoll time.Duration
	// MaxParallel bounds concurrent project analyses; zero means unbounded.
	MaxParallel int
}

// DefaultConfig matches the interactive defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Interval:    100 * time.Millisecond,
		StartupPoll: 500 * time.Millisecond,
	}
}

// Option configures a Service.
type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRegisterer registers the engine metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Service) { s.reg = reg }
}

func WithRules(fn RulesFunc) Option {
	return func(s *Service) { s.rules = fn }
}

// Service owns the queue, the cache and the background tasks for one graph.
type Service struct {
	cfg   Config
	graph Graph
	log   logrus.FieldLogger
	reg   prometheus.Registerer
	rules RulesFunc

	queue     *WorkQueue
	cache     *ResultCache
	forwarder *Forwarder
	progress  *progressHub
	metrics   *Metrics
	scheduler *Scheduler
	listener  *ChangeListener

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// NewService wires a service around graph and an analyzer.
func NewService(graph Graph, an Analyzer, opts ...Option) *Service {
	s := &Service{
		cfg:       DefaultConfig(),
		graph:     graph,
		log:       logrus.StandardLogger(),
		queue:     NewWorkQueue(),
		cache:     NewResultCache(),
		forwarder: NewForwarder(),
		progress:  newProgressHub(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.metrics = NewMetrics(s.reg)
	s.queue.observe = s.metrics.observeQueue
	s.progress.onPanic = func(ev ProgressEvent, err error) {
		s.metrics.loopFailures.Inc()
		s.log.WithError(err).WithFields(logrus.Fields{"project": ev.Name, "status": ev.Status}).
			Error("engine: progress subscriber panicked")
	}
	s.scheduler = NewScheduler(SchedulerDeps{
		Queue:     s.queue,
		Cache:     s.cache,
		Graph:     graph,
		Analyzer:  an,
		Rules:     s.rules,
		Forwarder: s.forwarder,
		Progress:  s.progress,
		Metrics:   s.metrics,
		Log:       s.log,
	}, SchedulerConfig{Interval: s.cfg.Interval, MaxParallel: s.cfg.MaxParallel})
	s.listener = NewChangeListener(graph, s.queue, s.progress, s.log, s.cfg.StartupPoll)
	return s
}

// Start launches the listener, the startup bootstrap and the scheduler loop.
// It returns immediately. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("engine: background analysis disabled")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.unsubscribe = s.listener.Listen()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.listener.Bootstrap(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithError(err).Warn("engine: bootstrap stopped")
		}
	}()
	go func() {
		defer s.wg.Done()
		if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithError(err).Warn("engine: scheduler stopped")
		}
	}()
}

// Stop cancels the background tasks and waits for them. In-flight analyses
// finish first.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	unsubscribe := s.unsubscribe
	s.cancel = nil
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Running reports whether background analysis is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stats samples queue depth and cache size. It doubles as the trace
// heartbeat sampler.
func (s *Service) Stats() map[string]string {
	pending, inFlight := s.queue.Len()
	return map[string]string{
		"pending":   strconv.Itoa(pending),
		"in_flight": strconv.Itoa(inFlight),
		"cached":    strconv.Itoa(s.cache.Len()),
	}
}

// Diagnostics waits until none of keys is pending or in flight, then
// returns their cached diagnostics. With background analysis stopped it
// returns the cache as is.
func (s *Service) Diagnostics(ctx context.Context, keys []workspace.ProjectID) ([]ProjectDiagnostic, error) {
	if s.Running() {
		if err := s.queue.WaitForCompletion(ctx, keys); err != nil {
			return nil, err
		}
	}
	return s.cache.Get(keys), nil
}

// AllDiagnostics is Diagnostics over every project of the current snapshot.
func (s *Service) AllDiagnostics(ctx context.Context) ([]ProjectDiagnostic, error) {
	return s.Diagnostics(ctx, s.graph.Snapshot().ProjectIDs())
}

// ReAnalyze queues keys, or every project when keys is empty, and returns
// what was queued.
func (s *Service) ReAnalyze(keys ...workspace.ProjectID) []workspace.ProjectID {
	snap := s.graph.Snapshot()
	if len(keys) == 0 {
		keys = snap.ProjectIDs()
	}
	queued := make([]workspace.ProjectID, 0, len(keys))
	for _, key := range keys {
		if _, ok := snap.Project(key); !ok {
			continue
		}
		s.listener.enqueue(key)
		queued = append(queued, key)
	}
	return queued
}

// ReAnalyzeWithDependents queues key and every project that references it.
func (s *Service) ReAnalyzeWithDependents(key workspace.ProjectID) []workspace.ProjectID {
	keys := []workspace.ProjectID{key}
	if g, ok := s.graph.(interface {
		Dependents(workspace.ProjectID) []workspace.ProjectID
	}); ok {
		keys = append(keys, g.Dependents(key)...)
	}
	return s.ReAnalyze(keys...)
}

// ReAnalyzePath queues the project owning path.
func (s *Service) ReAnalyzePath(path string) (workspace.ProjectID, bool) {
	p, ok := s.graph.Snapshot().ProjectForPath(path)
	if !ok {
		return workspace.ProjectID{}, false
	}
	s.ReAnalyze(p.ID)
	return p.ID, true
}

// Subscribe registers fn for forwarded diagnostic messages.
func (s *Service) Subscribe(fn func(DiagnosticMessage)) func() {
	return s.forwarder.Subscribe(fn)
}

// SubscribeProgress registers sink for progress events.
func (s *Service) SubscribeProgress(sink ProgressSink) func() {
	return s.progress.subscribe(sink)
}

// SaveCache persists the current results to path.
func (s *Service) SaveCache(path string) error {
	return SaveCache(path, s.cache, s.graph.Snapshot())
}

// LoadCache seeds the cache from path. Call before Start.
func (s *Service) LoadCache(path string) (int, error) {
	return LoadCache(path, s.cache, s.graph.Snapshot())
}

// Graph returns the project graph the service analyzes.
func (s *Service) Graph() Graph { return s.graph }

// Queue returns the work queue. Pushing a key schedules its analysis.
func (s *Service) Queue() *WorkQueue { return s.queue }

// Cache returns the result cache the scheduler stores into.
func (s *Service) Cache() *ResultCache { return s.cache }

// Scheduler returns the analysis scheduler, mainly for driving batches
// by hand in tests.
func (s *Service) Scheduler() *Scheduler { return s.scheduler }
