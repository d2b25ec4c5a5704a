package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/diag"
	"vigil/internal/trace"
	"vigil/internal/workspace"
)

type schedulerFixture struct {
	ws     *workspace.Workspace
	queue  *WorkQueue
	cache  *ResultCache
	fwd    *Forwarder
	an     *fakeAnalyzer
	sched  *Scheduler
	mu     sync.Mutex
	msgs   []DiagnosticMessage
	events []ProgressEvent
}

func newSchedulerFixture(t *testing.T, cfg SchedulerConfig) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		ws:    workspace.New(),
		queue: NewWorkQueue(),
		cache: NewResultCache(),
		fwd:   NewForwarder(),
		an:    newFakeAnalyzer(),
	}
	f.fwd.Subscribe(func(m DiagnosticMessage) {
		f.mu.Lock()
		f.msgs = append(f.msgs, m)
		f.mu.Unlock()
	})
	f.sched = NewScheduler(SchedulerDeps{
		Queue:     f.queue,
		Cache:     f.cache,
		Graph:     f.ws,
		Analyzer:  f.an,
		Forwarder: f.fwd,
		Progress: ProgressFunc(func(ev ProgressEvent) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		}),
	}, cfg)
	return f
}

func (f *schedulerFixture) messages() []DiagnosticMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DiagnosticMessage(nil), f.msgs...)
}

func TestRunBatchStoresAndForwards(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	dir := t.TempDir()
	a := addProject(t, f.ws, dir, "a")
	path := setDoc(t, f.ws, a, "a.go", "a0")

	f.queue.Push(a)
	require.NoError(t, f.sched.RunBatch(context.Background()))

	assert.Equal(t, KeyIdle, f.queue.State(a))
	got := f.cache.Get([]workspace.ProjectID{a})
	assert.Equal(t, []string{"a0"}, messages(got))

	msgs := f.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, a, msgs[0].Project)
	assert.Equal(t, "a", msgs[0].ProjectName)
	require.Len(t, msgs[0].Files, 1)
	assert.Equal(t, path, msgs[0].Files[0].Path)
}

func TestRunBatchEmptyQueue(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	require.NoError(t, f.sched.RunBatch(context.Background()))
	assert.Empty(t, f.messages())
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	dir := t.TempDir()
	good := addProject(t, f.ws, dir, "good")
	bad := addProject(t, f.ws, dir, "bad")
	boom := addProject(t, f.ws, dir, "boom")
	setDoc(t, f.ws, good, "g.go", "fine")
	setDoc(t, f.ws, bad, "b.go", "old")
	setDoc(t, f.ws, boom, "x.go", "x")

	// seed a previous result for bad
	f.queue.Push(bad)
	require.NoError(t, f.sched.RunBatch(context.Background()))

	f.an.set(func(f *fakeAnalyzer) {
		f.fail["bad"] = errBoom
		f.panics["boom"] = true
	})
	for _, k := range []workspace.ProjectID{good, bad, boom} {
		f.queue.Push(k)
	}
	require.NoError(t, f.sched.RunBatch(context.Background()))

	for _, k := range []workspace.ProjectID{good, bad, boom} {
		assert.Equal(t, KeyIdle, f.queue.State(k))
	}
	assert.Equal(t, []string{"fine"}, messages(f.cache.Get([]workspace.ProjectID{good})))
	assert.Equal(t, []string{"old"}, messages(f.cache.Get([]workspace.ProjectID{bad})), "failed analysis keeps the previous result")
	_, ok := f.cache.Entry(boom)
	assert.False(t, ok)

	f.mu.Lock()
	defer f.mu.Unlock()
	var failed []string
	for _, ev := range f.events {
		if ev.Status == StatusFailed {
			failed = append(failed, ev.Name)
			require.Error(t, ev.Err)
		}
	}
	assert.ElementsMatch(t, []string{"bad", "boom"}, failed)
	for _, ev := range f.events {
		if ev.Name == "boom" && ev.Status == StatusFailed {
			var perr *PanicError
			assert.ErrorAs(t, ev.Err, &perr)
		}
	}
}

func TestRunBatchDoesNotForwardProjectScopedOnly(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	a := addProject(t, f.ws, t.TempDir(), "a")
	f.an.set(func(f *fakeAnalyzer) {
		f.extra["a"] = []diag.Diagnostic{{Severity: diag.SevError, ID: "PRJ5001", Message: "missing"}}
	})

	f.queue.Push(a)
	require.NoError(t, f.sched.RunBatch(context.Background()))

	assert.Empty(t, f.messages())
	got := f.cache.Get([]workspace.ProjectID{a})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Diagnostic.Project)
}

func TestRunBatchSkipsRemovedProject(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	a := addProject(t, f.ws, t.TempDir(), "a")
	f.queue.Push(a)
	require.NoError(t, f.ws.RemoveProject(a))

	require.NoError(t, f.sched.RunBatch(context.Background()))
	assert.Equal(t, KeyIdle, f.queue.State(a))
	assert.Zero(t, f.an.callCount("a"))
}

func TestRunBatchRespectsMaxParallel(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{MaxParallel: 1})
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d"} {
		k := addProject(t, f.ws, dir, name)
		setDoc(t, f.ws, k, "x.go", name)
		f.queue.Push(k)
	}
	require.NoError(t, f.sched.RunBatch(context.Background()))
	assert.Equal(t, int32(1), f.an.maxSeen.Load())
	assert.Equal(t, 4, f.cache.Len())
}

func TestRunBatchLooseProjectUsesDocumentAnalysis(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	dir := t.TempDir()
	loose, err := f.ws.OpenDocument(dir+"/one.py", []byte("one"))
	require.NoError(t, err)
	_, err = f.ws.OpenDocument(dir+"/two.py", []byte("two"))
	require.NoError(t, err)

	f.queue.Push(loose)
	require.NoError(t, f.sched.RunBatch(context.Background()))

	got := f.cache.Get([]workspace.ProjectID{loose})
	assert.ElementsMatch(t, []string{"one", "two"}, messages(got))
	assert.Equal(t, workspace.LooseProjectName, got[0].ProjectName)
	require.Len(t, f.messages(), 1)
}

func TestRunBatchTracesBatchAndProjects(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	a := addProject(t, f.ws, t.TempDir(), "a")
	ring := trace.NewRingTracer(32, trace.LevelProject)

	f.queue.Push(a)
	require.NoError(t, f.sched.RunBatch(trace.WithTracer(context.Background(), ring)))

	var names []string
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindSpanBegin {
			names = append(names, ev.Name)
		}
	}
	assert.Equal(t, []string{"batch", "a"}, names)
}

func TestRunBatchMetrics(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	a := addProject(t, f.ws, t.TempDir(), "a")
	b := addProject(t, f.ws, t.TempDir(), "b")
	f.an.set(func(f *fakeAnalyzer) { f.fail["b"] = errBoom })

	f.queue.Push(a)
	f.queue.Push(b)
	require.NoError(t, f.sched.RunBatch(context.Background()))

	m := f.sched.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("package", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("package", "failed")))
}

func TestRunBatchSurvivesPanickingSubscriber(t *testing.T) {
	f := newSchedulerFixture(t, SchedulerConfig{})
	f.fwd.Subscribe(func(DiagnosticMessage) { panic("subscriber gone") })
	dir := t.TempDir()
	a := addProject(t, f.ws, dir, "a")
	b := addProject(t, f.ws, dir, "b")
	setDoc(t, f.ws, a, "a.go", "a0")
	setDoc(t, f.ws, b, "b.go", "b0")

	f.queue.Push(a)
	f.queue.Push(b)
	require.NotPanics(t, func() { f.sched.runBatchSafely(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.queue.WaitForCompletion(ctx, []workspace.ProjectID{a, b}))
	assert.ElementsMatch(t, []string{"a0", "b0"}, messages(f.cache.Get([]workspace.ProjectID{a, b})))
	assert.Len(t, f.messages(), 2, "healthy subscriber still receives every message")
	assert.Equal(t, float64(2), testutil.ToFloat64(f.sched.metrics.loopFailures))
}

func TestRunBatchSurvivesPanickingProgressSink(t *testing.T) {
	ws := workspace.New()
	queue := NewWorkQueue()
	cache := NewResultCache()
	log, hook := test.NewNullLogger()
	sched := NewScheduler(SchedulerDeps{
		Queue:    queue,
		Cache:    cache,
		Graph:    ws,
		Analyzer: newFakeAnalyzer(),
		Progress: ProgressFunc(func(ev ProgressEvent) {
			if ev.Status == StatusAnalyzed {
				panic("sink gone")
			}
		}),
		Log: log,
	}, SchedulerConfig{})
	a := addProject(t, ws, t.TempDir(), "a")
	setDoc(t, ws, a, "a.go", "a0")

	queue.Push(a)
	require.NotPanics(t, func() { require.NoError(t, sched.RunBatch(context.Background())) })

	assert.Equal(t, KeyIdle, queue.State(a))
	assert.Equal(t, []string{"a0"}, messages(cache.Get([]workspace.ProjectID{a})))
	assert.Equal(t, float64(1), testutil.ToFloat64(sched.metrics.loopFailures))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "progress", entry.Data["callback"])
	assert.Contains(t, entry.Data, "stack")
}

func TestForwarderIsolatesSubscribers(t *testing.T) {
	fwd := NewForwarder()
	var got int
	fwd.Subscribe(func(DiagnosticMessage) { panic("first") })
	fwd.Subscribe(func(DiagnosticMessage) { got++ })
	fwd.Subscribe(func(DiagnosticMessage) { panic("third") })

	err := fwd.Forward(DiagnosticMessage{ProjectName: "a"})
	require.Error(t, err)
	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.NotEmpty(t, perr.Stack)
	assert.Equal(t, 1, got)
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 2)
}

func TestProgressHubIsolatesSinks(t *testing.T) {
	hub := newProgressHub()
	var failed []Status
	hub.onPanic = func(ev ProgressEvent, err error) {
		var perr *PanicError
		require.ErrorAs(t, err, &perr)
		failed = append(failed, ev.Status)
	}
	var seen []Status
	hub.subscribe(ProgressFunc(func(ProgressEvent) { panic("gone") }))
	hub.subscribe(ProgressFunc(func(ev ProgressEvent) { seen = append(seen, ev.Status) }))

	require.NotPanics(t, func() {
		hub.OnProgress(ProgressEvent{Name: "a", Status: StatusQueued})
		hub.OnProgress(ProgressEvent{Name: "a", Status: StatusAnalyzed})
	})
	assert.Equal(t, []Status{StatusQueued, StatusAnalyzed}, seen)
	assert.Equal(t, []Status{StatusQueued, StatusAnalyzed}, failed)
}
