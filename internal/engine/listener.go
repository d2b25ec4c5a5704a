package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"vigil/internal/workspace"
)

// ChangeListener turns graph mutations into queue pushes and bootstraps
// the first full analysis once the graph is ready.
type ChangeListener struct {
	graph    Graph
	queue    *WorkQueue
	progress ProgressSink
	log      logrus.FieldLogger
	poll     time.Duration
}

func NewChangeListener(graph Graph, queue *WorkQueue, progress ProgressSink, log logrus.FieldLogger, poll time.Duration) *ChangeListener {
	if progress == nil {
		progress = ProgressFunc(func(ProgressEvent) {})
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &ChangeListener{graph: graph, queue: queue, progress: progress, log: log, poll: poll}
}

// Listen subscribes to graph notifications; the returned function
// unsubscribes.
func (l *ChangeListener) Listen() func() {
	return l.graph.Subscribe(l.OnChange)
}

// OnChange enqueues the project affected by document edits and project
// additions. Other change kinds are ignored.
func (l *ChangeListener) OnChange(c workspace.Change) {
	switch c.Kind {
	case workspace.DocumentChanged, workspace.DocumentAdded, workspace.DocumentRemoved, workspace.ProjectAdded:
		l.enqueue(c.Project)
	}
}

// Bootstrap polls until the graph is initialized and non-empty, then queues
// every project once.
func (l *ChangeListener) Bootstrap(ctx context.Context) error {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for !l.graph.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	keys := l.graph.Snapshot().ProjectIDs()
	l.log.WithField("projects", len(keys)).Info("listener: workspace ready, queueing all projects")
	for _, key := range keys {
		l.enqueue(key)
	}
	return nil
}

func (l *ChangeListener) enqueue(key workspace.ProjectID) {
	l.queue.Push(key)
	name := ""
	if p, ok := l.graph.Snapshot().Project(key); ok {
		name = p.Name
	}
	l.progress.OnProgress(ProgressEvent{Project: key, Name: name, Status: StatusQueued})
}
