package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/workspace"
)

func TestChangeListenerQueuesDocumentAndProjectEvents(t *testing.T) {
	ws := workspace.New()
	q := NewWorkQueue()
	l := NewChangeListener(ws, q, nil, nil, time.Millisecond)
	stop := l.Listen()
	defer stop()

	dir := t.TempDir()
	a := addProject(t, ws, dir, "a")
	assert.Equal(t, KeyPending, q.State(a), "ProjectAdded queues")
	q.PopBatch()
	q.Acknowledge(a)

	setDoc(t, ws, a, "a.go", "x")
	assert.Equal(t, KeyPending, q.State(a), "DocumentAdded queues")
	q.PopBatch()
	q.Acknowledge(a)

	require.NoError(t, ws.SetRules(a, map[string]string{"SEM3000": "none"}))
	assert.Equal(t, KeyIdle, q.State(a), "ProjectChanged is ignored")
}

func TestChangeListenerIgnoresProjectRemoved(t *testing.T) {
	ws := workspace.New()
	q := NewWorkQueue()
	a := addProject(t, ws, t.TempDir(), "a")

	l := NewChangeListener(ws, q, nil, nil, time.Millisecond)
	stop := l.Listen()
	defer stop()
	require.NoError(t, ws.RemoveProject(a))
	pending, _ := q.Len()
	assert.Zero(t, pending)
}

func TestChangeListenerBootstrapWaitsForReady(t *testing.T) {
	ws := workspace.New()
	q := NewWorkQueue()
	dir := t.TempDir()
	a := addProject(t, ws, dir, "a")
	b := addProject(t, ws, dir, "b")

	var queued []string
	l := NewChangeListener(ws, q, ProgressFunc(func(ev ProgressEvent) {
		if ev.Status == StatusQueued {
			queued = append(queued, ev.Name)
		}
	}), nil, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- l.Bootstrap(context.Background()) }()

	select {
	case <-done:
		t.Fatal("bootstrap finished before the workspace was initialized")
	case <-time.After(10 * time.Millisecond):
	}
	ws.MarkInitialized()
	require.NoError(t, <-done)

	assert.Equal(t, KeyPending, q.State(a))
	assert.Equal(t, KeyPending, q.State(b))
	assert.ElementsMatch(t, []string{"a", "b"}, queued)
}

func TestChangeListenerBootstrapCancelled(t *testing.T) {
	ws := workspace.New()
	l := NewChangeListener(ws, NewWorkQueue(), nil, nil, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Bootstrap(ctx), context.Canceled)
}
