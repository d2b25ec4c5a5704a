package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/workspace"
)

func TestWorkQueuePushIsIdempotent(t *testing.T) {
	q := NewWorkQueue()
	k := workspace.NewProjectID()

	q.Push(k)
	q.Push(k)
	pending, inFlight := q.Len()
	assert.Equal(t, 1, pending)
	assert.Equal(t, 0, inFlight)
	assert.Equal(t, []workspace.ProjectID{k}, q.PopBatch())
	assert.Empty(t, q.PopBatch())
}

func TestWorkQueueRerunAfterAcknowledge(t *testing.T) {
	q := NewWorkQueue()
	k := workspace.NewProjectID()

	q.Push(k)
	require.Len(t, q.PopBatch(), 1)
	assert.Equal(t, KeyInFlight, q.State(k))

	// a push while in flight must not create a second in-flight entry
	q.Push(k)
	q.Push(k)
	assert.Equal(t, KeyInFlightRerun, q.State(k))
	assert.Empty(t, q.PopBatch())

	q.Acknowledge(k)
	assert.Equal(t, KeyPending, q.State(k))
	assert.Equal(t, []workspace.ProjectID{k}, q.PopBatch())
	q.Acknowledge(k)
	assert.Equal(t, KeyIdle, q.State(k))
}

func TestWorkQueueAcknowledgeUnknownKey(t *testing.T) {
	q := NewWorkQueue()
	k := workspace.NewProjectID()
	q.Acknowledge(k)
	q.Push(k)
	q.Acknowledge(k)
	assert.Equal(t, KeyPending, q.State(k), "acknowledging a pending key must not drop it")
}

func TestWorkQueueWaitForCompletion(t *testing.T) {
	q := NewWorkQueue()
	a, b := workspace.NewProjectID(), workspace.NewProjectID()
	q.Push(a)
	q.Push(b)

	done := make(chan error, 1)
	go func() { done <- q.WaitForCompletion(context.Background(), []workspace.ProjectID{a}) }()

	q.PopBatch()
	select {
	case <-done:
		t.Fatal("returned while key in flight")
	case <-time.After(20 * time.Millisecond):
	}

	q.Acknowledge(a)
	require.NoError(t, <-done)
	assert.Equal(t, KeyInFlight, q.State(b))
}

func TestWorkQueueWaitForCompletionIdleKeys(t *testing.T) {
	q := NewWorkQueue()
	require.NoError(t, q.WaitForCompletion(context.Background(), nil))
	require.NoError(t, q.WaitForCompletion(context.Background(), []workspace.ProjectID{workspace.NewProjectID()}))
}

func TestWorkQueueWaitForCompletionHonoursContext(t *testing.T) {
	q := NewWorkQueue()
	k := workspace.NewProjectID()
	q.Push(k)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.WaitForCompletion(ctx, []workspace.ProjectID{k})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkQueueWaitForWork(t *testing.T) {
	q := NewWorkQueue()
	done := make(chan error, 1)
	go func() { done <- q.WaitForWork(context.Background()) }()

	select {
	case <-done:
		t.Fatal("returned without work")
	case <-time.After(10 * time.Millisecond):
	}
	q.Push(workspace.NewProjectID())
	require.NoError(t, <-done)
}
