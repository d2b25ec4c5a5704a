package engine

import (
	"context"
	"sync"

	"vigil/internal/workspace"
)

// KeyState is the queue state of a single project key.
type KeyState uint8

const (
	KeyIdle KeyState = iota
	KeyPending
	KeyInFlight
	// KeyInFlightRerun is in flight with another run requested.
	KeyInFlightRerun
)

func (s KeyState) String() string {
	switch s {
	case KeyIdle:
		return "idle"
	case KeyPending:
		return "pending"
	case KeyInFlight:
		return "in-flight"
	case KeyInFlightRerun:
		return "in-flight+rerun"
	}
	return "unknown"
}

// WorkQueue tracks projects waiting for analysis (pending) and projects
// being analyzed (in flight). A key is never pending and in flight at the
// same time: a push during analysis sets a rerun flag that Acknowledge turns
// back into a pending entry.
type WorkQueue struct {
	mu       sync.Mutex
	pending  map[workspace.ProjectID]struct{}
	inFlight map[workspace.ProjectID]bool // value: rerun requested
	// changed is closed and replaced on every state transition.
	changed chan struct{}
	observe func(pending, inFlight int)
}

// NewWorkQueue returns an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{
		pending:  make(map[workspace.ProjectID]struct{}),
		inFlight: make(map[workspace.ProjectID]bool),
		changed:  make(chan struct{}),
	}
}

// Push marks key for analysis. Pushing a pending key is a no-op; pushing an
// in-flight key requests one more run after the current one.
func (q *WorkQueue) Push(key workspace.ProjectID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if rerun, ok := q.inFlight[key]; ok {
		if !rerun {
			q.inFlight[key] = true
			q.signalLocked()
		}
		return
	}
	if _, ok := q.pending[key]; ok {
		return
	}
	q.pending[key] = struct{}{}
	q.signalLocked()
}

// PopBatch moves every pending key to in flight and returns them.
func (q *WorkQueue) PopBatch() []workspace.ProjectID {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	batch := make([]workspace.ProjectID, 0, len(q.pending))
	for key := range q.pending {
		batch = append(batch, key)
		q.inFlight[key] = false
	}
	clear(q.pending)
	q.signalLocked()
	return batch
}

// Acknowledge completes the in-flight run of key. If a rerun was requested
// meanwhile the key goes straight back to pending.
func (q *WorkQueue) Acknowledge(key workspace.ProjectID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rerun, ok := q.inFlight[key]
	if !ok {
		return
	}
	delete(q.inFlight, key)
	if rerun {
		q.pending[key] = struct{}{}
	}
	q.signalLocked()
}

// WaitForCompletion blocks until none of keys is pending or in flight.
// There is no built-in timeout: with a context that is never cancelled the
// wait is unbounded, and a hung analysis blocks it forever. Callers bound
// the wait through ctx; the returned error is ctx.Err().
func (q *WorkQueue) WaitForCompletion(ctx context.Context, keys []workspace.ProjectID) error {
	for {
		q.mu.Lock()
		busy := false
		for _, key := range keys {
			if q.stateLocked(key) != KeyIdle {
				busy = true
				break
			}
		}
		if !busy {
			q.mu.Unlock()
			return nil
		}
		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitForWork blocks until at least one key is pending.
func (q *WorkQueue) WaitForWork(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			q.mu.Unlock()
			return nil
		}
		ch := q.changed
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State reports the queue state of key.
func (q *WorkQueue) State(key workspace.ProjectID) KeyState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked(key)
}

// Len returns the number of pending and in-flight keys.
func (q *WorkQueue) Len() (pending, inFlight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.inFlight)
}

func (q *WorkQueue) stateLocked(key workspace.ProjectID) KeyState {
	if rerun, ok := q.inFlight[key]; ok {
		if rerun {
			return KeyInFlightRerun
		}
		return KeyInFlight
	}
	if _, ok := q.pending[key]; ok {
		return KeyPending
	}
	return KeyIdle
}

func (q *WorkQueue) signalLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
	if q.observe != nil {
		q.observe(len(q.pending), len(q.inFlight))
	}
}
