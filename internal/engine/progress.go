package engine

import (
	"sync"
	"time"

	"vigil/internal/workspace"
)

// Status captures the progress of one project analysis.
type Status string

const (
	// StatusQueued indicates the project was pushed onto the queue.
	StatusQueued Status = "queued"
	// StatusAnalyzing indicates the analyzer is running.
	StatusAnalyzing Status = "analyzing"
	// StatusAnalyzed indicates the result was stored.
	StatusAnalyzed Status = "analyzed"
	// StatusFailed indicates the analyzer failed; the previous result stays.
	StatusFailed Status = "failed"
)

// ProgressEvent reports a status change for one project.
type ProgressEvent struct {
	Project     workspace.ProjectID
	Name        string
	Status      Status
	Diagnostics int
	Elapsed     time.Duration
	Err         error
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnProgress(ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) OnProgress(ev ProgressEvent) { f(ev) }

// progressHub fans events out to sinks. A panicking sink is reported to
// onPanic and does not stop delivery to the others.
type progressHub struct {
	mu      sync.RWMutex
	sinks   map[uint64]ProgressSink
	next    uint64
	onPanic func(ProgressEvent, error)
}

func newProgressHub() *progressHub {
	return &progressHub{sinks: make(map[uint64]ProgressSink)}
}

func (h *progressHub) subscribe(sink ProgressSink) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.sinks[id] = sink
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.sinks, id)
			h.mu.Unlock()
		})
	}
}

func (h *progressHub) OnProgress(ev ProgressEvent) {
	h.mu.RLock()
	sinks := make([]ProgressSink, 0, len(h.sinks))
	for _, s := range h.sinks {
		sinks = append(sinks, s)
	}
	h.mu.RUnlock()

	for _, s := range sinks {
		if err := catch(func() { s.OnProgress(ev) }); err != nil && h.onPanic != nil {
			h.onPanic(ev, err)
		}
	}
}
