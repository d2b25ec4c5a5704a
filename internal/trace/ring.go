package trace

import (
	"io"
	"sync"
)

// RingTracer keeps the most recent events in memory. With a sink attached
// the surviving tail is written out on Close, which is how a long-running
// watch or serve session leaves a bounded trace behind.
type RingTracer struct {
	mu     sync.RWMutex
	buf    []Event
	next   int
	count  int
	level  Level
	sink   io.Writer
	format Format
}

// NewRingTracer keeps up to capacity events (4096 when not positive).
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = 4096
	}
	return &RingTracer{buf: make([]Event, capacity), level: level}
}

// WithSink makes Close dump the buffer to w in format.
func (t *RingTracer) WithSink(w io.Writer, format Format) *RingTracer {
	t.mu.Lock()
	t.sink, t.format = w, format
	t.mu.Unlock()
	return t
}

func (t *RingTracer) Emit(ev *Event) {
	if ev.Kind != KindHeartbeat && !t.level.ShouldEmit(ev.Scope) {
		return
	}
	t.mu.Lock()
	t.buf[t.next] = *ev
	t.next = (t.next + 1) % len(t.buf)
	if t.count < len(t.buf) {
		t.count++
	}
	t.mu.Unlock()
}

// Snapshot returns the stored events oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Event, 0, t.count)
	start := (t.next - t.count + len(t.buf)) % len(t.buf)
	for i := 0; i < t.count; i++ {
		out = append(out, t.buf[(start+i)%len(t.buf)])
	}
	return out
}

// Dump writes the stored events to w.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	for _, ev := range t.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (t *RingTracer) Flush() error { return nil }

// Close dumps to the sink, if any, and closes it unless it is a standard
// stream. The buffer stays readable.
func (t *RingTracer) Close() error {
	t.mu.Lock()
	sink, format := t.sink, t.format
	t.sink = nil
	t.mu.Unlock()
	if sink == nil {
		return nil
	}
	if err := t.Dump(sink, format); err != nil {
		return err
	}
	return closeWriter(sink)
}

func (t *RingTracer) Level() Level { return t.level }

func (t *RingTracer) Enabled() bool { return t.level > LevelOff }
