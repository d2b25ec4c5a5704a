package trace

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next global event sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

// NextSpanID returns a fresh span id; zero is never returned.
func NextSpanID() uint64 { return spanCounter.Add(1) }

// getGoroutineID reads the id from the "goroutine N [" header of
// runtime.Stack. Zero when the header cannot be parsed.
func getGoroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b, ok := bytes.CutPrefix(b, []byte("goroutine "))
	if !ok {
		return 0
	}
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	gid, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return gid
}

// Span is an open span. Begin returns an inert span when the tracer is off
// or filters the scope; every method accepts it and records nothing.
type Span struct {
	tracer  Tracer
	head    Event
	started time.Time
	extra   map[string]string
}

func (s *Span) live() bool {
	return s != nil && s.tracer != nil && s.tracer.Enabled()
}

// Begin starts a span under parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if !accepts(t, scope) {
		return &Span{tracer: Nop}
	}
	s := &Span{
		tracer:  t,
		started: time.Now(),
		head: Event{
			Scope:    scope,
			SpanID:   NextSpanID(),
			ParentID: parent,
			GID:      getGoroutineID(),
			Name:     name,
		},
	}
	ev := s.head
	ev.Time, ev.Seq, ev.Kind = s.started, NextSeq(), KindSpanBegin
	t.Emit(&ev)
	return s
}

// End emits the end event and returns the span duration.
func (s *Span) End(detail string) time.Duration {
	if !s.live() {
		return 0
	}
	now := time.Now()
	ev := s.head
	ev.Time, ev.Seq, ev.Kind = now, NextSeq(), KindSpanEnd
	ev.Detail, ev.Extra = detail, s.extra
	s.tracer.Emit(&ev)
	return now.Sub(s.started)
}

// Fail ends the span with detail "failed" and the error text under "error".
func (s *Span) Fail(err error) time.Duration {
	if err != nil {
		s.WithExtra("error", err.Error())
	}
	return s.End("failed")
}

// WithExtra attaches a key-value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if !s.live() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// ID is the span id; zero for an inert span.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.head.SpanID
}

// Point emits an instant event under parent.
func Point(t Tracer, scope Scope, name, detail string, parent uint64) {
	if !accepts(t, scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		GID:      getGoroutineID(),
		Name:     name,
		Detail:   detail,
	})
}

func accepts(t Tracer, scope Scope) bool {
	return t != nil && t.Enabled() && t.Level().ShouldEmit(scope)
}
