package trace

import (
	"strconv"
	"sync"
	"time"
)

// Sampler samples state worth attaching to a heartbeat, such as queue depth.
type Sampler func() map[string]string

// Heartbeat emits a liveness event every interval. A run of heartbeats with
// a growing in-flight count and no project span ends points at a stuck
// analysis.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	sample   Sampler
	stop     chan struct{}
	once     sync.Once
	done     sync.WaitGroup
}

// StartHeartbeat starts the ticker goroutine. It returns nil when tracing is
// off or interval is not positive; Stop accepts nil. sample may be nil.
func StartHeartbeat(tracer Tracer, interval time.Duration, sample Sampler) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		sample:   sample,
		stop:     make(chan struct{}),
	}
	h.done.Add(1)
	go h.loop()
	return h
}

func (h *Heartbeat) loop() {
	defer h.done.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var beats uint64
	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			beats++
			ev := &Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeService,
				GID:    getGoroutineID(),
				Name:   "heartbeat",
				Detail: "#" + strconv.FormatUint(beats, 10),
			}
			if h.sample != nil {
				ev.Extra = h.sample()
			}
			h.tracer.Emit(ev)
		}
	}
}

// Stop ends the goroutine and waits for it. Safe to call twice.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	h.done.Wait()
}
