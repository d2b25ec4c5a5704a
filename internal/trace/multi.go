package trace

import "errors"

// MultiTracer fans events out to several tracers. Each child filters by its
// own level.
type MultiTracer struct {
	children []Tracer
	level    Level
}

func NewMultiTracer(level Level, children ...Tracer) *MultiTracer {
	live := children[:0:0]
	for _, c := range children {
		if c != nil && c != Nop {
			live = append(live, c)
		}
	}
	return &MultiTracer{children: live, level: level}
}

func (t *MultiTracer) Emit(ev *Event) {
	for _, c := range t.children {
		c.Emit(ev)
	}
}

func (t *MultiTracer) Flush() error { return t.each(Tracer.Flush) }

// Close closes every child even when one of them fails.
func (t *MultiTracer) Close() error { return t.each(Tracer.Close) }

func (t *MultiTracer) each(fn func(Tracer) error) error {
	var errs []error
	for _, c := range t.children {
		if err := fn(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *MultiTracer) Level() Level { return t.level }

func (t *MultiTracer) Enabled() bool { return t.level > LevelOff }
