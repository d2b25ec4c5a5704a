package trace

import "context"

type carrierKey struct{}

// carrier is what a context holds: the tracer and the innermost open span.
type carrier struct {
	tracer Tracer
	span   SpanContext
}

func carrierOf(ctx context.Context) carrier {
	if ctx == nil {
		return carrier{tracer: Nop}
	}
	c, ok := ctx.Value(carrierKey{}).(carrier)
	if !ok || c.tracer == nil {
		c.tracer = Nop
	}
	return c
}

// FromContext returns the tracer attached to ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	return carrierOf(ctx).tracer
}

// WithTracer attaches t to ctx. The current span is kept.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	c := carrierOf(ctx)
	c.tracer = t
	if t == nil {
		c.tracer = Nop
	}
	return context.WithValue(ctx, carrierKey{}, c)
}

// SpanContext identifies the span new spans should nest under.
type SpanContext struct {
	SpanID uint64
	GID    uint64
}

// CurrentSpan returns the innermost span recorded in ctx; zero when none.
func CurrentSpan(ctx context.Context) SpanContext {
	return carrierOf(ctx).span
}

// WithSpanContext records sc as the parent for spans started from ctx.
func WithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		return nil
	}
	c := carrierOf(ctx)
	c.span = sc
	return context.WithValue(ctx, carrierKey{}, c)
}
