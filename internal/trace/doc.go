// Package trace records spans of the background analysis engine.
//
// A tracer is attached to the context handed to the engine; the scheduler
// opens one span per batch and one child span per analyzed project.
//
// # Usage
//
//	vigil watch --trace=- --trace-level=project
//
// # Tracers
//
//   - Nop: zero-overhead no-op tracer when disabled
//   - StreamTracer: writes every event to a file or stderr
//   - RingTracer: keeps the last N events; with a sink they are written out on Close
//   - MultiTracer: fans out to several tracers
//
// Heartbeats are emitted at ScopeService regardless of level and carry
// whatever their Sampler samples, for example engine queue depth.
//
// # Levels and scopes
//
// Scopes from coarse to fine are ScopeService, ScopeBatch, ScopeProject and
// ScopeDocument. A level emits every scope up to its own granularity:
//
//   - LevelOff: nothing
//   - LevelBatch: service and batch boundaries
//   - LevelProject: per-project analyses
//   - LevelDebug: everything, including per-document work
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeBatch, "batch", trace.CurrentSpan(ctx).SpanID)
//	defer span.End("")
package trace
