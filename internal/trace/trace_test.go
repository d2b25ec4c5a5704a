package trace

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLevelFiltersScopes(t *testing.T) {
	ring := NewRingTracer(16, LevelProject)

	batch := Begin(ring, ScopeBatch, "batch", 0)
	proj := Begin(ring, ScopeProject, "app", batch.ID())
	doc := Begin(ring, ScopeDocument, "main.go", proj.ID())
	doc.End("")
	proj.WithExtra("diagnostics", "2").End("ok")
	batch.End("")

	events := ring.Snapshot()
	if len(events) != 4 {
		t.Fatalf("want 4 events, got %d", len(events))
	}
	end := events[2]
	if end.Kind != KindSpanEnd || end.Name != "app" || end.ParentID != batch.ID() {
		t.Fatalf("unexpected project end event: %+v", end)
	}
	if end.Extra["diagnostics"] != "2" || end.Detail != "ok" {
		t.Fatalf("extra/detail lost: %+v", end)
	}
}

func TestDisabledTracerReturnsInertSpan(t *testing.T) {
	span := Begin(Nop, ScopeBatch, "batch", 0)
	if span.WithExtra("k", "v").End("") != 0 || span.ID() != 0 {
		t.Fatal("nop span must record nothing")
	}
}

func TestSpanFailRecordsError(t *testing.T) {
	ring := NewRingTracer(4, LevelProject)
	Begin(ring, ScopeProject, "app", 0).Fail(errors.New("boom"))

	events := ring.Snapshot()
	if len(events) != 2 {
		t.Fatalf("want 2 events, got %d", len(events))
	}
	end := events[1]
	if end.Detail != "failed" || end.Extra["error"] != "boom" || end.SpanID != events[0].SpanID {
		t.Fatalf("unexpected end event: %+v", end)
	}
}

func TestContextPropagation(t *testing.T) {
	ring := NewRingTracer(4, LevelDebug)
	ctx := WithTracer(context.Background(), ring)
	if FromContext(ctx) != Tracer(ring) {
		t.Fatal("tracer not propagated")
	}
	if FromContext(context.Background()) != Nop {
		t.Fatal("missing tracer must be Nop")
	}
	ctx = WithSpanContext(ctx, SpanContext{SpanID: 7})
	if CurrentSpan(ctx).SpanID != 7 {
		t.Fatal("span context not propagated")
	}
}

func TestRingWrapsAndDumps(t *testing.T) {
	ring := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		Point(ring, ScopeService, name, "", 0)
	}
	events := ring.Snapshot()
	if len(events) != 2 || events[0].Name != "b" || events[1].Name != "c" {
		t.Fatalf("unexpected ring contents: %+v", events)
	}

	var buf bytes.Buffer
	if err := ring.Dump(&buf, FormatNDJSON); err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 2 {
		t.Fatalf("want 2 ndjson lines, got %d", lines)
	}
	if !strings.Contains(buf.String(), `"scope":"service"`) {
		t.Fatalf("scope missing: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"off": LevelOff, "BATCH": LevelBatch, "project": LevelProject, "debug": LevelDebug} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("phase"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRingSinkDumpsOnClose(t *testing.T) {
	var out bytes.Buffer
	ring := NewRingTracer(8, LevelBatch).WithSink(&out, FormatText)
	Begin(ring, ScopeBatch, "batch", 0).End("2 projects")
	Point(ring, ScopeProject, "app", "", 0) // filtered by level

	if out.Len() != 0 {
		t.Fatal("ring must not write before Close")
	}
	if err := ring.Close(); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if strings.Count(got, "\n") != 2 || !strings.Contains(got, "(2 projects)") {
		t.Fatalf("unexpected dump:\n%s", got)
	}
	if err := ring.Close(); err != nil || strings.Count(out.String(), "\n") != 2 {
		t.Fatal("second Close must not dump again")
	}
}

func TestHeartbeatCarriesSampler(t *testing.T) {
	ring := NewRingTracer(64, LevelBatch)
	hb := StartHeartbeat(ring, time.Millisecond, func() map[string]string {
		return map[string]string{"pending": "3"}
	})
	deadline := time.Now().Add(2 * time.Second)
	for len(ring.Snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	hb.Stop()
	hb.Stop()

	events := ring.Snapshot()
	if len(events) == 0 {
		t.Fatal("no heartbeat emitted")
	}
	if events[0].Kind != KindHeartbeat || events[0].Extra["pending"] != "3" {
		t.Fatalf("unexpected heartbeat: %+v", events[0])
	}
	if StartHeartbeat(Nop, time.Millisecond, nil) != nil {
		t.Fatal("heartbeat on a disabled tracer must be nil")
	}
}

func TestMultiTracerFansOut(t *testing.T) {
	a := NewRingTracer(4, LevelDebug)
	b := NewRingTracer(4, LevelBatch)
	multi := NewMultiTracer(LevelDebug, a, Nop, b)

	Point(multi, ScopeDocument, "main.go", "", 0)
	Point(multi, ScopeBatch, "batch", "", 0)

	if len(a.Snapshot()) != 2 || len(b.Snapshot()) != 1 {
		t.Fatalf("children must filter by their own level: %d/%d", len(a.Snapshot()), len(b.Snapshot()))
	}
	if err := multi.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStreamFlushesOnSpanEnd(t *testing.T) {
	var out bytes.Buffer
	stream := NewStreamTracer(&out, LevelProject, FormatNDJSON)
	span := Begin(stream, ScopeProject, "app", 0)
	if out.Len() != 0 {
		t.Fatal("begin events stay buffered")
	}
	span.End("")
	if strings.Count(out.String(), "\n") != 2 {
		t.Fatalf("span end must flush: %q", out.String())
	}
}
