package observability

import (
	"context"
	"errors"
	"testing"
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

func TestTracer_StartEnd_RecordsSpan(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())

	_, span := tr.StartSpan(context.Background(), "engagement.record_activity", map[string]string{"user": "u1"})
	tr.EndSpan(span, nil)

	if tr.SpanCount() != 1 {
		t.Fatalf("SpanCount() = %d, want 1", tr.SpanCount())
	}
	spans := tr.Spans(1)
	if spans[0].Operation != "engagement.record_activity" {
		t.Errorf("Operation = %q", spans[0].Operation)
	}
	if spans[0].Status != SpanOK {
		t.Errorf("Status = %d, want SpanOK", spans[0].Status)
	}
	if spans[0].EndTime.Before(spans[0].StartTime) {
		t.Error("EndTime should not be before StartTime")
	}
	if spans[0].Attrs["user"] != "u1" {
		t.Errorf("Attrs[user] = %q, want %q", spans[0].Attrs["user"], "u1")
	}
}

func TestTracer_EndSpan_RecordsError(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())

	_, span := tr.StartSpan(context.Background(), "err-op", nil)
	tr.EndSpan(span, errors.New("boom"))

	spans := tr.Spans(1)
	if spans[0].Status != SpanError {
		t.Errorf("Status = %d, want SpanError", spans[0].Status)
	}
	if spans[0].Attrs["error"] != "boom" {
		t.Errorf("error attr = %q, want %q", spans[0].Attrs["error"], "boom")
	}
}

func TestTracer_Disabled(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: false, MaxSpans: 100})
	_, span := tr.StartSpan(context.Background(), "noop", nil)
	tr.EndSpan(span, nil)

	if tr.SpanCount() != 0 {
		t.Errorf("disabled tracer SpanCount() = %d, want 0", tr.SpanCount())
	}
}

func TestTracer_NilIsNoop(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.StartSpan(context.Background(), "noop", nil)
	tr.EndSpan(span, nil)
	if ctx == nil || span == nil {
		t.Fatal("nil tracer should still return a usable context and span")
	}
}

func TestTracer_RingBuffer_Overflow(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: true, MaxSpans: 3})
	for i := 0; i < 5; i++ {
		_, span := tr.StartSpan(context.Background(), "op", nil)
		tr.EndSpan(span, nil)
	}

	if tr.SpanCount() != 3 {
		t.Errorf("SpanCount() = %d, want 3 (ring buffer overflow)", tr.SpanCount())
	}
}

func TestTracer_Spans_Limit(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	for i := 0; i < 10; i++ {
		_, span := tr.StartSpan(context.Background(), "op", nil)
		tr.EndSpan(span, nil)
	}

	if spans := tr.Spans(3); len(spans) != 3 {
		t.Errorf("Spans(3) returned %d, want 3", len(spans))
	}
	if spans := tr.Spans(0); len(spans) != 10 {
		t.Errorf("Spans(0) returned %d, want all 10", len(spans))
	}
}

func TestTracer_Reset(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	_, span := tr.StartSpan(context.Background(), "op", nil)
	tr.EndSpan(span, nil)

	tr.Reset()
	if tr.SpanCount() != 0 {
		t.Errorf("SpanCount() after Reset = %d, want 0", tr.SpanCount())
	}
}

// ─── Context Propagation ────────────────────────────────────────────────────

func TestTracer_ContextPropagation(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := WithTraceID(context.Background(), "trace-abc")
	ctx = WithSpanID(ctx, "span-123")

	_, span := tr.StartSpan(ctx, "child-op", nil)
	tr.EndSpan(span, nil)

	spans := tr.Spans(1)
	if spans[0].TraceID != "trace-abc" {
		t.Errorf("TraceID = %q, want %q", spans[0].TraceID, "trace-abc")
	}
	if spans[0].ParentID != "span-123" {
		t.Errorf("ParentID = %q, want %q", spans[0].ParentID, "span-123")
	}
}

func TestTracer_NestedSpansShareTrace(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())

	ctx, parent := tr.StartSpan(context.Background(), "parent", nil)
	_, child := tr.StartSpan(ctx, "child", nil)
	tr.EndSpan(child, nil)
	tr.EndSpan(parent, nil)

	if parent.TraceID == "" {
		t.Fatal("root span should get a generated trace id")
	}
	if child.TraceID != parent.TraceID {
		t.Errorf("child TraceID = %q, want %q", child.TraceID, parent.TraceID)
	}
	if child.ParentID != parent.SpanID {
		t.Errorf("child ParentID = %q, want %q", child.ParentID, parent.SpanID)
	}
	if TraceIDFromContext(ctx) != parent.TraceID {
		t.Error("returned context should carry the trace id")
	}
}

func TestTracer_ServerSpanParentsInternalSpans(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())

	ctx, root := tr.StartServerSpan(context.Background(), "GET /api/games", nil)
	_, inner := tr.StartSpan(ctx, "engagement.leaderboard", nil)
	tr.EndSpan(inner, nil)
	root.SetAttr("status", "200")
	tr.EndSpan(root, nil)

	spans := tr.Spans(0)
	if len(spans) != 2 {
		t.Fatalf("Spans(0) returned %d, want 2", len(spans))
	}
	if spans[0].Kind != SpanInternal || spans[1].Kind != SpanServer {
		t.Errorf("kinds = %d,%d; want internal then server", spans[0].Kind, spans[1].Kind)
	}
	if spans[0].ParentID != spans[1].SpanID {
		t.Errorf("inner ParentID = %q, want %q", spans[0].ParentID, spans[1].SpanID)
	}
	if spans[1].Attrs["status"] != "200" {
		t.Errorf("attrs = %v", spans[1].Attrs)
	}
}

func TestTracer_NilReadersAreEmpty(t *testing.T) {
	var tr *Tracer
	_, span := tr.StartServerSpan(context.Background(), "op", nil)
	span.SetAttr("k", "v")
	tr.Reset()
	if tr.SpanCount() != 0 || tr.Spans(5) != nil {
		t.Error("nil tracer should report no spans")
	}
}

func TestTracer_SpanIDUnique(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())

	_, span1 := tr.StartSpan(context.Background(), "op1", nil)
	_, span2 := tr.StartSpan(context.Background(), "op2", nil)
	if span1.SpanID == span2.SpanID {
		t.Errorf("SpanIDs should be unique, both = %q", span1.SpanID)
	}
}
