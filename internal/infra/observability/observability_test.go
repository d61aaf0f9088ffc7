package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// Observability Tests
// ═══════════════════════════════════════════════════════════════════════════

// ─── Tracer ─────────────────────────────────────────────────────────────────

func TestTracer_StartEnd_RecordsSpan(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := context.Background()

	_, span := tr.StartSpan(ctx, "import.commit", map[string]string{"items": "5"})
	tr.EndSpan(span, nil)

	if tr.SpanCount() != 1 {
		t.Fatalf("SpanCount() = %d, want 1", tr.SpanCount())
	}
	spans := tr.Spans(1)
	if spans[0].Operation != "import.commit" {
		t.Errorf("Operation = %q, want %q", spans[0].Operation, "import.commit")
	}
	if spans[0].Status != SpanOK {
		t.Errorf("Status = %d, want SpanOK", spans[0].Status)
	}
	if spans[0].EndTime.Before(spans[0].StartTime) {
		t.Error("EndTime should not be before StartTime")
	}
	if spans[0].Attrs["items"] != "5" {
		t.Errorf("Attrs[items] = %q, want %q", spans[0].Attrs["items"], "5")
	}
}

func TestTracer_EndSpan_RecordsError(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	before := testutil.ToFloat64(TraceErrors)

	_, span := tr.StartSpan(context.Background(), "err-op", nil)
	tr.EndSpan(span, errors.New("boom"))

	spans := tr.Spans(1)
	if spans[0].Status != SpanError {
		t.Errorf("Status = %d, want SpanError", spans[0].Status)
	}
	if spans[0].Attrs["error"] != "boom" {
		t.Errorf("error attr = %q, want %q", spans[0].Attrs["error"], "boom")
	}
	if got := testutil.ToFloat64(TraceErrors) - before; got != 1 {
		t.Errorf("TraceErrors delta = %v, want 1", got)
	}
}

func TestTracer_Duration_UsesClock(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	tr.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	_, span := tr.StartSpan(context.Background(), "op", nil)
	tr.EndSpan(span, nil)

	if got := tr.Spans(1)[0].Duration; got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
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
		t.Fatal("nil tracer must still return a usable context and span")
	}
}

func TestTracer_RingBuffer_Overflow(t *testing.T) {
	tr := NewTracer(TracerConfig{Enabled: true, MaxSpans: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, span := tr.StartSpan(ctx, "op", nil)
		tr.EndSpan(span, nil)
	}

	if tr.SpanCount() != 3 {
		t.Errorf("SpanCount() = %d, want 3 (ring buffer overflow)", tr.SpanCount())
	}
}

func TestTracer_Spans_ZeroLimit(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, span := tr.StartSpan(ctx, "op", nil)
		tr.EndSpan(span, nil)
	}

	if spans := tr.Spans(0); len(spans) != 5 {
		t.Errorf("Spans(0) returned %d, want all 5", len(spans))
	}
	if spans := tr.Spans(3); len(spans) != 3 {
		t.Errorf("Spans(3) returned %d, want 3", len(spans))
	}
}

// ─── Context Propagation ────────────────────────────────────────────────────

func TestTracer_ChildInheritsTraceAndParent(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := WithTraceID(context.Background(), "req-abc")

	ctx, parent := tr.StartSpan(ctx, "import.commit", nil)
	_, child := tr.StartSpan(ctx, "ledger.credit", nil)
	tr.EndSpan(child, nil)
	tr.EndSpan(parent, nil)

	if child.TraceID != "req-abc" || parent.TraceID != "req-abc" {
		t.Errorf("trace ids = %q/%q, want req-abc", parent.TraceID, child.TraceID)
	}
	if child.ParentID != parent.SpanID {
		t.Errorf("ParentID = %q, want %q", child.ParentID, parent.SpanID)
	}
	if parent.ParentID != "" {
		t.Errorf("root span ParentID = %q, want empty", parent.ParentID)
	}
}

func TestTracer_AutoGeneratesTraceID(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	_, span := tr.StartSpan(context.Background(), "root-op", nil)
	tr.EndSpan(span, nil)

	if span.TraceID == "" {
		t.Error("TraceID should be auto-generated, got empty")
	}
}

func TestTracer_SpanIDUnique(t *testing.T) {
	tr := NewTracer(DefaultTracerConfig())
	ctx := context.Background()

	_, span1 := tr.StartSpan(ctx, "op1", nil)
	_, span2 := tr.StartSpan(ctx, "op2", nil)
	if span1.SpanID == span2.SpanID {
		t.Errorf("SpanIDs should be unique, both = %q", span1.SpanID)
	}
}

// ─── Metrics ────────────────────────────────────────────────────────────────

func TestMetrics_LabelsAccepted(t *testing.T) {
	before := testutil.ToFloat64(LedgerOperations.WithLabelValues("credit", "ok"))
	LedgerOperations.WithLabelValues("credit", "ok").Inc()
	if got := testutil.ToFloat64(LedgerOperations.WithLabelValues("credit", "ok")); got != before+1 {
		t.Errorf("credit/ok = %v, want %v", got, before+1)
	}

	TierPromotions.WithLabelValues("silver").Inc()
	ImportRows.WithLabelValues("preview", "resolved").Add(2)
	ImportCommits.WithLabelValues("partial").Inc()
	LedgerAmount.WithLabelValues("credit").Add(110)
}
