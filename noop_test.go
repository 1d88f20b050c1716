package spanz

import (
	"context"
	"runtime"
	"testing"
)

func BenchmarkSpanLifecycle(b *testing.B) {
	tracer := New(WithFlushInterval(0), WithMaxSpanRecords(1024))
	defer tracer.Close(context.Background())

	b.Run("start-finish", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			tracer.StartSpan("test-op").Finish()
		}
	})

	b.Run("tagged", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			span := tracer.StartSpan("test-op")
			span.SetTag("key", "value")
			span.LogPayload("event", IntValue(123))
			span.Finish()
		}
	})

	b.Run("disabled", func(b *testing.B) {
		tracer.disabled.Store(true)
		defer tracer.disabled.Store(false)
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			tracer.StartSpan("test-op").Finish()
		}
	})
}

func TestDisabledTracerDropsSpans(t *testing.T) {
	tracer := newTestTracer(t)
	tracer.disabled.Store(true)

	span := tracer.StartSpan("test-op")
	span.SetTag("key", "value")
	span.LogEvent("still recorded on the span")
	span.Finish()

	// Disabled tracers still hand out working spans.
	if span.SpanID() == span.TraceID() {
		t.Error("Expected real IDs on spans from a disabled tracer")
	}
	if v, _ := span.Tag("key"); v != "value" {
		t.Errorf("Expected tag on span, got %q", v)
	}

	if tracer.BufferedSpans() != 0 {
		t.Errorf("Expected nothing buffered, got %d", tracer.BufferedSpans())
	}
	if tracer.DroppedSpans() != 1 {
		t.Errorf("Expected 1 dropped span, got %d", tracer.DroppedSpans())
	}
}

func TestBufferMemoryBounded(t *testing.T) {
	tracer := newTestTracer(t, WithMaxSpanRecords(100))

	runtime.GC()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	for i := 0; i < 10000; i++ {
		span := tracer.StartSpan("test-op")
		span.SetTag("key", "value")
		span.Finish()
	}

	runtime.GC()
	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	if tracer.BufferedSpans() != 100 {
		t.Errorf("Expected buffer to hold 100 spans, got %d", tracer.BufferedSpans())
	}

	// Evicted spans must be collectable; retained heap stays far below what
	// 10000 spans would need.
	if after.HeapAlloc > before.HeapAlloc {
		if grown := after.HeapAlloc - before.HeapAlloc; grown > 1<<20 {
			t.Errorf("Heap grew by %d bytes for a 100-span buffer", grown)
		}
	}
}
