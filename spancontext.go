package spanz

import (
	"context"
)

// SpanContext is the propagated identity of a span: its trace and span IDs
// plus baggage. A SpanContext is immutable once created; deriving a context
// with more baggage copies the map, so values already handed to other
// goroutines never change underneath them.
type SpanContext struct {
	baggage map[string]string
	traceID ID
	spanID  ID
}

// NewSpanContext builds a context from its parts. The baggage map is copied.
func NewSpanContext(traceID, spanID ID, baggage map[string]string) SpanContext {
	return SpanContext{traceID: traceID, spanID: spanID, baggage: cloneBaggage(baggage, 0)}
}

// TraceID returns the ID shared by every span in the trace.
func (c SpanContext) TraceID() ID { return c.traceID }

// SpanID returns the ID of the span this context identifies.
func (c SpanContext) SpanID() ID { return c.spanID }

// WithBaggageItem returns a new context carrying key=value in addition to the
// receiver's baggage. The receiver is not modified.
func (c SpanContext) WithBaggageItem(key, value string) SpanContext {
	baggage := cloneBaggage(c.baggage, 1)
	if baggage == nil {
		baggage = make(map[string]string, 1)
	}
	baggage[key] = value
	return SpanContext{traceID: c.traceID, spanID: c.spanID, baggage: baggage}
}

// BaggageItem returns the baggage value for key.
func (c SpanContext) BaggageItem(key string) (string, bool) {
	v, ok := c.baggage[key]
	return v, ok
}

// ForeachBaggageItem calls handler for every baggage entry in unspecified
// order. Iteration stops early when handler returns false.
func (c SpanContext) ForeachBaggageItem(handler func(key, value string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			return
		}
	}
}

// BaggageLen returns the number of baggage entries.
func (c SpanContext) BaggageLen() int { return len(c.baggage) }

// withSpanID derives the context of a child span: same trace, same baggage,
// new span ID. The baggage map is shared since neither side mutates it.
func (c SpanContext) withSpanID(id ID) SpanContext {
	return SpanContext{traceID: c.traceID, spanID: id, baggage: c.baggage}
}

func cloneBaggage(m map[string]string, extra int) map[string]string {
	if len(m) == 0 && extra == 0 {
		return nil
	}
	cp := make(map[string]string, len(m)+extra)
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// spanKeyType is a private type for context keys to avoid collisions.
type spanKeyType struct{}

var spanKey spanKeyType

// ContextWithSpan returns a copy of ctx carrying span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}
