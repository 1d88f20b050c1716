package spanz

import (
	"fmt"
	"sync"
	"time"
)

// LogRecord is one timestamped event in a span's log.
type LogRecord struct {
	Timestamp time.Time
	Payload   Value
	Event     string
}

// RawSpan is the immutable record of a finished span, as held by the tracer's
// buffer until the next flush.
//
//nolint:govet // Field order follows the report layout
type RawSpan struct {
	Tags         map[string]string
	Logs         []LogRecord
	Operation    string
	Start        time.Time
	Finish       time.Time
	Context      SpanContext
	ParentSpanID ID
}

// Duration returns the span's elapsed time, never negative.
func (r *RawSpan) Duration() time.Duration {
	if d := r.Finish.Sub(r.Start); d > 0 {
		return d
	}
	return 0
}

// Span is one unit of work. All methods are safe for concurrent use; once
// the span is finished further mutations are ignored.
type Span struct {
	tracer    *Tracer
	tags      map[string]string
	logs      []LogRecord
	operation string
	start     time.Time
	finish    time.Time
	ctx       SpanContext
	parentID  ID
	mu        sync.Mutex
	finished  bool
}

// Tracer returns the tracer that created the span.
func (s *Span) Tracer() *Tracer { return s.tracer }

// Context returns the span's current context, including any baggage set so far.
func (s *Span) Context() SpanContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// TraceID returns the trace ID of this span.
func (s *Span) TraceID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.traceID
}

// SpanID returns the span ID of this span.
func (s *Span) SpanID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.spanID
}

// ParentSpanID returns the span ID of the parent, or zero for a root span.
func (s *Span) ParentSpanID() ID { return s.parentID }

// OperationName returns the current operation name.
func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operation
}

// SetOperationName renames the span.
func (s *Span) SetOperationName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.operation = name
}

// SetTag sets a tag, replacing any previous value for key.
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.setTagLocked(key, value)
}

// AddTags sets every tag in tags, overwriting existing keys.
func (s *Span) AddTags(tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	for k, v := range tags {
		s.setTagLocked(k, v)
	}
}

func (s *Span) setTagLocked(key, value string) {
	if s.tags == nil {
		s.tags = make(map[string]string)
	}
	s.tags[key] = value
}

// Tag returns the value of a tag.
func (s *Span) Tag(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.tags[key]
	return v, ok
}

// LogEvent records an event without payload at the current time.
func (s *Span) LogEvent(event string) {
	s.LogAt(time.Time{}, event, Value{})
}

// LogPayload records an event with a structured payload at the current time.
func (s *Span) LogPayload(event string, payload Value) {
	s.LogAt(time.Time{}, event, payload)
}

// LogAt records an event at ts. A zero ts means now; a zero payload means none.
func (s *Span) LogAt(ts time.Time, event string, payload Value) {
	if ts.IsZero() {
		ts = s.tracer.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.logs = append(s.logs, LogRecord{Timestamp: ts, Event: event, Payload: payload})
}

// LogError records an error event and marks the span with the error tag.
func (s *Span) LogError(message string, err error) {
	payload := map[string]Value{"message": StringValue(message)}
	if err != nil {
		payload["error.kind"] = StringValue(fmt.Sprintf("%T", err))
		payload["error.object"] = StringValue(err.Error())
	}
	ts := s.tracer.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.setTagLocked(TagError, "true")
	s.logs = append(s.logs, LogRecord{Timestamp: ts, Event: EventError, Payload: Value{kind: KindMap, m: payload}})
}

// SetBaggageItem adds baggage to the span's context. The previous context
// value is left untouched for anyone still holding it.
func (s *Span) SetBaggageItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = s.ctx.WithBaggageItem(key, value)
}

// BaggageItem returns a baggage value from the span's context.
func (s *Span) BaggageItem(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx.BaggageItem(key)
}

// Finish completes the span at the current time.
func (s *Span) Finish() {
	s.FinishAt(time.Time{})
}

// FinishAt completes the span at t, or now when t is zero, and hands it to
// the tracer. Only the first call has any effect.
func (s *Span) FinishAt(t time.Time) {
	if t.IsZero() {
		t = s.tracer.now()
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.finish = t
	raw := &RawSpan{
		Context:      s.ctx,
		ParentSpanID: s.parentID,
		Operation:    s.operation,
		Start:        s.start,
		Finish:       s.finish,
		Tags:         s.tags,
		Logs:         s.logs,
	}
	s.mu.Unlock()

	s.tracer.collect(raw)
}

// IsFinished reports whether Finish has been called.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}
