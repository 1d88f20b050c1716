// Package opentracer exposes a spanz.Tracer through the OpenTracing API.
//
//	tracer := spanz.New(spanz.WithTransport(tr))
//	opentracing.SetGlobalTracer(opentracer.New(tracer))
//
// Spans started here are ordinary spanz spans: they are buffered, reported
// and dropped exactly like spans started on the underlying tracer.
package opentracer

import (
	"errors"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	otlog "github.com/opentracing/opentracing-go/log"

	"github.com/zoobzio/spanz"
)

// Tracer implements opentracing.Tracer on top of a spanz.Tracer.
type Tracer struct {
	tracer *spanz.Tracer
}

var _ opentracing.Tracer = (*Tracer)(nil)

// New wraps t.
func New(t *spanz.Tracer) opentracing.Tracer {
	return &Tracer{tracer: t}
}

// Unwrap returns the underlying spanz tracer.
func (t *Tracer) Unwrap() *spanz.Tracer { return t.tracer }

// StartSpan starts a span. The first ChildOf or FollowsFrom reference to a
// spanz context becomes the parent; both kinds are reported as plain
// parent/child since the report format has a single parent field.
func (t *Tracer) StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span {
	var o opentracing.StartSpanOptions
	for _, opt := range opts {
		opt.Apply(&o)
	}

	spanOpts := make([]spanz.StartSpanOption, 0, 3)
	for _, ref := range o.References {
		if ref.Type != opentracing.ChildOfRef && ref.Type != opentracing.FollowsFromRef {
			continue
		}
		if sc, ok := ref.ReferencedContext.(SpanContext); ok {
			spanOpts = append(spanOpts, spanz.ChildOf(sc.SpanContext))
			break
		}
	}
	if !o.StartTime.IsZero() {
		spanOpts = append(spanOpts, spanz.StartTime(o.StartTime))
	}
	if len(o.Tags) > 0 {
		tags := make(map[string]string, len(o.Tags))
		for k, v := range o.Tags {
			tags[k] = spanz.ValueOf(v).String()
		}
		spanOpts = append(spanOpts, spanz.Tags(tags))
	}

	return &Span{span: t.tracer.StartSpan(operationName, spanOpts...), tracer: t}
}

// Inject writes sm into carrier. Binary carriers are io.Writer; text formats
// take opentracing.TextMapWriter, which includes opentracing.TextMapCarrier
// and opentracing.HTTPHeadersCarrier.
func (t *Tracer) Inject(sm opentracing.SpanContext, format any, carrier any) error {
	sc, ok := sm.(SpanContext)
	if !ok {
		return opentracing.ErrInvalidSpanContext
	}
	f, ok := spanzFormat(format)
	if !ok {
		return opentracing.ErrUnsupportedFormat
	}
	return translate(t.tracer.Inject(sc.SpanContext, f, carrier))
}

// Extract reads a span context from carrier.
func (t *Tracer) Extract(format any, carrier any) (opentracing.SpanContext, error) {
	f, ok := spanzFormat(format)
	if !ok {
		return nil, opentracing.ErrUnsupportedFormat
	}
	sc, err := t.tracer.Extract(f, carrier)
	if err != nil {
		return nil, translate(err)
	}
	return SpanContext{SpanContext: sc}, nil
}

func spanzFormat(format any) (spanz.Format, bool) {
	switch f := format.(type) {
	case opentracing.BuiltinFormat:
		switch f {
		case opentracing.Binary:
			return spanz.FormatBinary, true
		case opentracing.TextMap:
			return spanz.FormatTextMap, true
		case opentracing.HTTPHeaders:
			return spanz.FormatHTTPHeaders, true
		}
	case spanz.Format:
		return f, true
	}
	return "", false
}

// translate maps spanz propagation errors onto the OpenTracing sentinels,
// which callers compare by identity.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, spanz.ErrSpanContextNotFound):
		return opentracing.ErrSpanContextNotFound
	case errors.Is(err, spanz.ErrSpanContextCorrupted):
		return opentracing.ErrSpanContextCorrupted
	case errors.Is(err, spanz.ErrInvalidCarrier):
		return opentracing.ErrInvalidCarrier
	case errors.Is(err, spanz.ErrUnsupportedFormat):
		return opentracing.ErrUnsupportedFormat
	default:
		return err
	}
}

// SpanContext adapts spanz.SpanContext to opentracing.SpanContext.
type SpanContext struct {
	spanz.SpanContext
}

var _ opentracing.SpanContext = SpanContext{}

// Span implements opentracing.Span.
type Span struct {
	span   *spanz.Span
	tracer *Tracer
}

var _ opentracing.Span = (*Span)(nil)

// Unwrap returns the underlying spanz span.
func (s *Span) Unwrap() *spanz.Span { return s.span }

// Finish implements opentracing.Span.
func (s *Span) Finish() { s.span.Finish() }

// FinishWithOptions records any bulk logs and finishes the span at
// opts.FinishTime, or now when it is zero.
func (s *Span) FinishWithOptions(opts opentracing.FinishOptions) {
	for _, rec := range opts.LogRecords {
		s.logFields(rec.Timestamp, rec.Fields)
	}
	for i := range opts.BulkLogData {
		s.Log(opts.BulkLogData[i])
	}
	s.span.FinishAt(opts.FinishTime)
}

// Context implements opentracing.Span.
func (s *Span) Context() opentracing.SpanContext {
	return SpanContext{SpanContext: s.span.Context()}
}

// SetOperationName implements opentracing.Span.
func (s *Span) SetOperationName(operationName string) opentracing.Span {
	s.span.SetOperationName(operationName)
	return s
}

// SetTag stores value in its string form.
func (s *Span) SetTag(key string, value any) opentracing.Span {
	s.span.SetTag(key, spanz.ValueOf(value).String())
	return s
}

// LogFields records one log entry. A string field named "event" becomes the
// entry's event; the other fields form its payload.
func (s *Span) LogFields(fields ...otlog.Field) {
	s.logFields(time.Time{}, fields)
}

// LogKV is LogFields with alternating keys and values.
func (s *Span) LogKV(alternatingKeyValues ...any) {
	fields, err := otlog.InterleavedKVToFields(alternatingKeyValues...)
	if err != nil {
		s.LogFields(otlog.Error(err), otlog.String("function", "LogKV"))
		return
	}
	s.LogFields(fields...)
}

func (s *Span) logFields(ts time.Time, fields []otlog.Field) {
	enc := fieldEncoder{payload: make(map[string]spanz.Value, len(fields))}
	for _, f := range fields {
		f.Marshal(&enc)
	}
	var payload spanz.Value
	if len(enc.payload) > 0 {
		payload = spanz.MapValue(enc.payload)
	}
	s.span.LogAt(ts, enc.event, payload)
}

// SetBaggageItem implements opentracing.Span.
func (s *Span) SetBaggageItem(restrictedKey, value string) opentracing.Span {
	s.span.SetBaggageItem(restrictedKey, value)
	return s
}

// BaggageItem returns the baggage value for restrictedKey, or "".
func (s *Span) BaggageItem(restrictedKey string) string {
	v, _ := s.span.BaggageItem(restrictedKey)
	return v
}

// Tracer implements opentracing.Span.
func (s *Span) Tracer() opentracing.Tracer { return s.tracer }

// LogEvent is deprecated in OpenTracing; use LogFields.
func (s *Span) LogEvent(event string) {
	s.span.LogEvent(event)
}

// LogEventWithPayload is deprecated in OpenTracing; use LogFields.
func (s *Span) LogEventWithPayload(event string, payload any) {
	s.span.LogPayload(event, spanz.ValueOf(payload))
}

// Log is deprecated in OpenTracing; use LogFields.
func (s *Span) Log(ld opentracing.LogData) {
	s.span.LogAt(ld.Timestamp, ld.Event, spanz.ValueOf(ld.Payload))
}

// fieldEncoder collects log fields into a spanz payload.
type fieldEncoder struct {
	payload map[string]spanz.Value
	event   string
}

var _ otlog.Encoder = (*fieldEncoder)(nil)

func (e *fieldEncoder) EmitString(key, value string) {
	if key == "event" && e.event == "" {
		e.event = value
		return
	}
	e.payload[key] = spanz.StringValue(value)
}

func (e *fieldEncoder) EmitBool(key string, value bool) {
	e.payload[key] = spanz.BoolValue(value)
}

func (e *fieldEncoder) EmitInt(key string, value int) {
	e.payload[key] = spanz.IntValue(int64(value))
}

func (e *fieldEncoder) EmitInt32(key string, value int32) {
	e.payload[key] = spanz.IntValue(int64(value))
}

func (e *fieldEncoder) EmitInt64(key string, value int64) {
	e.payload[key] = spanz.IntValue(value)
}

func (e *fieldEncoder) EmitUint32(key string, value uint32) {
	e.payload[key] = spanz.IntValue(int64(value))
}

func (e *fieldEncoder) EmitUint64(key string, value uint64) {
	e.payload[key] = spanz.ValueOf(value)
}

func (e *fieldEncoder) EmitFloat32(key string, value float32) {
	e.payload[key] = spanz.FloatValue(float64(value))
}

func (e *fieldEncoder) EmitFloat64(key string, value float64) {
	e.payload[key] = spanz.FloatValue(value)
}

func (e *fieldEncoder) EmitObject(key string, value any) {
	e.payload[key] = spanz.ValueOf(value)
}

func (e *fieldEncoder) EmitLazyLogger(value otlog.LazyLogger) {
	value(e)
}
