package spanz

import (
	"math"
	"sort"

	"github.com/zoobzio/spanz/wire"
)

// buildReport converts drained spans into an outbound report, shifting every
// timestamp by offset microseconds onto the collector's clock.
func (t *Tracer) buildReport(spans []*RawSpan, offset int64) *wire.Report {
	r := &wire.Report{
		AccessToken:  t.cfg.accessToken,
		ReporterID:   uint64(t.reporterID),
		ReporterTags: t.reporterTags(),
		Spans:        make([]wire.Span, 0, len(spans)),
	}
	for _, s := range spans {
		r.Spans = append(r.Spans, t.convertSpan(s, offset))
	}
	return r
}

// droppedCounts is the internal metric reporting n dropped spans.
func droppedCounts(n uint64) []wire.MetricsSample {
	if n > math.MaxInt64 {
		n = math.MaxInt64
	}
	return []wire.MetricsSample{{Name: MetricSpansDropped, Value: int64(n)}}
}

func (t *Tracer) reporterTags() []wire.KeyValue {
	tags := make(map[string]string, len(t.cfg.reporterTags)+2)
	for k, v := range t.cfg.reporterTags {
		tags[k] = v
	}
	tags[TagTracerPlatform] = tracerPlatform
	if t.cfg.componentName != "" {
		tags[TagComponentName] = t.cfg.componentName
	}
	return sortedKVs(tags)
}

func (t *Tracer) convertSpan(s *RawSpan, offset int64) wire.Span {
	out := wire.Span{
		TraceID:        uint64(s.Context.traceID),
		SpanID:         uint64(s.Context.spanID),
		ParentSpanID:   uint64(s.ParentSpanID),
		Operation:      s.Operation,
		StartMicros:    toMicros(s.Start, offset),
		DurationMicros: uint64(s.Duration().Microseconds()),
		Baggage:        s.Context.baggage,
		Tags:           sortedKVs(s.Tags),
	}
	if len(s.Logs) > 0 {
		out.Logs = make([]wire.Log, 0, len(s.Logs))
		for i := range s.Logs {
			out.Logs = append(out.Logs, t.convertLog(&s.Logs[i], offset))
		}
	}
	return out
}

func (t *Tracer) convertLog(l *LogRecord, offset int64) wire.Log {
	out := wire.Log{TimestampMicros: toMicros(l.Timestamp, offset)}
	if l.Event != "" {
		out.Fields = append(out.Fields, wire.StringKV(LogFieldEvent, l.Event))
	}
	if l.Payload.IsValid() {
		out.Fields = append(out.Fields, t.payloadKV(l.Payload))
	}
	return out
}

// payloadKV renders a log payload as a single typed field. Maps travel as
// JSON capped at the configured log payload length.
func (t *Tracer) payloadKV(v Value) wire.KeyValue {
	kv := wire.KeyValue{Key: LogFieldPayload}
	switch v.Kind() {
	case KindInt:
		kv.Kind, kv.IntValue = wire.KindInt, v.AsInt()
	case KindFloat:
		kv.Kind, kv.DoubleValue = wire.KindDouble, v.AsFloat()
	case KindBool:
		kv.Kind, kv.BoolValue = wire.KindBool, v.AsBool()
	case KindMap:
		kv.Kind, kv.StringValue = wire.KindJSON, v.JSON(t.cfg.maxLogPayloadLength)
	default:
		kv.Kind, kv.StringValue = wire.KindString, truncateUTF8(v.AsString(), t.cfg.maxLogPayloadLength)
	}
	return kv
}

func sortedKVs(m map[string]string) []wire.KeyValue {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]wire.KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, wire.StringKV(k, m[k]))
	}
	return out
}
