package wire

import (
	"math"
)

// ReportRequest field numbers.
const (
	reportReporter        = 1
	reportAuth            = 2
	reportSpans           = 3
	reportTimestampOffset = 5
	reportMetrics         = 6

	reporterID   = 1
	reporterTags = 4

	authToken = 1

	contextTraceID = 1
	contextSpanID  = 2
	contextBaggage = 3

	spanContext    = 1
	spanOperation  = 2
	spanReferences = 3
	spanStart      = 4
	spanDuration   = 5
	spanTags       = 6
	spanLogs       = 7

	referenceRelationship = 1
	referenceContext      = 2

	kvKey    = 1
	kvString = 2
	kvInt    = 3
	kvDouble = 4
	kvBool   = 5
	kvJSON   = 6

	logTimestamp = 1
	logFields    = 2

	timestampSeconds = 1
	timestampNanos   = 2

	metricsCounts = 5

	sampleName  = 1
	sampleValue = 2
)

// ValueKind selects the populated member of a KeyValue.
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindInt
	KindDouble
	KindBool
	KindJSON
)

// KeyValue is a typed key/value pair used for tags and log fields.
type KeyValue struct {
	Key         string
	StringValue string
	IntValue    int64
	DoubleValue float64
	BoolValue   bool
	Kind        ValueKind
}

// StringKV returns a string-valued pair.
func StringKV(key, value string) KeyValue {
	return KeyValue{Key: key, StringValue: value, Kind: KindString}
}

// Log is a timestamped set of fields.
type Log struct {
	Fields          []KeyValue
	TimestampMicros int64
}

// Span is a finished span as sent to the collector. Timestamps are
// microseconds since the Unix epoch, already corrected for clock skew.
type Span struct {
	Baggage        map[string]string
	Operation      string
	Tags           []KeyValue
	Logs           []Log
	TraceID        uint64
	SpanID         uint64
	ParentSpanID   uint64
	StartMicros    int64
	DurationMicros uint64
}

// MetricsSample is a named counter reported alongside the spans.
type MetricsSample struct {
	Name  string
	Value int64
}

// Report is one outbound batch.
type Report struct {
	AccessToken           string
	ReporterTags          []KeyValue
	Spans                 []Span
	Counts                []MetricsSample
	ReporterID            uint64
	TimestampOffsetMicros int64
}

// EncodeReport serializes r.
func EncodeReport(r *Report) []byte {
	b := make([]byte, 0, 256)
	var sub []byte

	sub = appendVarintField(sub[:0], reporterID, r.ReporterID)
	for i := range r.ReporterTags {
		sub = appendKeyValueField(sub, reporterTags, &r.ReporterTags[i])
	}
	b = appendBytesField(b, reportReporter, sub)

	if r.AccessToken != "" {
		sub = appendStringField(sub[:0], authToken, r.AccessToken)
		b = appendBytesField(b, reportAuth, sub)
	}

	for i := range r.Spans {
		b = AppendTag(b, reportSpans, TypeBytes)
		b = AppendBytes(b, appendSpan(sub[:0], &r.Spans[i]))
	}

	if r.TimestampOffsetMicros != 0 {
		b = appendVarintField(b, reportTimestampOffset, uint64(r.TimestampOffsetMicros))
	}

	if len(r.Counts) > 0 {
		sub = sub[:0]
		var sample []byte
		for _, c := range r.Counts {
			sample = appendStringField(sample[:0], sampleName, c.Name)
			sample = appendVarintField(sample, sampleValue, uint64(c.Value))
			sub = appendBytesField(sub, metricsCounts, sample)
		}
		b = appendBytesField(b, reportMetrics, sub)
	}
	return b
}

// SpanSize returns the serialized size of s as a report entry, including its
// field key and length prefix.
func SpanSize(s *Span) int {
	n := len(appendSpan(nil, s))
	return SizeVarint(reportSpans<<3) + SizeVarint(uint64(n)) + n
}

func appendSpan(b []byte, s *Span) []byte {
	b = appendBytesField(b, spanContext, appendSpanContext(nil, s.TraceID, s.SpanID, s.Baggage))
	b = appendStringField(b, spanOperation, s.Operation)
	if s.ParentSpanID != 0 {
		ref := appendVarintField(nil, referenceRelationship, 0)
		ref = appendBytesField(ref, referenceContext, appendSpanContext(nil, s.TraceID, s.ParentSpanID, nil))
		b = appendBytesField(b, spanReferences, ref)
	}
	b = appendBytesField(b, spanStart, appendTimestamp(nil, s.StartMicros))
	b = appendVarintField(b, spanDuration, s.DurationMicros)
	for i := range s.Tags {
		b = appendKeyValueField(b, spanTags, &s.Tags[i])
	}
	for i := range s.Logs {
		b = appendBytesField(b, spanLogs, appendLog(nil, &s.Logs[i]))
	}
	return b
}

func appendSpanContext(b []byte, traceID, spanID uint64, baggage map[string]string) []byte {
	b = appendVarintField(b, contextTraceID, traceID)
	b = appendVarintField(b, contextSpanID, spanID)
	return appendStringMap(b, contextBaggage, baggage)
}

func appendLog(b []byte, l *Log) []byte {
	b = appendBytesField(b, logTimestamp, appendTimestamp(nil, l.TimestampMicros))
	for i := range l.Fields {
		b = appendKeyValueField(b, logFields, &l.Fields[i])
	}
	return b
}

func appendKeyValueField(b []byte, num uint64, kv *KeyValue) []byte {
	var sub []byte
	sub = appendStringField(sub, kvKey, kv.Key)
	switch kv.Kind {
	case KindInt:
		sub = appendVarintField(sub, kvInt, uint64(kv.IntValue))
	case KindDouble:
		sub = appendDoubleField(sub, kvDouble, kv.DoubleValue)
	case KindBool:
		sub = appendBoolField(sub, kvBool, kv.BoolValue)
	case KindJSON:
		sub = appendStringField(sub, kvJSON, kv.StringValue)
	default:
		sub = appendStringField(sub, kvString, kv.StringValue)
	}
	return appendBytesField(b, num, sub)
}

// appendTimestamp writes a google.protobuf.Timestamp for micros since the epoch.
func appendTimestamp(b []byte, micros int64) []byte {
	secs := micros / 1e6
	rem := micros % 1e6
	if rem < 0 {
		secs--
		rem += 1e6
	}
	if secs != 0 {
		b = appendVarintField(b, timestampSeconds, uint64(secs))
	}
	if rem != 0 {
		b = appendVarintField(b, timestampNanos, uint64(rem*1000))
	}
	return b
}

func consumeTimestamp(t Type, b []byte) (int64, int, error) {
	msg, n, err := consumeDelimited(t, b)
	if err != nil {
		return 0, 0, err
	}
	var secs, nanos int64
	err = walk(msg, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case timestampSeconds:
			v, n, err := consumeUint(t, b)
			secs = int64(v)
			return n, err
		case timestampNanos:
			v, n, err := consumeUint(t, b)
			nanos = int64(int32(v))
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return 0, 0, err
	}
	return secs*1e6 + nanos/1000, n, nil
}

// DecodeReport parses an encoded report. Collectors and tests use it; the
// tracer only encodes.
func DecodeReport(b []byte) (*Report, error) {
	r := &Report{}
	err := walk(b, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case reportReporter:
			msg, n, err := consumeDelimited(t, b)
			if err != nil {
				return 0, err
			}
			return n, walk(msg, func(num uint64, t Type, b []byte) (int, error) {
				switch num {
				case reporterID:
					v, n, err := consumeUint(t, b)
					r.ReporterID = v
					return n, err
				case reporterTags:
					kv, n, err := consumeKeyValue(t, b)
					if err == nil {
						r.ReporterTags = append(r.ReporterTags, kv)
					}
					return n, err
				}
				return 0, nil
			})
		case reportAuth:
			msg, n, err := consumeDelimited(t, b)
			if err != nil {
				return 0, err
			}
			return n, walk(msg, func(num uint64, t Type, b []byte) (int, error) {
				if num != authToken {
					return 0, nil
				}
				v, n, err := consumeDelimited(t, b)
				r.AccessToken = string(v)
				return n, err
			})
		case reportSpans:
			s, n, err := consumeSpan(t, b)
			if err == nil {
				r.Spans = append(r.Spans, s)
			}
			return n, err
		case reportTimestampOffset:
			v, n, err := consumeUint(t, b)
			r.TimestampOffsetMicros = int64(v)
			return n, err
		case reportMetrics:
			msg, n, err := consumeDelimited(t, b)
			if err != nil {
				return 0, err
			}
			return n, walk(msg, func(num uint64, t Type, b []byte) (int, error) {
				if num != metricsCounts {
					return 0, nil
				}
				s, n, err := consumeSample(t, b)
				if err == nil {
					r.Counts = append(r.Counts, s)
				}
				return n, err
			})
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func consumeSpan(t Type, b []byte) (Span, int, error) {
	var s Span
	msg, n, err := consumeDelimited(t, b)
	if err != nil {
		return s, 0, err
	}
	err = walk(msg, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case spanContext:
			ctx, n, err := consumeSpanContext(t, b)
			s.TraceID, s.SpanID, s.Baggage = ctx.TraceID, ctx.SpanID, ctx.Baggage
			return n, err
		case spanOperation:
			v, n, err := consumeDelimited(t, b)
			s.Operation = string(v)
			return n, err
		case spanReferences:
			ref, n, err := consumeDelimited(t, b)
			if err != nil {
				return 0, err
			}
			return n, walk(ref, func(num uint64, t Type, b []byte) (int, error) {
				if num != referenceContext {
					return 0, nil
				}
				ctx, n, err := consumeSpanContext(t, b)
				if s.ParentSpanID == 0 {
					s.ParentSpanID = ctx.SpanID
				}
				return n, err
			})
		case spanStart:
			v, n, err := consumeTimestamp(t, b)
			s.StartMicros = v
			return n, err
		case spanDuration:
			v, n, err := consumeUint(t, b)
			s.DurationMicros = v
			return n, err
		case spanTags:
			kv, n, err := consumeKeyValue(t, b)
			if err == nil {
				s.Tags = append(s.Tags, kv)
			}
			return n, err
		case spanLogs:
			l, n, err := consumeLog(t, b)
			if err == nil {
				s.Logs = append(s.Logs, l)
			}
			return n, err
		}
		return 0, nil
	})
	return s, n, err
}

func consumeSpanContext(t Type, b []byte) (Carrier, int, error) {
	var c Carrier
	msg, n, err := consumeDelimited(t, b)
	if err != nil {
		return c, 0, err
	}
	err = walk(msg, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case contextTraceID:
			v, n, err := consumeUint(t, b)
			c.TraceID = v
			return n, err
		case contextSpanID:
			v, n, err := consumeUint(t, b)
			c.SpanID = v
			return n, err
		case contextBaggage:
			if c.Baggage == nil {
				c.Baggage = make(map[string]string)
			}
			return consumeMapEntry(t, b, c.Baggage)
		}
		return 0, nil
	})
	return c, n, err
}

func consumeLog(t Type, b []byte) (Log, int, error) {
	var l Log
	msg, n, err := consumeDelimited(t, b)
	if err != nil {
		return l, 0, err
	}
	err = walk(msg, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case logTimestamp:
			v, n, err := consumeTimestamp(t, b)
			l.TimestampMicros = v
			return n, err
		case logFields:
			kv, n, err := consumeKeyValue(t, b)
			if err == nil {
				l.Fields = append(l.Fields, kv)
			}
			return n, err
		}
		return 0, nil
	})
	return l, n, err
}

func consumeKeyValue(t Type, b []byte) (KeyValue, int, error) {
	var kv KeyValue
	msg, n, err := consumeDelimited(t, b)
	if err != nil {
		return kv, 0, err
	}
	err = walk(msg, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case kvKey:
			v, n, err := consumeDelimited(t, b)
			kv.Key = string(v)
			return n, err
		case kvString, kvJSON:
			v, n, err := consumeDelimited(t, b)
			kv.StringValue = string(v)
			kv.Kind = KindString
			if num == kvJSON {
				kv.Kind = KindJSON
			}
			return n, err
		case kvInt:
			v, n, err := consumeUint(t, b)
			kv.IntValue, kv.Kind = int64(v), KindInt
			return n, err
		case kvDouble:
			v, n, err := consumeFixed(t, b)
			kv.DoubleValue, kv.Kind = math.Float64frombits(v), KindDouble
			return n, err
		case kvBool:
			v, n, err := consumeUint(t, b)
			kv.BoolValue, kv.Kind = v != 0, KindBool
			return n, err
		}
		return 0, nil
	})
	return kv, n, err
}

func consumeSample(t Type, b []byte) (MetricsSample, int, error) {
	var s MetricsSample
	msg, n, err := consumeDelimited(t, b)
	if err != nil {
		return s, 0, err
	}
	err = walk(msg, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case sampleName:
			v, n, err := consumeDelimited(t, b)
			s.Name = string(v)
			return n, err
		case sampleValue:
			v, n, err := consumeUint(t, b)
			s.Value = int64(v)
			return n, err
		}
		return 0, nil
	})
	return s, n, err
}
