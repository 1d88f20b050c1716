package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleReport() *Report {
	return &Report{
		AccessToken:  "token-123",
		ReporterID:   77,
		ReporterTags: []KeyValue{StringKV("lightstep.component_name", "checkout")},
		Spans: []Span{
			{
				TraceID:        1,
				SpanID:         2,
				ParentSpanID:   3,
				Operation:      "GET /cart",
				StartMicros:    1_700_000_000_123_456,
				DurationMicros: 1500,
				Baggage:        map[string]string{"user": "alice"},
				Tags: []KeyValue{
					StringKV("http.method", "GET"),
					{Key: "retries", Kind: KindInt, IntValue: -3},
					{Key: "ratio", Kind: KindDouble, DoubleValue: 0.25},
					{Key: "cached", Kind: KindBool, BoolValue: true},
				},
				Logs: []Log{{
					TimestampMicros: 1_700_000_000_124_000,
					Fields: []KeyValue{
						StringKV("event", "cache miss"),
						{Key: "payload", Kind: KindJSON, StringValue: `{"k":"v"}`},
					},
				}},
			},
			{TraceID: 1, SpanID: 4, Operation: "root", StartMicros: 10},
		},
		Counts: []MetricsSample{{Name: "spans.dropped", Value: 12}},
	}
}

func TestReportRoundTrip(t *testing.T) {
	want := sampleReport()
	got, err := DecodeReport(EncodeReport(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReportNegativeTimestamps(t *testing.T) {
	want := &Report{
		ReporterID:            1,
		TimestampOffsetMicros: -250,
		Spans:                 []Span{{TraceID: 1, SpanID: 2, Operation: "op", StartMicros: -1_500_001}},
	}
	got, err := DecodeReport(EncodeReport(want))
	require.NoError(t, err)
	assert.Equal(t, int64(-1_500_001), got.Spans[0].StartMicros)
	assert.Equal(t, int64(-250), got.TimestampOffsetMicros)
}

func TestReportTopLevelLayout(t *testing.T) {
	b := EncodeReport(sampleReport())
	var fields []protowire.Number
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.Positive(t, n)
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		require.Positive(t, n)
		b = b[n:]
		fields = append(fields, num)
	}
	assert.Equal(t, []protowire.Number{1, 2, 3, 3, 6}, fields)
}

func TestSpanSizeMatchesEncoding(t *testing.T) {
	r := sampleReport()
	withSpans := len(EncodeReport(r))
	total := 0
	for i := range r.Spans {
		total += SpanSize(&r.Spans[i])
	}
	r.Spans = nil
	assert.Equal(t, withSpans, len(EncodeReport(r))+total)
}

func TestDecodeReportTruncated(t *testing.T) {
	b := EncodeReport(sampleReport())
	_, err := DecodeReport(b[:len(b)-3])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestReportResponseRoundTrip(t *testing.T) {
	want := &ReportResponse{
		ReceiveMicros:  1_700_000_000_000_100,
		TransmitMicros: 1_700_000_000_000_110,
		Errors:         []string{"bad token"},
		Disable:        true,
	}
	got, err := DecodeReportResponse(EncodeReportResponse(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.HasTimestamps())
}

func TestDecodeReportResponseEmpty(t *testing.T) {
	got, err := DecodeReportResponse(nil)
	require.NoError(t, err)
	assert.False(t, got.HasTimestamps())
	assert.False(t, got.Disable)
}
