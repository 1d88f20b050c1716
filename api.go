// Package spanz is a distributed tracing client that buffers finished spans
// and reports them to a remote collector.
//
// Spans are created by a Tracer, carry tags, logs and baggage, and propagate
// their identity across process boundaries through Inject and Extract. When a
// span finishes it is appended to the tracer's bounded buffer; a flush drains
// the buffer, corrects every timestamp for the estimated clock skew between
// this process and the collector, encodes the batch with the wire codec and
// hands it to a Transport without blocking the caller.
//
// Basic Usage:
//
//	tracer := spanz.New(
//		spanz.WithAccessToken(token),
//		spanz.WithComponentName("checkout"),
//		spanz.WithTransport(httpreport.New(collectorURL)),
//	)
//	defer tracer.Close(context.Background())
//
//	span := tracer.StartSpan("charge-card", spanz.Tag("card.brand", "visa"))
//	defer span.Finish()
//
//	// Continue the trace in another process.
//	var carrier []byte
//	_ = tracer.Inject(span.Context(), spanz.FormatBinary, &carrier)
//
// Thread Safety:
//
// Tracer, Span and Buffer are safe for concurrent use by multiple goroutines.
// SpanContext values are immutable.
//
// Dropped Spans:
//
// The buffer holds at most MaxSpanRecords spans. When it is full the oldest
// span is evicted; evictions, rejected reports and failed sends are counted
// and exposed through Tracer.DroppedSpans, the optional Prometheus metrics and
// the internal metrics sent with each report.
//
// Resource Cleanup:
//
// Call tracer.Close to stop automatic flushing, send what is still buffered
// and release background goroutines.
package spanz

// Standard tag keys and events written by the tracer.
const (
	// TagComponentName identifies the reporting component on the collector.
	TagComponentName = "lightstep.component_name"
	// TagTracerPlatform names the client library platform.
	TagTracerPlatform = "lightstep.tracer_platform"
	// TagError marks a span that recorded an error.
	TagError = "error"
	// EventError is the log event written by Span.LogError.
	EventError = "error"

	// LogFieldEvent and LogFieldPayload name the fields of a reported log record.
	LogFieldEvent   = "event"
	LogFieldPayload = "payload"

	// MetricSpansDropped is the internal metric reporting dropped spans.
	MetricSpansDropped = "spans.dropped"

	tracerPlatform = "go"
)
