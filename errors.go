package spanz

import "errors"

var (
	// ErrUnsupportedFormat is returned by Inject and Extract for unknown formats.
	ErrUnsupportedFormat = errors.New("spanz: unsupported propagation format")
	// ErrInvalidCarrier is returned when the carrier does not match the format.
	ErrInvalidCarrier = errors.New("spanz: invalid carrier for format")
	// ErrSpanContextNotFound is returned by Extract when the carrier holds no
	// span context at all.
	ErrSpanContextNotFound = errors.New("spanz: span context not found")
	// ErrSpanContextCorrupted is returned by Extract for malformed input.
	ErrSpanContextCorrupted = errors.New("spanz: span context corrupted")
	// ErrPayloadTooLarge is reported when a report exceeds the payload budget.
	ErrPayloadTooLarge = errors.New("spanz: report payload too large")
	// ErrFlushInFlight is reported when a flush is requested while another one
	// is still being sent.
	ErrFlushInFlight = errors.New("spanz: flush already in flight")
	// ErrNoTransport is reported when a flush has spans but nowhere to send them.
	ErrNoTransport = errors.New("spanz: no transport configured")
	// ErrTracerClosed is reported by flushes requested after Close.
	ErrTracerClosed = errors.New("spanz: tracer closed")
	// ErrTracerDisabled is reported by flushes after the collector disabled the tracer.
	ErrTracerDisabled = errors.New("spanz: tracer disabled by collector")
	// ErrGlobalTracerSet is returned when the global tracer is registered twice.
	ErrGlobalTracerSet = errors.New("spanz: global tracer already set")
	// ErrInvalidTracer is returned when a nil tracer is registered globally.
	ErrInvalidTracer = errors.New("spanz: nil tracer")
)
