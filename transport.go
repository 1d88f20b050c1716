package spanz

import "context"

// Transport delivers an encoded report to a collector and returns the
// collector's encoded response, which may be empty. Implementations own
// timeouts and any retry policy; the tracer never retries a failed send.
type Transport interface {
	Send(ctx context.Context, payload []byte) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}
