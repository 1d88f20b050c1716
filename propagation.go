package spanz

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/zoobzio/spanz/wire"
)

// Format selects how a SpanContext is written to and read from a carrier.
type Format string

// Supported propagation formats.
const (
	// FormatBinary carries the context as an encoded binary message. Inject
	// accepts *[]byte or io.Writer; Extract accepts []byte, *[]byte or io.Reader.
	FormatBinary Format = "binary"
	// FormatTextMap carries the context as string key/value pairs. Inject
	// accepts a TextMapWriter; Extract accepts a TextMapReader.
	FormatTextMap Format = "text_map"
	// FormatHTTPHeaders is FormatTextMap with URL-escaped values and
	// case-insensitive keys. http.Header is accepted directly. Header names
	// are case-folded, so baggage keys are written and read back lowercased.
	FormatHTTPHeaders Format = "http_headers"
)

// Text map keys.
const (
	FieldTraceID       = "trace-id-hex"
	FieldSpanID        = "span-id-hex"
	FieldBaggagePrefix = "baggage-"
)

// TextMapWriter is implemented by carriers that can receive text fields.
type TextMapWriter interface {
	Set(key, val string)
}

// TextMapReader is implemented by carriers that can enumerate text fields.
type TextMapReader interface {
	// ForeachKey calls handler for every field, stopping at the first error,
	// which is returned.
	ForeachKey(handler func(key, val string) error) error
}

// TextMapCarrier allows the use of a regular map[string]string as both
// TextMapWriter and TextMapReader.
type TextMapCarrier map[string]string

var _ TextMapWriter = (*TextMapCarrier)(nil)
var _ TextMapReader = (*TextMapCarrier)(nil)

// Set implements TextMapWriter.
func (c TextMapCarrier) Set(key, val string) {
	c[key] = val
}

// ForeachKey implements TextMapReader.
func (c TextMapCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, v := range c {
		if err := handler(k, v); err != nil {
			return err
		}
	}
	return nil
}

// HTTPHeadersCarrier wraps an http.Header as a TextMapWriter and TextMapReader.
type HTTPHeadersCarrier http.Header

var _ TextMapWriter = (*HTTPHeadersCarrier)(nil)
var _ TextMapReader = (*HTTPHeadersCarrier)(nil)

// Set implements TextMapWriter.
func (c HTTPHeadersCarrier) Set(key, val string) {
	http.Header(c).Set(key, val)
}

// ForeachKey implements TextMapReader.
func (c HTTPHeadersCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vals := range c {
		for _, v := range vals {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Inject writes sc into carrier using format.
func (t *Tracer) Inject(sc SpanContext, format Format, carrier any) error {
	switch format {
	case FormatBinary:
		return injectBinary(sc, carrier)
	case FormatTextMap:
		w, ok := carrier.(TextMapWriter)
		if !ok {
			return ErrInvalidCarrier
		}
		injectText(sc, w, false)
		return nil
	case FormatHTTPHeaders:
		w, ok := textWriter(carrier)
		if !ok {
			return ErrInvalidCarrier
		}
		injectText(sc, w, true)
		return nil
	default:
		return ErrUnsupportedFormat
	}
}

// Extract reads a SpanContext from carrier using format. It returns
// ErrSpanContextNotFound when the carrier holds no context and an error
// wrapping ErrSpanContextCorrupted when it holds a malformed one.
func (t *Tracer) Extract(format Format, carrier any) (SpanContext, error) {
	switch format {
	case FormatBinary:
		return extractBinary(carrier)
	case FormatTextMap:
		r, ok := carrier.(TextMapReader)
		if !ok {
			return SpanContext{}, ErrInvalidCarrier
		}
		return extractText(r, false)
	case FormatHTTPHeaders:
		r, ok := textReader(carrier)
		if !ok {
			return SpanContext{}, ErrInvalidCarrier
		}
		return extractText(r, true)
	default:
		return SpanContext{}, ErrUnsupportedFormat
	}
}

func injectBinary(sc SpanContext, carrier any) error {
	b := wire.EncodeContext(uint64(sc.traceID), uint64(sc.spanID), sc.baggage)
	switch c := carrier.(type) {
	case *[]byte:
		if c == nil {
			return ErrInvalidCarrier
		}
		*c = b
		return nil
	case io.Writer:
		_, err := c.Write(b)
		return err
	default:
		return ErrInvalidCarrier
	}
}

func extractBinary(carrier any) (SpanContext, error) {
	var b []byte
	switch c := carrier.(type) {
	case []byte:
		b = c
	case *[]byte:
		if c == nil {
			return SpanContext{}, ErrInvalidCarrier
		}
		b = *c
	case io.Reader:
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(c); err != nil {
			return SpanContext{}, err
		}
		b = buf.Bytes()
	default:
		return SpanContext{}, ErrInvalidCarrier
	}
	if len(b) == 0 {
		return SpanContext{}, ErrSpanContextNotFound
	}

	decoded, err := wire.DecodeContext(b)
	if err != nil {
		return SpanContext{}, fmt.Errorf("%w: %w", ErrSpanContextCorrupted, err)
	}
	switch {
	case !decoded.HasTraceID && !decoded.HasSpanID:
		return SpanContext{}, ErrSpanContextNotFound
	case !decoded.HasTraceID || !decoded.HasSpanID:
		return SpanContext{}, fmt.Errorf("%w: incomplete span context", ErrSpanContextCorrupted)
	}
	return SpanContext{
		traceID: ID(decoded.TraceID),
		spanID:  ID(decoded.SpanID),
		baggage: decoded.Baggage,
	}, nil
}

func textWriter(carrier any) (TextMapWriter, bool) {
	if h, ok := carrier.(http.Header); ok {
		return HTTPHeadersCarrier(h), true
	}
	w, ok := carrier.(TextMapWriter)
	return w, ok
}

func textReader(carrier any) (TextMapReader, bool) {
	if h, ok := carrier.(http.Header); ok {
		return HTTPHeadersCarrier(h), true
	}
	r, ok := carrier.(TextMapReader)
	return r, ok
}

func injectText(sc SpanContext, w TextMapWriter, escape bool) {
	w.Set(FieldTraceID, sc.traceID.String())
	w.Set(FieldSpanID, sc.spanID.String())
	for k, v := range sc.baggage {
		if escape {
			k, v = strings.ToLower(k), url.QueryEscape(v)
		}
		w.Set(FieldBaggagePrefix+k, v)
	}
}

func extractText(r TextMapReader, headers bool) (SpanContext, error) {
	var (
		traceID, spanID     ID
		haveTrace, haveSpan bool
		baggage             map[string]string
	)
	err := r.ForeachKey(func(k, v string) error {
		key := k
		if headers {
			key = strings.ToLower(k)
		}
		var err error
		switch key {
		case FieldTraceID:
			if traceID, err = ParseID(v); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrSpanContextCorrupted, FieldTraceID, err)
			}
			haveTrace = true
		case FieldSpanID:
			if spanID, err = ParseID(v); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrSpanContextCorrupted, FieldSpanID, err)
			}
			haveSpan = true
		default:
			if !strings.HasPrefix(key, FieldBaggagePrefix) {
				return nil
			}
			if headers {
				if v, err = url.QueryUnescape(v); err != nil {
					return fmt.Errorf("%w: %s: %w", ErrSpanContextCorrupted, k, err)
				}
			}
			if baggage == nil {
				baggage = make(map[string]string)
			}
			baggage[strings.TrimPrefix(key, FieldBaggagePrefix)] = v
		}
		return nil
	})
	if err != nil {
		return SpanContext{}, err
	}

	switch {
	case !haveTrace && !haveSpan:
		return SpanContext{}, ErrSpanContextNotFound
	case !haveTrace || !haveSpan:
		return SpanContext{}, fmt.Errorf("%w: incomplete span context", ErrSpanContextCorrupted)
	}
	return SpanContext{traceID: traceID, spanID: spanID, baggage: baggage}, nil
}
