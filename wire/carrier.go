package wire

import (
	"sort"
)

// Carrier field numbers. Field 1 held a deprecated text context in older schema
// versions; it is skipped on decode and never written.
const (
	carrierDeprecatedText = 1
	carrierTraceID        = 2
	carrierSpanID         = 3
	carrierBaggage        = 4

	entryKey   = 1
	entryValue = 2
)

// Carrier is the decoded form of a binary span context. HasTraceID and
// HasSpanID report whether the fields were present on the wire.
type Carrier struct {
	Baggage    map[string]string
	TraceID    uint64
	SpanID     uint64
	HasTraceID bool
	HasSpanID  bool
}

// EncodeContext encodes a span context for binary propagation.
// Baggage entries are written in key order so equal contexts encode identically.
func EncodeContext(traceID, spanID uint64, baggage map[string]string) []byte {
	b := make([]byte, 0, 2*9+contextBaggageSize(baggage))
	b = appendFixed64Field(b, carrierTraceID, traceID)
	b = appendFixed64Field(b, carrierSpanID, spanID)
	return appendStringMap(b, carrierBaggage, baggage)
}

func contextBaggageSize(baggage map[string]string) int {
	n := 0
	for k, v := range baggage {
		n += len(k) + len(v) + 8
	}
	return n
}

// DecodeContext decodes a binary span context.
func DecodeContext(b []byte) (Carrier, error) {
	var c Carrier
	err := walk(b, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case carrierTraceID:
			v, n, err := consumeFixed(t, b)
			c.TraceID, c.HasTraceID = v, true
			return n, err
		case carrierSpanID:
			v, n, err := consumeFixed(t, b)
			c.SpanID, c.HasSpanID = v, true
			return n, err
		case carrierBaggage:
			if c.Baggage == nil {
				c.Baggage = make(map[string]string)
			}
			return consumeMapEntry(t, b, c.Baggage)
		}
		return 0, nil
	})
	if err != nil {
		return Carrier{}, err
	}
	return c, nil
}

// appendStringMap writes m as repeated key/value submessages under field num.
func appendStringMap(b []byte, num uint64, m map[string]string) []byte {
	if len(m) == 0 {
		return b
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var entry []byte
	for _, k := range keys {
		entry = entry[:0]
		entry = appendStringField(entry, entryKey, k)
		entry = appendStringField(entry, entryValue, m[k])
		b = appendBytesField(b, num, entry)
	}
	return b
}

// consumeMapEntry decodes one key/value submessage into m.
func consumeMapEntry(t Type, b []byte, m map[string]string) (int, error) {
	entry, n, err := consumeDelimited(t, b)
	if err != nil {
		return 0, err
	}
	var key, value string
	var hasKey bool
	err = walk(entry, func(num uint64, t Type, b []byte) (int, error) {
		switch num {
		case entryKey:
			v, n, err := consumeDelimited(t, b)
			key, hasKey = string(v), true
			return n, err
		case entryValue:
			v, n, err := consumeDelimited(t, b)
			value = string(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return 0, err
	}
	if !hasKey {
		return 0, ErrMalformed
	}
	m[key] = value
	return n, nil
}
