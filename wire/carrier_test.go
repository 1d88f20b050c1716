package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestContextRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		baggage map[string]string
		traceID uint64
		spanID  uint64
	}{
		{name: "zero ids", traceID: 0, spanID: 0},
		{name: "max ids", traceID: math.MaxUint64, spanID: math.MaxUint64 - 1},
		{name: "with baggage", traceID: 0xdeadbeef, spanID: 42, baggage: map[string]string{
			"user":  "alice",
			"empty": "",
			"":      "empty-key",
			"utf8":  "héllo wörld",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := EncodeContext(tc.traceID, tc.spanID, tc.baggage)
			c, err := DecodeContext(b)
			require.NoError(t, err)
			assert.Equal(t, tc.traceID, c.TraceID)
			assert.Equal(t, tc.spanID, c.SpanID)
			assert.Len(t, c.Baggage, len(tc.baggage))
			for k, v := range tc.baggage {
				assert.Equal(t, v, c.Baggage[k])
			}
		})
	}
}

func TestContextEncodingIsDeterministic(t *testing.T) {
	baggage := map[string]string{"c": "3", "a": "1", "b": "2"}
	first := EncodeContext(1, 2, baggage)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, EncodeContext(1, 2, baggage))
	}
}

// The carrier layout is a compatibility contract; check it with an independent
// protobuf decoder.
func TestContextWireLayout(t *testing.T) {
	b := EncodeContext(0x1122334455667788, 0x99, map[string]string{"k": "v"})

	num, typ, n := protowire.ConsumeTag(b)
	require.Positive(t, n)
	assert.Equal(t, protowire.Number(2), num)
	assert.Equal(t, protowire.Fixed64Type, typ)
	b = b[n:]
	v, n := protowire.ConsumeFixed64(b)
	require.Positive(t, n)
	assert.Equal(t, uint64(0x1122334455667788), v)
	b = b[n:]

	num, typ, n = protowire.ConsumeTag(b)
	require.Positive(t, n)
	assert.Equal(t, protowire.Number(3), num)
	assert.Equal(t, protowire.Fixed64Type, typ)
	b = b[n:]
	v, n = protowire.ConsumeFixed64(b)
	require.Positive(t, n)
	assert.Equal(t, uint64(0x99), v)
	b = b[n:]

	num, typ, n = protowire.ConsumeTag(b)
	require.Positive(t, n)
	assert.Equal(t, protowire.Number(4), num)
	assert.Equal(t, protowire.BytesType, typ)
	b = b[n:]
	entry, n := protowire.ConsumeBytes(b)
	require.Positive(t, n)
	assert.Empty(t, b[n:])

	num, _, n = protowire.ConsumeTag(entry)
	assert.Equal(t, protowire.Number(1), num)
	entry = entry[n:]
	key, n := protowire.ConsumeBytes(entry)
	assert.Equal(t, "k", string(key))
	entry = entry[n:]
	num, _, n = protowire.ConsumeTag(entry)
	assert.Equal(t, protowire.Number(2), num)
	entry = entry[n:]
	val, _ := protowire.ConsumeBytes(entry)
	assert.Equal(t, "v", string(val))
}

func TestDecodeContextSkipsDeprecatedAndUnknownFields(t *testing.T) {
	var b []byte
	// Deprecated text context at field 1.
	b = protowire.AppendTag(b, carrierDeprecatedText, protowire.BytesType)
	b = protowire.AppendString(b, "legacy")
	// Unknown varint, fixed32 and fixed64 fields.
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 1<<40)
	b = protowire.AppendTag(b, 10, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)
	b = protowire.AppendTag(b, 11, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = append(b, EncodeContext(5, 6, map[string]string{"x": "y"})...)

	c, err := DecodeContext(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), c.TraceID)
	assert.Equal(t, uint64(6), c.SpanID)
	assert.True(t, c.HasTraceID)
	assert.True(t, c.HasSpanID)
	assert.Equal(t, map[string]string{"x": "y"}, c.Baggage)
}

func TestDecodeContextReportsMissingIDs(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, carrierDeprecatedText, protowire.BytesType)
	b = protowire.AppendString(b, "abc")

	c, err := DecodeContext(b)
	require.NoError(t, err)
	assert.False(t, c.HasTraceID)
	assert.False(t, c.HasSpanID)

	c, err = DecodeContext(EncodeContext(0, 0, nil))
	require.NoError(t, err)
	assert.True(t, c.HasTraceID)
	assert.True(t, c.HasSpanID)
}

func TestEncodeContextNeverWritesDeprecatedField(t *testing.T) {
	b := EncodeContext(1, 2, map[string]string{"a": "b"})
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.Positive(t, n)
		assert.NotEqual(t, protowire.Number(carrierDeprecatedText), num)
		b = b[n:]
		n = protowire.ConsumeFieldValue(num, typ, b)
		require.Positive(t, n)
		b = b[n:]
	}
}

func TestDecodeContextErrors(t *testing.T) {
	valid := EncodeContext(1, 2, map[string]string{"key": "value"})

	t.Run("truncated", func(t *testing.T) {
		// Cut inside the trace id, inside the span id and inside the baggage entry.
		for _, i := range []int{5, 14, len(valid) - 1} {
			_, err := DecodeContext(valid[:i])
			assert.ErrorIs(t, err, ErrTruncated, "prefix %d", i)
		}
	})

	t.Run("unknown wire type", func(t *testing.T) {
		_, err := DecodeContext([]byte{7<<3 | 6})
		assert.ErrorIs(t, err, ErrUnknownWireType)
	})

	t.Run("overflow", func(t *testing.T) {
		b := AppendTag(nil, 9, TypeVarint)
		for i := 0; i < 11; i++ {
			b = append(b, 0xff)
		}
		_, err := DecodeContext(b)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("wrong wire type for trace id", func(t *testing.T) {
		b := AppendTag(nil, carrierTraceID, TypeVarint)
		b = AppendVarint(b, 5)
		_, err := DecodeContext(b)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("baggage entry without key", func(t *testing.T) {
		entry := appendStringField(nil, entryValue, "orphan")
		b := appendBytesField(nil, carrierBaggage, entry)
		_, err := DecodeContext(b)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestDecodeContextEmpty(t *testing.T) {
	c, err := DecodeContext(nil)
	require.NoError(t, err)
	assert.Zero(t, c.TraceID)
	assert.Zero(t, c.SpanID)
	assert.Nil(t, c.Baggage)
}
