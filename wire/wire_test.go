package wire

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 255, 300, 16383, 16384,
		math.MaxUint32, math.MaxUint32 + 1,
		1<<56 - 1, 1 << 63, math.MaxUint64,
	}
	for _, v := range values {
		b := AppendVarint(nil, v)
		assert.Equal(t, SizeVarint(v), len(b), "size of %d", v)

		got, n, err := ConsumeVarint(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(b), n)

		// Independent encoder must agree byte for byte.
		assert.Equal(t, protowire.AppendVarint(nil, v), b)
	}
}

func TestVarintOverflow(t *testing.T) {
	b := bytes.Repeat([]byte{0xff}, 10)
	b = append(b, 0x01)
	_, _, err := ConsumeVarint(b)
	assert.ErrorIs(t, err, ErrOverflow)

	// Ten bytes whose last byte carries more than the 64th bit.
	b = append(bytes.Repeat([]byte{0x80}, 9), 0x02)
	_, _, err = ConsumeVarint(b)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = SkipField(bytes.Repeat([]byte{0x80}, 12), TypeVarint)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestVarintTruncated(t *testing.T) {
	_, _, err := ConsumeVarint([]byte{0x80, 0x80})
	assert.ErrorIs(t, err, ErrTruncated)

	_, _, err = ConsumeVarint(nil)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestFixed64LittleEndian(t *testing.T) {
	b := AppendFixed64(nil, 0x0102030405060708)
	assert.Equal(t, []byte{8, 7, 6, 5, 4, 3, 2, 1}, b)

	v, n, err := ConsumeFixed64(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v)
	assert.Equal(t, 8, n)

	_, _, err = ConsumeFixed64(b[:7])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestConsumeTagRejectsUnknownWireType(t *testing.T) {
	// Wire type 3 (start group) is not supported.
	_, _, _, err := ConsumeTag([]byte{2<<3 | 3})
	assert.ErrorIs(t, err, ErrUnknownWireType)

	_, _, _, err = ConsumeTag([]byte{0 << 3})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSkipField(t *testing.T) {
	n, err := SkipField([]byte{0x96, 0x01, 0xff}, TypeVarint)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = SkipField(make([]byte, 9), TypeFixed64)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = SkipField([]byte{3, 'a', 'b', 'c', 'd'}, TypeBytes)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = SkipField([]byte{5, 'a'}, TypeBytes)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = SkipField([]byte{1, 2}, TypeFixed32)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = SkipField([]byte{0}, Type(4))
	assert.ErrorIs(t, err, ErrUnknownWireType)
}

func TestDecodeErrorCarriesOffset(t *testing.T) {
	b := AppendTag(nil, carrierTraceID, TypeFixed64)
	b = append(b, 1, 2, 3)

	_, err := DecodeContext(b)
	require.Error(t, err)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Offset)
	assert.Equal(t, uint64(carrierTraceID), de.Field)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Contains(t, err.Error(), "field 2")
}
