// Package wire implements the small subset of the protobuf wire format needed to
// exchange span contexts and reports with a collector.
//
// It is not a general protobuf library. It knows exactly one carrier message and
// one report/response shape, and the field numbers below are a compatibility
// contract with the collector.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Type is a protobuf wire type.
type Type uint8

const (
	TypeVarint  Type = 0
	TypeFixed64 Type = 1
	TypeBytes   Type = 2
	TypeFixed32 Type = 5
)

// maxVarintLen is the longest encoding of a 64-bit value.
const maxVarintLen = 10

var (
	// ErrTruncated means a read would run past the end of the buffer.
	ErrTruncated = errors.New("wire: truncated message")
	// ErrOverflow means a varint did not terminate within 10 bytes.
	ErrOverflow = errors.New("wire: varint overflows 64 bits")
	// ErrUnknownWireType means a tag carried a wire type this codec does not support.
	ErrUnknownWireType = errors.New("wire: unknown wire type")
	// ErrMalformed means the bytes parsed but do not form a valid message.
	ErrMalformed = errors.New("wire: malformed message")
)

// DecodeError reports where decoding failed.
// It matches the package sentinels with errors.Is.
type DecodeError struct {
	Err    error
	Field  uint64
	Offset int
}

func (e *DecodeError) Error() string {
	if e.Field != 0 {
		return fmt.Sprintf("%v (field %d, offset %d)", e.Err, e.Field, e.Offset)
	}
	return fmt.Sprintf("%v (offset %d)", e.Err, e.Offset)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(err error, field uint64, offset int) error {
	var de *DecodeError
	if errors.As(err, &de) {
		// Nested decoders report offsets relative to their own buffer.
		return &DecodeError{Err: de.Err, Field: de.Field, Offset: offset + de.Offset}
	}
	return &DecodeError{Err: err, Field: field, Offset: offset}
}

// AppendVarint appends v as a base-128 varint.
func AppendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

// SizeVarint returns the encoded length of v.
func SizeVarint(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ConsumeVarint parses a varint from the front of b and returns the value and
// the number of bytes read.
func ConsumeVarint(b []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < maxVarintLen; i++ {
		if i >= len(b) {
			return 0, 0, ErrTruncated
		}
		c := b[i]
		if i == maxVarintLen-1 && c > 1 {
			// The tenth byte may only hold the top bit of a 64-bit value.
			return 0, 0, ErrOverflow
		}
		v |= uint64(c&0x7f) << (7 * uint(i))
		if c < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrOverflow
}

// AppendFixed64 appends v in little-endian order.
func AppendFixed64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

// ConsumeFixed64 reads a little-endian 64-bit value from the front of b.
func ConsumeFixed64(b []byte) (uint64, int, error) {
	if len(b) < 8 {
		return 0, 0, ErrTruncated
	}
	return binary.LittleEndian.Uint64(b), 8, nil
}

// AppendTag appends the key for field num with wire type t.
func AppendTag(b []byte, num uint64, t Type) []byte {
	return AppendVarint(b, num<<3|uint64(t))
}

// ConsumeTag reads a field key.
func ConsumeTag(b []byte) (uint64, Type, int, error) {
	key, n, err := ConsumeVarint(b)
	if err != nil {
		return 0, 0, 0, err
	}
	t := Type(key & 7)
	switch t {
	case TypeVarint, TypeFixed64, TypeBytes, TypeFixed32:
	default:
		return 0, 0, 0, ErrUnknownWireType
	}
	num := key >> 3
	if num == 0 {
		return 0, 0, 0, ErrMalformed
	}
	return num, t, n, nil
}

// AppendBytes appends a length-delimited value.
func AppendBytes(b, v []byte) []byte {
	b = AppendVarint(b, uint64(len(v)))
	return append(b, v...)
}

// AppendString appends a length-delimited string.
func AppendString(b []byte, s string) []byte {
	b = AppendVarint(b, uint64(len(s)))
	return append(b, s...)
}

// ConsumeBytes reads a length-delimited value. The result aliases b.
func ConsumeBytes(b []byte) ([]byte, int, error) {
	l, n, err := ConsumeVarint(b)
	if err != nil {
		return nil, 0, err
	}
	if l > uint64(len(b)-n) {
		return nil, 0, ErrTruncated
	}
	end := n + int(l)
	return b[n:end], end, nil
}

// SkipField consumes the value of a field with wire type t and returns its length.
func SkipField(b []byte, t Type) (int, error) {
	switch t {
	case TypeVarint:
		// Walk the continuation bits without building the value.
		for i := 0; i < maxVarintLen; i++ {
			if i >= len(b) {
				return 0, ErrTruncated
			}
			if b[i] < 0x80 {
				return i + 1, nil
			}
		}
		return 0, ErrOverflow
	case TypeFixed64:
		if len(b) < 8 {
			return 0, ErrTruncated
		}
		return 8, nil
	case TypeFixed32:
		if len(b) < 4 {
			return 0, ErrTruncated
		}
		return 4, nil
	case TypeBytes:
		_, n, err := ConsumeBytes(b)
		return n, err
	default:
		return 0, ErrUnknownWireType
	}
}

// Field-level helpers used by the message encoders.

func appendVarintField(b []byte, num, v uint64) []byte {
	b = AppendTag(b, num, TypeVarint)
	return AppendVarint(b, v)
}

func appendFixed64Field(b []byte, num, v uint64) []byte {
	b = AppendTag(b, num, TypeFixed64)
	return AppendFixed64(b, v)
}

func appendStringField(b []byte, num uint64, s string) []byte {
	b = AppendTag(b, num, TypeBytes)
	return AppendString(b, s)
}

func appendBytesField(b []byte, num uint64, v []byte) []byte {
	b = AppendTag(b, num, TypeBytes)
	return AppendBytes(b, v)
}

func appendDoubleField(b []byte, num uint64, f float64) []byte {
	return appendFixed64Field(b, num, math.Float64bits(f))
}

func appendBoolField(b []byte, num uint64, v bool) []byte {
	var u uint64
	if v {
		u = 1
	}
	return appendVarintField(b, num, u)
}

// fieldFunc handles one field of a message. It returns the bytes it consumed.
type fieldFunc func(num uint64, t Type, b []byte) (int, error)

// walk iterates the fields of a message, calling fn for each one. fn returns
// (0, nil) for fields it does not know, and walk skips them.
func walk(b []byte, fn fieldFunc) error {
	off := 0
	for off < len(b) {
		num, t, n, err := ConsumeTag(b[off:])
		if err != nil {
			return decodeErr(err, 0, off)
		}
		off += n
		used, err := fn(num, t, b[off:])
		if err != nil {
			return decodeErr(err, num, off)
		}
		if used == 0 {
			used, err = SkipField(b[off:], t)
			if err != nil {
				return decodeErr(err, num, off)
			}
		}
		off += used
	}
	return nil
}

// expect checks that a known field arrived with its schema wire type.
func expect(t, want Type) error {
	if t != want {
		return ErrMalformed
	}
	return nil
}

func consumeUint(t Type, b []byte) (uint64, int, error) {
	if err := expect(t, TypeVarint); err != nil {
		return 0, 0, err
	}
	return ConsumeVarint(b)
}

func consumeFixed(t Type, b []byte) (uint64, int, error) {
	if err := expect(t, TypeFixed64); err != nil {
		return 0, 0, err
	}
	return ConsumeFixed64(b)
}

func consumeDelimited(t Type, b []byte) ([]byte, int, error) {
	if err := expect(t, TypeBytes); err != nil {
		return nil, 0, err
	}
	return ConsumeBytes(b)
}
