package spanz

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"strconv"
)

// ErrMalformedID is returned when a hexadecimal ID cannot be parsed.
var ErrMalformedID = errors.New("spanz: malformed id")

// ID is a probabilistically unique 64-bit trace or span identifier.
// Zero is a valid value; collisions are accepted.
type ID uint64

// idHexLen is the fixed width of the hexadecimal form.
const idHexLen = 16

// GenerateID returns a fresh random ID.
// IDs carry no ordering.
func GenerateID() ID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// Fall back to the runtime's seeded generator if the OS source fails.
		return ID(mrand.Uint64())
	}
	return ID(binary.LittleEndian.Uint64(b[:]))
}

// String returns the ID as 16 lowercase hexadecimal digits.
func (id ID) String() string {
	var buf [idHexLen]byte
	const digits = "0123456789abcdef"
	v := uint64(id)
	for i := idHexLen - 1; i >= 0; i-- {
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[:])
}

// ParseID parses the 16-digit hexadecimal form of an ID. Upper and lower case
// digits are accepted.
func ParseID(s string) (ID, error) {
	if len(s) != idHexLen {
		return 0, fmt.Errorf("%w: %q has length %d, want %d", ErrMalformedID, s, len(s), idHexLen)
	}
	for i := 0; i < len(s); i++ {
		if !isHex(s[i]) {
			return 0, fmt.Errorf("%w: %q contains non-hex character %q", ErrMalformedID, s, s[i])
		}
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedID, err)
	}
	return ID(v), nil
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
