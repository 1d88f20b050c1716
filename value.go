package spanz

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a log payload or structured field. It is a closed variant: the
// zero Value means "no payload", every other Value holds exactly one of the
// kinds above.
type Value struct {
	m    map[string]Value
	s    string
	num  uint64
	f    float64
	kind Kind
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{kind: KindInt, num: uint64(i)} }

// FloatValue returns a floating point Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// MapValue returns a nested map Value. The map is copied.
func MapValue(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// ValueOf converts a dynamically typed value into a Value. Maps become nested
// Values, errors and fmt.Stringers become strings, and anything else falls back
// to its %v form. Unsigned integers too large for an int64 become decimal
// strings.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Value{}
	case Value:
		return x
	case string:
		return StringValue(x)
	case bool:
		return BoolValue(x)
	case int:
		return IntValue(int64(x))
	case int8:
		return IntValue(int64(x))
	case int16:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return IntValue(int64(x))
	case uint16:
		return IntValue(int64(x))
	case uint32:
		return IntValue(int64(x))
	case uint64:
		return uintValue(x)
	case float32:
		return FloatValue(float64(x))
	case float64:
		return FloatValue(x)
	case map[string]Value:
		return MapValue(x)
	case map[string]string:
		m := make(map[string]Value, len(x))
		for k, s := range x {
			m[k] = StringValue(s)
		}
		return Value{kind: KindMap, m: m}
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			m[k] = ValueOf(e)
		}
		return Value{kind: KindMap, m: m}
	case error:
		return StringValue(x.Error())
	case fmt.Stringer:
		return StringValue(x.String())
	default:
		return StringValue(fmt.Sprintf("%v", v))
	}
}

func uintValue(x uint64) Value {
	if x > math.MaxInt64 {
		return StringValue(strconv.FormatUint(x, 10))
	}
	return IntValue(int64(x))
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a payload.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsString returns the string held by v, or "" for other kinds.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// AsInt returns the integer held by v, or 0 for other kinds.
func (v Value) AsInt() int64 {
	if v.kind != KindInt {
		return 0
	}
	return int64(v.num)
}

// AsFloat returns the float held by v, or 0 for other kinds.
func (v Value) AsFloat() float64 {
	if v.kind != KindFloat {
		return 0
	}
	return v.f
}

// AsBool returns the boolean held by v, or false for other kinds.
func (v Value) AsBool() bool {
	return v.kind == KindBool && v.num == 1
}

// AsMap returns a copy of the map held by v, or nil for other kinds.
func (v Value) AsMap() map[string]Value {
	if v.kind != KindMap {
		return nil
	}
	cp := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		cp[k] = e
	}
	return cp
}

// String renders scalar kinds in their natural text form and maps as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(int64(v.num), 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.num == 1)
	case KindMap:
		return v.JSON(0)
	default:
		return ""
	}
}

// JSON renders v as JSON, truncated to maxLen bytes when maxLen > 0.
// Truncation never splits a UTF-8 sequence.
func (v Value) JSON(maxLen int) string {
	b, err := sonic.ConfigStd.Marshal(v.plain())
	if err != nil {
		// Only non-finite floats fail to encode; render them as strings.
		b = []byte(strconv.Quote(v.fallbackString()))
	}
	return truncateUTF8(string(b), maxLen)
}

// plain converts v to the standard Go types understood by JSON encoders.
func (v Value) plain() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return int64(v.num)
	case KindFloat:
		return v.f
	case KindBool:
		return v.num == 1
	case KindMap:
		m := make(map[string]any, len(v.m))
		for k, e := range v.m {
			m[k] = e.plain()
		}
		return m
	default:
		return nil
	}
}

func (v Value) fallbackString() string {
	if v.kind != KindMap {
		return v.String()
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(v.m[k].fallbackString())
	}
	sb.WriteByte('}')
	return sb.String()
}

func truncateUTF8(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
