// Package resp implements the RESP2 wire protocol: the framing codec used
// by spec §4.1 (SimpleString "+", Error "-", Integer ":", bulk string "$",
// array "*", and the null-bulk/null-array special cases).
//
// Encoding is a pure function (Value -> bytes, via Encode; Write sends the
// same bytes to an io.Writer). Decoding is
// split across this file (the Value type, and the Type tag) and reader.go
// (the framing Reader, which pulls exactly one Value at a time off a byte
// source such as a socket).
package resp

import (
	"fmt"
	"io"
	"strconv"
)

// Type tags the kind of RESP value, replacing the string-typed command
// comparisons of the original implementation with an explicit enumeration.
type Type byte

// The five RESP2 value types.
const (
	TypeSimpleString Type = '+'
	TypeError        Type = '-'
	TypeInteger      Type = ':'
	TypeBulkString   Type = '$'
	TypeArray        Type = '*'
)

// Value is a single decoded (or to-be-encoded) RESP value. Arrays may
// contain heterogeneous element Values, matching spec §4.1 ("replies may
// mix" element types even though commands are always arrays of bulk
// strings).
type Value struct {
	Type Type

	// Str holds the payload for TypeSimpleString and TypeError.
	Str string

	// Int holds the payload for TypeInteger.
	Int int64

	// Bulk holds the payload for TypeBulkString. Null distinguishes an
	// empty bulk string ("") from a null bulk string ($-1\r\n).
	Bulk []byte

	// Array holds the elements for TypeArray. Null distinguishes an empty
	// array ([]Value{}) from a null array (*-1\r\n).
	Array []Value

	// Null marks a TypeBulkString or TypeArray value as the null variant.
	Null bool
}

// SimpleString constructs a "+..." Value.
func SimpleString(s string) Value { return Value{Type: TypeSimpleString, Str: s} }

// ErrorReply constructs a "-..." Value.
func ErrorReply(msg string) Value { return Value{Type: TypeError, Str: msg} }

// Errorf is a convenience wrapper around ErrorReply.
func Errorf(format string, args ...interface{}) Value {
	return ErrorReply(fmt.Sprintf(format, args...))
}

// Integer constructs a ":..." Value.
func Integer(n int64) Value { return Value{Type: TypeInteger, Int: n} }

// BulkString constructs a "$N\r\n...\r\n" Value from a byte slice.
func BulkString(b []byte) Value { return Value{Type: TypeBulkString, Bulk: b} }

// BulkStringFromString is a convenience wrapper around BulkString.
func BulkStringFromString(s string) Value { return BulkString([]byte(s)) }

// NullBulk constructs the "$-1\r\n" Value.
func NullBulk() Value { return Value{Type: TypeBulkString, Null: true} }

// Array constructs a "*N\r\n..." Value.
func Array(vs ...Value) Value { return Value{Type: TypeArray, Array: vs} }

// NullArray constructs the "*-1\r\n" Value.
func NullArray() Value { return Value{Type: TypeArray, Null: true} }

// ArrayOfStrings is a convenience constructor for an array of bulk strings,
// used heavily for building both outgoing commands (for replication
// propagation) and replies (e.g. KEYS, XRANGE rows).
func ArrayOfStrings(ss ...string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = BulkStringFromString(s)
	}
	return Array(vs...)
}

// Write serializes v to w in RESP2 wire format.
func Write(w io.Writer, v Value) error {
	buf := appendValue(nil, v)
	_, err := w.Write(buf)
	return err
}

// Encode returns the RESP2 wire bytes for v. Used by the replication
// manager, which needs the exact byte length of a propagated command for
// offset accounting (spec §4.7).
func Encode(v Value) []byte {
	return appendValue(nil, v)
}

func appendValue(buf []byte, v Value) []byte {
	switch v.Type {
	case TypeSimpleString:
		buf = append(buf, '+')
		buf = append(buf, v.Str...)
		return append(buf, '\r', '\n')
	case TypeError:
		buf = append(buf, '-')
		buf = append(buf, v.Str...)
		return append(buf, '\r', '\n')
	case TypeInteger:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, v.Int, 10)
		return append(buf, '\r', '\n')
	case TypeBulkString:
		if v.Null {
			return append(buf, '$', '-', '1', '\r', '\n')
		}
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(v.Bulk)), 10)
		buf = append(buf, '\r', '\n')
		buf = append(buf, v.Bulk...)
		return append(buf, '\r', '\n')
	case TypeArray:
		if v.Null {
			return append(buf, '*', '-', '1', '\r', '\n')
		}
		buf = append(buf, '*')
		buf = strconv.AppendInt(buf, int64(len(v.Array)), 10)
		buf = append(buf, '\r', '\n')
		for _, el := range v.Array {
			buf = appendValue(buf, el)
		}
		return buf
	default:
		panic(fmt.Sprintf("resp: unknown Type %q", byte(v.Type)))
	}
}
