package resp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/redikit/redikit/merr"
)

// ErrConnectionClosed is returned when the underlying connection reaches
// EOF cleanly between frames (i.e. the client disconnected, rather than
// sending a malformed frame mid-way through).
var ErrConnectionClosed = errors.New("resp: connection closed")

// Reader pulls exactly one RESP frame at a time off a byte source,
// preserving message boundaries across reads the way spec §4.1 requires.
// All sizes are parsed as 64-bit.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for framed RESP reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

func protoErr(format string, args ...interface{}) error {
	return merr.New(context.Background(), merr.KindProtocol, fmt.Sprintf(format, args...))
}

// wrapEOF maps a plain EOF seen at a frame boundary to ErrConnectionClosed,
// and an EOF or short read mid-frame to a protocol-kind wrapped error -- a
// half-read frame is not a clean disconnect. Any other I/O error is returned
// unchanged.
func wrapEOF(err error, midFrame bool) error {
	if err == nil {
		return nil
	}
	if err == io.EOF && !midFrame {
		return ErrConnectionClosed
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return protoErr("connection closed mid-frame")
	}
	return err
}

func (r *Reader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		return "", wrapEOF(err, true)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return "", protoErr("unterminated line %q", line)
	}
	return line[:len(line)-2], nil
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, wrapEOF(err, true)
	}
	return b, nil
}

// ReadValue reads and decodes exactly one RESP value, of whatever type it
// turns out to be. An EOF before the value's type-tag byte is reported as
// ErrConnectionClosed; when that value is an element of an array,
// readArrayValue reports the same EOF as a protocol error instead.
func (r *Reader) ReadValue() (Value, error) {
	typ, err := r.br.ReadByte()
	if err != nil {
		return Value{}, wrapEOF(err, false)
	}

	switch Type(typ) {
	case TypeSimpleString:
		s, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return SimpleString(s), nil

	case TypeError:
		s, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return ErrorReply(s), nil

	case TypeInteger:
		s, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, protoErr("invalid integer %q", s)
		}
		return Integer(n), nil

	case TypeBulkString:
		return r.readBulkValue()

	case TypeArray:
		return r.readArrayValue()

	default:
		return Value{}, protoErr("unknown type byte %q", typ)
	}
}

func (r *Reader) readSize() (int64, error) {
	s, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, protoErr("invalid size %q", s)
	}
	return n, nil
}

func (r *Reader) readBulkValue() (Value, error) {
	n, err := r.readSize()
	if err != nil {
		return Value{}, err
	}
	if n < 0 {
		return NullBulk(), nil
	}

	buf := make([]byte, n+2) // + trailing \r\n
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return Value{}, wrapEOF(err, true)
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return Value{}, protoErr("bulk string missing trailing CRLF")
	}
	return BulkString(buf[:n]), nil
}

func (r *Reader) readArrayValue() (Value, error) {
	n, err := r.readSize()
	if err != nil {
		return Value{}, err
	}
	if n < 0 {
		return NullArray(), nil
	}

	vs := make([]Value, n)
	for i := range vs {
		vs[i], err = r.ReadValue()
		if err == ErrConnectionClosed {
			return Value{}, protoErr("connection closed mid-frame")
		}
		if err != nil {
			return Value{}, err
		}
	}
	return Array(vs...), nil
}

// ReadArray reads one frame expected to be an array of bulk strings -- the
// shape every incoming command takes -- and returns the decoded strings
// directly. This is the hot path used by the dispatcher's per-connection
// read loop.
func (r *Reader) ReadArray() ([]string, error) {
	v, err := r.ReadValue()
	if err != nil {
		return nil, err
	}
	if v.Type != TypeArray {
		return nil, protoErr("expected array, got type %q", byte(v.Type))
	}
	if v.Null {
		return nil, nil
	}

	out := make([]string, len(v.Array))
	for i, el := range v.Array {
		if el.Type != TypeBulkString || el.Null {
			return nil, protoErr("expected bulk string array element")
		}
		out[i] = string(el.Bulk)
	}
	return out, nil
}

// ReadSimpleString reads one frame expected to be a simple string and
// returns its payload, used by the replica handshake to read +PONG/+OK
// replies from the master.
func (r *Reader) ReadSimpleString() (string, error) {
	v, err := r.ReadValue()
	if err != nil {
		return "", err
	}
	if v.Type == TypeError {
		return "", protoErr("master replied with error: %s", v.Str)
	}
	if v.Type != TypeSimpleString {
		return "", protoErr("expected simple string, got type %q", byte(v.Type))
	}
	return v.Str, nil
}

// ReadBulkString reads one frame expected to be a bulk string and returns
// its payload.
func (r *Reader) ReadBulkString() ([]byte, error) {
	v, err := r.readBulkValue()
	if err != nil {
		return nil, err
	}
	if v.Null {
		return nil, nil
	}
	return v.Bulk, nil
}

// ReadRDBBlob reads a length-prefixed bulk payload WITHOUT a trailing
// CRLF -- the framing PSYNC uses to send the RDB snapshot (spec §4.1, §4.7).
// This is the one place the RESP2 framing rule (every bulk string ends in
// CRLF) doesn't hold, since the payload is an opaque RDB file rather than a
// RESP value.
func (r *Reader) ReadRDBBlob() ([]byte, error) {
	typ, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if Type(typ) != TypeBulkString {
		return nil, protoErr("expected RDB bulk payload, got type %q", typ)
	}

	n, err := r.readSize()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, protoErr("RDB payload length must not be negative")
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, wrapEOF(err, true)
	}
	return buf, nil
}
