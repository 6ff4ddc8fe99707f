package resp

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		SimpleString("OK"),
		ErrorReply("ERR something bad"),
		Integer(42),
		Integer(-7),
		BulkStringFromString("hello"),
		BulkStringFromString(""),
		NullBulk(),
		Array(BulkStringFromString("a"), Integer(1), SimpleString("b")),
		NullArray(),
		Array(),
	}

	for _, v := range cases {
		buf := Encode(v)
		r := NewReader(bytes.NewReader(buf))
		got, err := r.ReadValue()
		require.NoError(t, err)
		require.Equal(t, v.Type, got.Type)
		require.Equal(t, v.Null, got.Null)
		require.Equal(t, v.Str, got.Str)
		require.Equal(t, v.Int, got.Int)
		require.Equal(t, v.Bulk, got.Bulk)
		require.Equal(t, len(v.Array), len(got.Array))
	}
}

func TestReadArrayCommand(t *testing.T) {
	buf := Encode(ArrayOfStrings("SET", "foo", "bar"))
	r := NewReader(bytes.NewReader(buf))
	args, err := r.ReadArray()
	require.NoError(t, err)
	require.Equal(t, []string{"SET", "foo", "bar"}, args)
}

func TestReadArrayConnectionClosed(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.ReadArray()
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReadArrayProtocolErrorOnPartialFrame(t *testing.T) {
	// a bulk string header claiming 5 bytes but supplying none
	r := NewReader(bytes.NewReader([]byte("*1\r\n$5\r\n")))
	_, err := r.ReadArray()
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConnectionClosed)
	require.NotErrorIs(t, err, io.EOF)
}

func TestReadRDBBlobHasNoTrailingCRLF(t *testing.T) {
	payload := []byte("REDIS0011deadbeef")
	buf := append([]byte("$17\r\n"), payload...)
	r := NewReader(bytes.NewReader(buf))
	got, err := r.ReadRDBBlob()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestNullArrayAndNullBulkEncode(t *testing.T) {
	require.Equal(t, []byte("*-1\r\n"), Encode(NullArray()))
	require.Equal(t, []byte("$-1\r\n"), Encode(NullBulk()))
}
