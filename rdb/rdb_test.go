package rdb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func sixBitStr(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func TestLoadEmptyRDB(t *testing.T) {
	entries, err := Load(EmptyRDB)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLoadSimpleKeyValue(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.WriteString(Header)
	buf.WriteByte(0x00) // string value type
	buf.Write(sixBitStr("foo"))
	buf.Write(sixBitStr("bar"))
	buf.WriteByte(opEOF)
	buf.Write(make([]byte, 8))

	entries, err := Load(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte("bar"), entries["foo"].Value)
	require.True(t, entries["foo"].Expiry.IsZero())
}

func TestLoadWithExpiryMS(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.WriteString(Header)
	buf.WriteByte(opExpiryMS)
	buf.Write([]byte{0xE8, 0x03, 0, 0, 0, 0, 0, 0}) // 1000 little-endian
	buf.WriteByte(0x00)
	buf.Write(sixBitStr("k"))
	buf.Write(sixBitStr("v"))
	buf.WriteByte(opEOF)
	buf.Write(make([]byte, 8))

	entries, err := Load(buf.Bytes())
	require.NoError(t, err)
	require.False(t, entries["k"].Expiry.IsZero())
	require.Equal(t, int64(1000), entries["k"].Expiry.UnixMilli())
}

func TestLoadBadHeader(t *testing.T) {
	_, err := Load([]byte("NOTREDIS1"))
	require.Error(t, err)
}

func TestLoadSkipsAuxAndSelectDB(t *testing.T) {
	buf := new(bytes.Buffer)
	buf.WriteString(Header)
	buf.WriteByte(opAux)
	buf.Write(sixBitStr("redis-ver"))
	buf.Write(sixBitStr("7.0.0"))
	buf.WriteByte(opSelectDB)
	buf.WriteByte(0x00)
	buf.WriteByte(0x00) // string
	buf.Write(sixBitStr("a"))
	buf.Write(sixBitStr("b"))
	buf.WriteByte(opEOF)
	buf.Write(make([]byte, 8))

	entries, err := Load(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, []byte("b"), entries["a"].Value)
}
