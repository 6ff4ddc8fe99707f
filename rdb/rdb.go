// Package rdb implements enough of the RDB snapshot format to ingest a
// startup snapshot or a master's FULLRESYNC payload, per spec §6. This is
// read-only: redikit never writes an RDB file, only parses one.
package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/redikit/redikit/store"
)

// Header is the fixed 9-byte magic every RDB file starts with.
const Header = "REDIS0011"

const (
	opAux          = 0xFA
	opSelectDB     = 0xFE
	opResizeDB     = 0xFB
	opExpiryMS     = 0xFC
	opExpirySec    = 0xFD
	opEOF          = 0xFF
	encodedInt8    = 0xC0
	encodedInt16   = 0xC1
	encodedInt32   = 0xC2
	lenMask6Bit    = 0x00
	lenMask14Bit   = 0x40
	lenMask32Bit   = 0x80
	lenMaskEncoded = 0xC0
)

// EmptyRDB is the minimal valid (header + immediate EOF + zero checksum)
// payload redikit sends in response to PSYNC when it has nothing else to
// offer -- spec §4.7's "may be an embedded empty-RDB constant".
var EmptyRDB = buildEmptyRDB()

func buildEmptyRDB() []byte {
	buf := new(bytes.Buffer)
	buf.WriteString(Header)
	buf.WriteByte(opEOF)
	buf.Write(make([]byte, 8)) // checksum, unchecked on ingest
	return buf.Bytes()
}

// Load parses an RDB payload and returns the decoded key/value entries,
// ready for store.Store.LoadSnapshot. Only string values are supported;
// auxiliary metadata (opAux) and the resize-db hint are read and discarded.
func Load(data []byte) (map[string]store.SnapshotEntry, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	magic := make([]byte, len(Header))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("rdb: truncated header: %w", err)
	}
	if string(magic) != Header {
		return nil, fmt.Errorf("rdb: bad header %q", magic)
	}

	entries := map[string]store.SnapshotEntry{}
	var pendingExpiry time.Time

	for {
		op, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return nil, fmt.Errorf("rdb: %w", err)
		}

		switch op {
		case opEOF:
			return entries, nil

		case opSelectDB:
			if _, err := readLength(r); err != nil {
				return nil, fmt.Errorf("rdb: select-db: %w", err)
			}

		case opResizeDB:
			if _, err := readLength(r); err != nil {
				return nil, fmt.Errorf("rdb: resize-db (hash size): %w", err)
			}
			if _, err := readLength(r); err != nil {
				return nil, fmt.Errorf("rdb: resize-db (expire size): %w", err)
			}

		case opAux:
			if _, err := readString(r); err != nil {
				return nil, fmt.Errorf("rdb: aux key: %w", err)
			}
			if _, err := readString(r); err != nil {
				return nil, fmt.Errorf("rdb: aux value: %w", err)
			}

		case opExpiryMS:
			var ms uint64
			if err := binary.Read(r, binary.LittleEndian, &ms); err != nil {
				return nil, fmt.Errorf("rdb: expiry-ms: %w", err)
			}
			pendingExpiry = time.UnixMilli(int64(ms))

		case opExpirySec:
			var sec uint32
			if err := binary.Read(r, binary.LittleEndian, &sec); err != nil {
				return nil, fmt.Errorf("rdb: expiry-sec: %w", err)
			}
			pendingExpiry = time.Unix(int64(sec), 0)

		default:
			// Value-type byte (0x00 = string in the subset we support)
			// followed by key then value. Any pending expiry opcode applies
			// to this entry.
			key, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("rdb: key: %w", err)
			}
			val, err := readString(r)
			if err != nil {
				return nil, fmt.Errorf("rdb: value: %w", err)
			}
			entries[string(key)] = store.SnapshotEntry{Value: val, Expiry: pendingExpiry}
			pendingExpiry = time.Time{}
		}
	}
}

// readLength reads a length-encoded integer per spec §6's top-2-bit scheme,
// returning the integer value (used for opSelectDB/opResizeDB sizes, which
// this package doesn't otherwise interpret).
func readLength(r *bufio.Reader) (uint64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	switch b & lenMaskEncoded {
	case lenMask6Bit:
		return uint64(b & 0x3F), nil

	case lenMask14Bit:
		b2, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return uint64(b&0x3F)<<8 | uint64(b2), nil

	case lenMask32Bit:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return 0, err
		}
		return uint64(n), nil

	default: // lenMaskEncoded: special integer encoding, not a length
		return 0, fmt.Errorf("not a plain length (special encoding byte 0x%02x)", b)
	}
}

// readString reads a length-encoded string, including the special integer
// encodings (0xC0/0xC1/0xC2 -> 8/16/32-bit signed, rendered as decimal
// text) spec §6 names.
func readString(r *bufio.Reader) ([]byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	if b&lenMaskEncoded == lenMaskEncoded {
		switch b {
		case encodedInt8:
			v, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			return []byte(fmt.Sprintf("%d", int8(v))), nil

		case encodedInt16:
			var v int16
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			return []byte(fmt.Sprintf("%d", v)), nil

		case encodedInt32:
			var v int32
			if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
				return nil, err
			}
			return []byte(fmt.Sprintf("%d", v)), nil

		default:
			return nil, fmt.Errorf("unsupported string encoding byte 0x%02x", b)
		}
	}

	var n uint64
	switch b & lenMaskEncoded {
	case lenMask6Bit:
		n = uint64(b & 0x3F)
	case lenMask14Bit:
		b2, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		n = uint64(b&0x3F)<<8 | uint64(b2)
	case lenMask32Bit:
		var n32 uint32
		if err := binary.Read(r, binary.BigEndian, &n32); err != nil {
			return nil, err
		}
		n = uint64(n32)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
