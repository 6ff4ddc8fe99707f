package streamstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID is a stream entry's composite (ms, seq) identifier, per spec §3/§4.3.
// Within a stream, IDs are strictly monotonically increasing; (0,0) is
// forbidden.
type ID struct {
	Ms  uint64
	Seq uint64
}

// MinID is the smallest valid stream ID boundary ("-" in XRANGE).
var MinID = ID{0, 0}

// MaxID is the largest possible stream ID boundary ("+" in XRANGE).
var MaxID = ID{math.MaxUint64, math.MaxUint64}

// String renders the ID in "ms-seq" form.
func (id ID) String() string {
	return fmt.Sprintf("%d-%d", id.Ms, id.Seq)
}

// Less reports whether id sorts strictly before other.
func (id ID) Less(other ID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

// LessEq reports whether id sorts at or before other.
func (id ID) LessEq(other ID) bool {
	return id == other || id.Less(other)
}

// IsZero reports whether id is the forbidden (0,0) entry ID.
func (id ID) IsZero() bool {
	return id == ID{0, 0}
}

// ParseExact parses a strict "ms-seq" or "ms" (seq defaults to 0) ID, with
// no wildcard support -- used for XRANGE endpoints once the "-"/"+"/bare-ms
// special cases have been handled, and for XREAD's explicit (non-"$") IDs.
func ParseExact(raw string) (ID, error) {
	msPart, seqPart, hasSeq := strings.Cut(raw, "-")

	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("invalid stream ID %q", raw)
	}

	var seq uint64
	if hasSeq {
		seq, err = strconv.ParseUint(seqPart, 10, 64)
		if err != nil {
			return ID{}, fmt.Errorf("invalid stream ID %q", raw)
		}
	}
	return ID{Ms: ms, Seq: seq}, nil
}

// ParseRangeStart parses an XRANGE start endpoint: "-" is the minimum ID,
// and a bare "ms" (no seq given) expands to (ms, 0), per spec §4.3.
func ParseRangeStart(raw string) (ID, error) {
	if raw == "-" {
		return MinID, nil
	}
	if raw == "+" {
		return MaxID, nil
	}
	if !strings.Contains(raw, "-") {
		ms, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return ID{}, fmt.Errorf("invalid stream ID %q", raw)
		}
		return ID{Ms: ms, Seq: 0}, nil
	}
	return ParseExact(raw)
}

// ParseRangeEnd parses an XRANGE end endpoint: "+" is the maximum ID, and a
// bare "ms" expands to (ms, math.MaxUint64), per spec §4.3.
func ParseRangeEnd(raw string) (ID, error) {
	if raw == "+" {
		return MaxID, nil
	}
	if raw == "-" {
		return MinID, nil
	}
	if !strings.Contains(raw, "-") {
		ms, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return ID{}, fmt.Errorf("invalid stream ID %q", raw)
		}
		return ID{Ms: ms, Seq: math.MaxUint64}, nil
	}
	return ParseExact(raw)
}
