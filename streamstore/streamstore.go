// Package streamstore implements the append-only stream store: composite
// (ms, seq) entry IDs, XADD/XRANGE/XREAD including blocking reads, per spec
// §3 and §4.3.
//
// Spec describes storage as a two-level ms->seq index for O(log n) range
// lookups. A single slice kept sorted by (ms, seq), searched with
// sort.Search, gives the same asymptotic behavior for the read patterns XADD
// and XRANGE actually need (append at the tail, binary-search a boundary)
// without a second data structure; see DESIGN.md.
package streamstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redikit/redikit/waiter"
)

// Entry is one stored stream record: an ID plus its field/value pairs,
// preserved in insertion order (alternating field, value, field, value...).
type Entry struct {
	ID     ID
	Fields []string
}

type stream struct {
	entries []Entry // sorted strictly increasing by ID
	latest  ID
	queue   waiter.Queue
}

// Store holds every named stream, each independently locked-free under the
// store's single mutex -- mirroring store.Store's one-lock-per-store policy
// (spec §5).
type Store struct {
	mu      sync.Mutex
	streams map[string]*stream

	// Now returns the current time; overridable in tests. Defaults to
	// time.Now.
	Now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{streams: map[string]*stream{}}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Has reports whether name has at least one XADD entry, without creating
// an empty stream as a side effect the way stream() does.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[name]
	return ok && len(st.entries) > 0
}

func (s *Store) stream(name string) *stream {
	st, ok := s.streams[name]
	if !ok {
		st = &stream{}
		s.streams[name] = st
	}
	return st
}

// ErrZeroID is returned by XAdd when the caller supplied, or auto-assignment
// would have produced, the forbidden (0,0) ID.
var ErrZeroID = fmt.Errorf("The ID specified in XADD must be greater than 0-0")

// ErrNotIncreasing is returned by XAdd when the given (or auto-assigned) ID
// is not strictly greater than the stream's current latest ID.
var ErrNotIncreasing = fmt.Errorf("The ID specified in XADD is equal or smaller than the target stream top item")

// resolveXAddID computes the concrete ID to insert for a raw XADD ID
// argument ("ms-seq", "ms-*", "*-*", or "*"), against a stream's current
// state, per spec §4.3 rules 1-2. It does not check the (0,0)/monotonicity
// rules -- XAdd does, after the insert lock is held.
func resolveXAddID(raw string, st *stream, now time.Time) (ID, error) {
	if raw == "*" || raw == "*-*" {
		return ID{Ms: uint64(now.UnixMilli()), Seq: 0}, nil
	}

	msPart, seqPart, hasSeq := strings.Cut(raw, "-")
	if !hasSeq {
		return ID{}, fmt.Errorf("invalid stream ID %q", raw)
	}

	if msPart == "*" {
		return ID{}, fmt.Errorf("invalid stream ID %q", raw)
	}
	id, err := ParseExact(msPart + "-0")
	if err != nil {
		return ID{}, fmt.Errorf("invalid stream ID %q", raw)
	}
	ms := id.Ms

	if seqPart != "*" {
		full, err := ParseExact(raw)
		if err != nil {
			return ID{}, fmt.Errorf("invalid stream ID %q", raw)
		}
		return full, nil
	}

	// seq = "*": max seq currently stored under ms, +1; else 0 (or 1 if ms==0).
	var maxSeq uint64
	found := false
	for i := len(st.entries) - 1; i >= 0; i-- {
		if st.entries[i].ID.Ms != ms {
			break
		}
		maxSeq = st.entries[i].ID.Seq
		found = true
		break
	}
	var seq uint64
	if found {
		seq = maxSeq + 1
	} else if ms == 0 {
		seq = 1
	}
	return ID{Ms: ms, Seq: seq}, nil
}

// XAdd inserts a new entry into the named stream, resolving autogenerated ID
// components, and wakes exactly the blocking XREAD waiters whose wait-ID is
// strictly less than the new entry's ID (spec §4.3 rule 5) -- a waiter
// blocked on a different, not-yet-satisfied wait-ID on the same stream stays
// queued. Returns the concrete ID assigned.
func (s *Store) XAdd(name, rawID string, fields []string) (ID, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stream(name)

	id, err := resolveXAddID(rawID, st, now)
	if err != nil {
		return ID{}, err
	}
	if id.IsZero() {
		return ID{}, ErrZeroID
	}
	if len(st.entries) > 0 && !st.latest.Less(id) {
		return ID{}, ErrNotIncreasing
	}

	st.entries = append(st.entries, Entry{ID: id, Fields: append([]string(nil), fields...)})
	st.latest = id
	st.queue.SignalMatching(func(key interface{}) bool {
		afterID, _ := key.(ID)
		return afterID.Less(id)
	})

	return id, nil
}

// XRange returns every entry in [start, end] (inclusive), in ID order. An
// empty or absent stream yields an empty slice, not an error.
func (s *Store) XRange(name string, start, end ID) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[name]
	if !ok {
		return nil
	}

	lo := sort.Search(len(st.entries), func(i int) bool {
		return start.LessEq(st.entries[i].ID)
	})
	hi := sort.Search(len(st.entries), func(i int) bool {
		return end.Less(st.entries[i].ID)
	})
	if lo >= hi {
		return nil
	}

	out := make([]Entry, hi-lo)
	copy(out, st.entries[lo:hi])
	return out
}

// StreamRead is one stream's result from XRead: the entries with an ID
// strictly greater than the requested wait-ID.
type StreamRead struct {
	Stream  string
	Entries []Entry
}

// latestID returns the stream's current latest ID, or the zero ID if the
// stream doesn't exist yet -- used to resolve "$" once, at call time.
func (s *Store) latestID(name string) ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[name]
	if !ok {
		return ID{}
	}
	return st.latest
}

// ResolveReadID resolves a raw XREAD ID argument to a concrete wait-ID,
// expanding the special "$" ("latest known at call time") against the
// stream's current state. Must be called once per XREAD call, before any
// blocking wait -- re-resolving "$" on a retry after waking would silently
// skip entries added between the original call and the wake.
func (s *Store) ResolveReadID(name, raw string) (ID, error) {
	if raw == "$" {
		return s.latestID(name), nil
	}
	return ParseExact(raw)
}

func (s *Store) readSince(name string, afterID ID) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[name]
	if !ok {
		return nil
	}
	idx := sort.Search(len(st.entries), func(i int) bool {
		return afterID.Less(st.entries[i].ID)
	})
	if idx >= len(st.entries) {
		return nil
	}
	out := make([]Entry, len(st.entries)-idx)
	copy(out, st.entries[idx:])
	return out
}

// readOnce performs one non-blocking pass over every requested stream,
// returning only the streams that yielded at least one entry.
func (s *Store) readOnce(names []string, afterIDs []ID) []StreamRead {
	var out []StreamRead
	for i, name := range names {
		entries := s.readSince(name, afterIDs[i])
		if len(entries) > 0 {
			out = append(out, StreamRead{Stream: name, Entries: entries})
		}
	}
	return out
}

// XRead performs a (possibly blocking) multi-stream read. names/afterIDs
// must already have "$" resolved via ResolveReadID. If block is false, or
// names yield results immediately, it returns without waiting. If block is
// true and every stream is empty, XRead registers a fresh Waiter, keyed by
// its own afterID, against every requested stream's queue (so a push to any
// of them that satisfies that stream's wait-ID wakes the call), and blocks
// up to the remaining portion of timeout (spec §9's bounded sentinel for
// "0" = indefinite).
//
// Because SignalMatching only wakes waiters whose keyed wait-ID the push
// actually satisfies, a wake here always corresponds to real data -- but a
// single Waiter is shared across every requested stream, and an unrelated
// stream's push can still close it (e.g. two different streams both push
// moments apart). So each wake re-runs the non-blocking read, and if it
// still comes up empty the loop re-registers a new Waiter and keeps waiting
// for whatever remains of the original timeout, rather than returning early.
// The SAME afterIDs computed at the start are reused across every
// iteration -- "$" is never re-resolved mid-wait.
func (s *Store) XRead(ctx context.Context, names []string, afterIDs []ID, block bool, timeout time.Duration) []StreamRead {
	if reads := s.readOnce(names, afterIDs); len(reads) > 0 || !block {
		return reads
	}

	if timeout <= 0 {
		timeout = waiter.LongBound
	}
	deadline := s.now().Add(timeout)

	for {
		w := waiter.New()
		s.mu.Lock()
		for i, name := range names {
			s.stream(name).queue.AddWithKey(w, afterIDs[i])
		}
		s.mu.Unlock()

		remaining := deadline.Sub(s.now())
		woke := remaining > 0 && w.Wait(ctx, remaining)

		s.mu.Lock()
		for _, name := range names {
			if st, ok := s.streams[name]; ok {
				st.queue.Remove(w)
			}
		}
		s.mu.Unlock()

		if !woke {
			return nil
		}
		if reads := s.readOnce(names, afterIDs); len(reads) > 0 {
			return reads
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
