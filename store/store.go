// Package store implements the value store: string keys with an optional
// TTL, per spec §3 (ValueRecord) and §4.2.
package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/redikit/redikit/mcfg"
)

type record struct {
	val    []byte
	expiry time.Time // zero means no TTL
}

func (r record) expired(now time.Time) bool {
	return !r.expiry.IsZero() && !now.Before(r.expiry)
}

// Store is a keyed string store with lazy TTL expiry, safe for concurrent
// use. A dedicated mutex guards exactly this store's state, per spec §5's
// shared-resource policy (one lock per store, held only for a single
// in-memory operation).
type Store struct {
	mu sync.Mutex
	m  map[string]record

	// Now returns the current time; overridable in tests. Defaults to
	// time.Now.
	Now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{m: map[string]record{}}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Set stores val at key. If ttl is non-zero, the key expires ttl after now;
// a zero ttl means no expiry.
func (s *Store) Set(key string, val []byte, ttl time.Duration) {
	r := record{val: val}
	if ttl > 0 {
		r.expiry = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = r
}

// Get returns the value stored at key, or (nil, false) if the key is
// absent or has expired. A read after expiry lazily deletes the entry.
func (s *Store) Get(key string) ([]byte, bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if r.expired(now) {
		delete(s.m, key)
		return nil, false
	}
	return r.val, true
}

// notIntegerMsg is the message of the error Incr returns when the stored
// value isn't a parsable signed integer.
const notIntegerMsg = "value is not an integer or out of range"

// Incr increments the integer value at key, initializing it to 1 if
// absent, per spec §4.2. If the existing value isn't a parsable integer it
// returns an error whose message is notIntegerMsg (no "ERR" prefix; the
// caller decides how to surface it as a RESP error).
func (s *Store) Incr(key string) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.m[key]
	if ok && r.expired(now) {
		ok = false
		delete(s.m, key)
	}

	var n int64
	if ok {
		var err error
		n, err = strconv.ParseInt(string(r.val), 10, 64)
		if err != nil {
			return 0, errNotInteger{}
		}
	}
	n++

	s.m[key] = record{val: []byte(strconv.FormatInt(n, 10))}
	return n, nil
}

type errNotInteger struct{}

func (errNotInteger) Error() string { return notIntegerMsg }

// Has reports whether key is present and unexpired, without returning its
// value. Used by TYPE.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Keys returns every unexpired key matching a Redis-style glob pattern.
// Order is unspecified, matching spec §4.2 (no ordering guarantee is
// named). An invalid pattern returns an empty slice rather than an error,
// per spec.
func (s *Store) Keys(pattern string) []string {
	re := mcfg.GlobToRegexp(pattern)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for k, r := range s.m {
		if r.expired(now) {
			continue
		}
		if re == nil || re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out
}

// LoadSnapshot seeds the store from an RDB-derived key/value set, used at
// startup (spec §6 "Persisted state (ingest only)"). Keys with an expiry
// already in the past are dropped rather than stored, matching ValueRecord's
// invariant that an expiry is strictly in the future at write time.
func (s *Store) LoadSnapshot(entries map[string]SnapshotEntry) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range entries {
		if !e.Expiry.IsZero() && !now.Before(e.Expiry) {
			continue
		}
		s.m[k] = record{val: e.Value, expiry: e.Expiry}
	}
}

// SnapshotEntry is a single RDB-ingested key/value pair, with an optional
// absolute expiry.
type SnapshotEntry struct {
	Value  []byte
	Expiry time.Time
}
