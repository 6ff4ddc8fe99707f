// Package liststore implements the list store: deque-backed lists with
// LPUSH/RPUSH/LPOP/RPOP/LRANGE/LLEN and the blocking BLPOP, per spec §3 and
// §4.4.
package liststore

import (
	"context"
	"sync"
	"time"

	"github.com/redikit/redikit/waiter"
)

type list struct {
	elems []string
	queue waiter.Queue
}

// Store holds every named list, guarded by one mutex, matching store.Store's
// single-lock-per-store policy (spec §5).
type Store struct {
	mu    sync.Mutex
	lists map[string]*list
}

// New returns an empty Store.
func New() *Store {
	return &Store{lists: map[string]*list{}}
}

func (s *Store) list(key string) *list {
	l, ok := s.lists[key]
	if !ok {
		l = &list{}
		s.lists[key] = l
	}
	return l
}

// Push appends (RPUSH) or prepends (LPUSH) vs to the named list, creating it
// if absent, and signals one blocking waiter per pushed element. Returns the
// list's length after the push.
func (s *Store) Push(key string, left bool, vs []string) int {
	s.mu.Lock()
	l := s.list(key)
	if left {
		for _, v := range vs {
			l.elems = append([]string{v}, l.elems...)
		}
	} else {
		l.elems = append(l.elems, vs...)
	}
	n := len(l.elems)
	s.mu.Unlock()

	for range vs {
		l.queue.SignalOne()
	}
	return n
}

// Pop removes and returns up to count elements from the named list (left
// side for LPOP, right side for RPOP). ok is false if the list is absent or
// empty.
func (s *Store) Pop(key string, left bool, count int) (vs []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.lists[key]
	if !exists || len(l.elems) == 0 {
		return nil, false
	}
	if count < 1 {
		count = 1
	}
	if count > len(l.elems) {
		count = len(l.elems)
	}

	if left {
		vs = append([]string(nil), l.elems[:count]...)
		l.elems = l.elems[count:]
	} else {
		n := len(l.elems)
		vs = make([]string, count)
		for i := 0; i < count; i++ {
			vs[i] = l.elems[n-1-i]
		}
		l.elems = l.elems[:n-count]
	}
	if len(l.elems) == 0 {
		delete(s.lists, key)
	}
	return vs, true
}

// normalizeRange clamps Redis-style (possibly negative) start/end indices
// against a length n, returning a half-open [lo, hi) slice range, per spec
// §4.4's "clamped to [0, len-1] after modular normalization; inclusive end".
func normalizeRange(start, end, n int) (lo, hi int) {
	if n == 0 {
		return 0, 0
	}
	if start < 0 {
		start += n
	}
	if end < 0 {
		end += n
	}
	if start < 0 {
		start = 0
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n || end < 0 {
		return 0, 0
	}
	return start, end + 1
}

// Range returns list[start:end] inclusive, with Redis-style negative
// indexing. An absent list yields an empty slice.
func (s *Store) Range(key string, start, end int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[key]
	if !ok {
		return nil
	}
	lo, hi := normalizeRange(start, end, len(l.elems))
	if lo >= hi {
		return nil
	}
	out := make([]string, hi-lo)
	copy(out, l.elems[lo:hi])
	return out
}

// Len returns the named list's length, 0 if absent.
func (s *Store) Len(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[key]
	if !ok {
		return 0
	}
	return len(l.elems)
}

// BPopResult is a successful BLPOP/BRPOP match: which key yielded it and the
// popped element.
type BPopResult struct {
	Key   string
	Value string
}

// scanPop re-scans keys in declared order, popping from the first
// non-empty one found. ok is false if every named list is currently empty.
func (s *Store) scanPop(keys []string, left bool) (BPopResult, bool) {
	for _, k := range keys {
		if vs, ok := s.Pop(k, left, 1); ok {
			return BPopResult{Key: k, Value: vs[0]}, true
		}
	}
	return BPopResult{}, false
}

// BPop implements BLPOP/BRPOP: an immediate pop from the first matching
// non-empty key, or a blocking wait spanning every named key if all are
// empty. On signal it re-scans in declared order; first match wins. A
// timeout of 0 is treated as the long, bounded sentinel (spec §9).
func (s *Store) BPop(ctx context.Context, keys []string, left bool, timeout time.Duration) (BPopResult, bool) {
	if res, ok := s.scanPop(keys, left); ok {
		return res, true
	}

	w := waiter.New()
	s.mu.Lock()
	for _, k := range keys {
		s.list(k).queue.Add(w)
	}
	lists := make([]*list, len(keys))
	for i, k := range keys {
		lists[i] = s.lists[k]
	}
	s.mu.Unlock()

	defer func() {
		for _, l := range lists {
			l.queue.Remove(w)
		}
	}()

	if timeout <= 0 {
		timeout = waiter.LongBound
	}
	if !w.Wait(ctx, timeout) {
		return BPopResult{}, false
	}
	return s.scanPop(keys, left)
}
