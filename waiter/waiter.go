// Package waiter implements the blocking-waiter primitive spec §3/§4.9/§9
// describe: a one-shot signal with a bounded acquire, used by BLPOP and
// XREAD BLOCK to suspend a connection's goroutine without blocking the rest
// of the server.
//
// The shape is lifted directly from mrun.Thread's futureErr helper in the
// teacher library: a channel that's closed exactly once to broadcast
// "signaled" to every waiter, with a select-based bounded get.
package waiter

import (
	"context"
	"sync"
	"time"
)

// LongBound is the duration a timeout value of "0" is translated to,
// per spec §5/§9's documented deviation from upstream Redis (which treats
// "0" as an indefinite wait). Kept finite so a leaked waiter is always
// eventually reaped.
const LongBound = 10 * time.Minute

// Waiter is a one-shot signal: once Signal is called, every past and
// future call to Wait returns true immediately. Signaled is monotonic, as
// required by spec §3.
type Waiter struct {
	once sync.Once
	done chan struct{}
}

// New returns a ready, unsignaled Waiter.
func New() *Waiter {
	return &Waiter{done: make(chan struct{})}
}

// Signal marks the Waiter as signaled. Safe to call more than once or
// concurrently; only the first call has an effect.
func (w *Waiter) Signal() {
	w.once.Do(func() { close(w.done) })
}

// Wait blocks until Signal is called, ctx is canceled (client
// disconnected), or timeout elapses, whichever comes first. It returns true
// only in the Signal case.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-w.done:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}

// Queue is a per-key FIFO of registered Waiters, guaranteeing blocking
// callers are woken in registration order (spec §5 "Blocking waiters are
// woken in FIFO registration order").
type Queue struct {
	mu      sync.Mutex
	waiting []entry
}

// entry pairs a registered Waiter with the opaque key it was registered
// under, so SignalMatching can decide per-waiter whether a push satisfies
// it, instead of waking the whole queue indiscriminately.
type entry struct {
	w   *Waiter
	key interface{}
}

// Register appends a new Waiter to the back of the queue and returns it.
func (q *Queue) Register() *Waiter {
	w := New()
	q.Add(w)
	return w
}

// Add appends an already-constructed Waiter to the back of the queue. Used
// when one logical blocking call (e.g. XREAD BLOCK over several streams)
// shares a single Waiter across multiple per-key Queues.
func (q *Queue) Add(w *Waiter) {
	q.AddWithKey(w, nil)
}

// AddWithKey appends an already-constructed Waiter carrying an opaque key,
// later inspected by SignalMatching to decide whether this particular
// registration should wake. Used where a signal must be selective per
// registration (e.g. XREAD's per-call wait-ID), unlike SignalOne/SignalAll
// which wake without regard to any key.
func (q *Queue) AddWithKey(w *Waiter, key interface{}) {
	q.mu.Lock()
	q.waiting = append(q.waiting, entry{w: w, key: key})
	q.mu.Unlock()
}

// Remove drops w from the queue without signaling it, used when a blocking
// call resolves (signaled or timed out) and needs to unregister itself, or
// when a client disconnects while blocked (spec §5 Cancellation).
func (q *Queue) Remove(w *Waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, cur := range q.waiting {
		if cur.w == w {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

// SignalOne wakes and removes the single oldest waiter in the queue, if
// any, returning whether one was found. Used by list pushes, which signal
// one waiter per pushed element (spec §4.4).
func (q *Queue) SignalOne() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiting) == 0 {
		return false
	}
	w := q.waiting[0].w
	q.waiting = q.waiting[1:]
	w.Signal()
	return true
}

// SignalAll wakes and removes every waiter currently in the queue,
// regardless of key -- for callers with no per-waiter predicate to
// distinguish one registration from another.
func (q *Queue) SignalAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.waiting {
		e.w.Signal()
	}
	q.waiting = nil
}

// SignalMatching wakes and removes every waiter whose registered key
// satisfies match, leaving non-matching waiters queued to be checked again
// on a later push. Used by stream XADD, which must wake only the blocking
// XREAD waiters whose wait-ID is strictly less than the newly inserted ID
// (spec §4.3 rule 5) -- a waiter registered with a different wait-ID on the
// same stream must keep blocking for its own remaining timeout.
func (q *Queue) SignalMatching(match func(key interface{}) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.waiting[:0]
	for _, e := range q.waiting {
		if match(e.key) {
			e.w.Signal()
		} else {
			kept = append(kept, e)
		}
	}
	q.waiting = kept
}
