package waiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitReturnsTrueOnSignal(t *testing.T) {
	w := New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Signal()
	}()
	require.True(t, w.Wait(context.Background(), time.Second))
}

func TestWaitReturnsFalseOnTimeout(t *testing.T) {
	w := New()
	require.False(t, w.Wait(context.Background(), 10*time.Millisecond))
}

func TestWaitReturnsFalseOnContextCancel(t *testing.T) {
	w := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	require.False(t, w.Wait(ctx, time.Second))
}

func TestSignalIsIdempotentAndRetroactive(t *testing.T) {
	w := New()
	w.Signal()
	w.Signal()
	require.True(t, w.Wait(context.Background(), time.Second))
}

func TestQueueSignalOneWakesOldestFirst(t *testing.T) {
	var q Queue
	w1 := q.Register()
	w2 := q.Register()

	require.True(t, q.SignalOne())

	select {
	case <-w1.done:
	default:
		t.Fatal("expected oldest waiter to be signaled first")
	}
	select {
	case <-w2.done:
		t.Fatal("second waiter should not be signaled yet")
	default:
	}
}

func TestQueueSignalOneOnEmptyReturnsFalse(t *testing.T) {
	var q Queue
	require.False(t, q.SignalOne())
}

func TestQueueSignalAllWakesEveryone(t *testing.T) {
	var q Queue
	w1 := q.Register()
	w2 := q.Register()

	q.SignalAll()

	require.True(t, w1.Wait(context.Background(), time.Second))
	require.True(t, w2.Wait(context.Background(), time.Second))
}

func TestQueueRemoveDropsWithoutSignaling(t *testing.T) {
	var q Queue
	w := q.Register()
	q.Remove(w)

	require.False(t, q.SignalOne())
	require.False(t, w.Wait(context.Background(), 10*time.Millisecond))
}

func TestQueueSignalMatchingOnlyWakesMatchingKeys(t *testing.T) {
	var q Queue
	w1 := New()
	w2 := New()
	q.AddWithKey(w1, 1)
	q.AddWithKey(w2, 2)

	q.SignalMatching(func(key interface{}) bool { return key.(int) < 2 })

	require.True(t, w1.Wait(context.Background(), time.Second))
	require.False(t, w2.Wait(context.Background(), 10*time.Millisecond))

	require.True(t, q.SignalOne())
	require.True(t, w2.Wait(context.Background(), time.Second))
}

func TestQueueAddSharesOneWaiterAcrossQueues(t *testing.T) {
	var qA, qB Queue
	w := New()
	qA.Add(w)
	qB.Add(w)

	require.True(t, qB.SignalOne())
	require.True(t, w.Wait(context.Background(), time.Second))

	// qA's registration is now stale but harmless to remove.
	qA.Remove(w)
}
