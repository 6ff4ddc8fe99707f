package streamstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestXAddAutoID(t *testing.T) {
	s := New()
	fixed := time.UnixMilli(1000)
	s.Now = func() time.Time { return fixed }

	id, err := s.XAdd("s", "*", []string{"f", "v"})
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 1000, Seq: 0}, id)

	id2, err := s.XAdd("s", "1000-*", []string{"f", "v2"})
	require.NoError(t, err)
	require.Equal(t, ID{Ms: 1000, Seq: 1}, id2)
}

func TestXAddRejectsZeroAndNonIncreasing(t *testing.T) {
	s := New()
	_, err := s.XAdd("s", "0-0", nil)
	require.EqualError(t, err, ErrZeroID.Error())

	_, err = s.XAdd("s", "5-0", nil)
	require.NoError(t, err)

	_, err = s.XAdd("s", "5-0", nil)
	require.EqualError(t, err, ErrNotIncreasing.Error())

	_, err = s.XAdd("s", "4-9", nil)
	require.EqualError(t, err, ErrNotIncreasing.Error())
}

func TestXRange(t *testing.T) {
	s := New()
	_, _ = s.XAdd("s", "1-1", []string{"a", "1"})
	_, _ = s.XAdd("s", "2-1", []string{"a", "2"})
	_, _ = s.XAdd("s", "3-1", []string{"a", "3"})

	start, _ := ParseRangeStart("2")
	end, _ := ParseRangeEnd("+")
	got := s.XRange("s", start, end)
	require.Len(t, got, 2)
	require.Equal(t, ID{Ms: 2, Seq: 1}, got[0].ID)
	require.Equal(t, ID{Ms: 3, Seq: 1}, got[1].ID)
}

func TestXReadNonBlockingImmediate(t *testing.T) {
	s := New()
	_, _ = s.XAdd("s", "1-1", []string{"a", "1"})

	reads := s.XRead(context.Background(), []string{"s"}, []ID{{0, 0}}, false, 0)
	require.Len(t, reads, 1)
	require.Equal(t, "s", reads[0].Stream)
	require.Len(t, reads[0].Entries, 1)
}

func TestXReadBlockWakesOnPush(t *testing.T) {
	s := New()
	afterID, err := s.ResolveReadID("s", "$")
	require.NoError(t, err)

	done := make(chan []StreamRead, 1)
	go func() {
		done <- s.XRead(context.Background(), []string{"s"}, []ID{afterID}, true, time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = s.XAdd("s", "*", []string{"f", "v"})
	require.NoError(t, err)

	select {
	case reads := <-done:
		require.Len(t, reads, 1)
		require.Len(t, reads[0].Entries, 1)
	case <-time.After(time.Second):
		t.Fatal("XRead did not wake on push")
	}
}

func TestXReadBlockDoesNotWakeOnUnsatisfyingPush(t *testing.T) {
	s := New()
	_, err := s.XAdd("s", "1-1", []string{"f", "v"})
	require.NoError(t, err)

	// Waits for anything after 1-1; a push landing at 2-1 satisfies it.
	satisfied := make(chan []StreamRead, 1)
	go func() {
		satisfied <- s.XRead(context.Background(), []string{"s"}, []ID{{1, 1}}, true, time.Second)
	}()

	// Waits for anything after 5-0 -- a far higher ID nothing below should wake.
	unsatisfied := make(chan []StreamRead, 1)
	go func() {
		unsatisfied <- s.XRead(context.Background(), []string{"s"}, []ID{{5, 0}}, true, 100*time.Millisecond)
	}()

	time.Sleep(20 * time.Millisecond)
	_, err = s.XAdd("s", "2-1", []string{"f", "v"})
	require.NoError(t, err)

	select {
	case reads := <-satisfied:
		require.Len(t, reads, 1)
		require.Len(t, reads[0].Entries, 1)
		require.Equal(t, ID{2, 1}, reads[0].Entries[0].ID)
	case <-time.After(time.Second):
		t.Fatal("satisfied waiter did not wake on push")
	}

	select {
	case reads := <-unsatisfied:
		require.Nil(t, reads, "waiter on a higher wait-ID must not be woken by an unrelated push")
	case <-time.After(time.Second):
		t.Fatal("unsatisfied waiter never returned after its own timeout")
	}
}

func TestXReadBlockTimesOut(t *testing.T) {
	s := New()
	reads := s.XRead(context.Background(), []string{"s"}, []ID{{0, 0}}, true, 20*time.Millisecond)
	require.Nil(t, reads)
}

func TestHasReportsOnlyNonEmptyStreams(t *testing.T) {
	s := New()
	require.False(t, s.Has("s"))

	_, err := s.XAdd("s", "*", []string{"f", "v"})
	require.NoError(t, err)
	require.True(t, s.Has("s"))
	require.False(t, s.Has("other"))
}
