package liststore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushPop(t *testing.T) {
	s := New()
	require.Equal(t, 3, s.Push("k", false, []string{"a", "b", "c"}))

	vs, ok := s.Pop("k", true, 1)
	require.True(t, ok)
	require.Equal(t, []string{"a"}, vs)

	vs, ok = s.Pop("k", false, 2)
	require.True(t, ok)
	require.Equal(t, []string{"c", "b"}, vs)

	_, ok = s.Pop("k", true, 1)
	require.False(t, ok)
}

func TestLPushOrdering(t *testing.T) {
	s := New()
	s.Push("k", true, []string{"a", "b", "c"})
	vs, ok := s.Pop("k", true, 3)
	require.True(t, ok)
	require.Equal(t, []string{"c", "b", "a"}, vs)
}

func TestRangeNegativeIndexing(t *testing.T) {
	s := New()
	s.Push("k", false, []string{"a", "b", "c", "d", "e"})

	require.Equal(t, []string{"a", "b", "c", "d", "e"}, s.Range("k", 0, -1))
	require.Equal(t, []string{"d", "e"}, s.Range("k", -2, -1))
	require.Equal(t, []string{"c"}, s.Range("k", 2, 2))
	require.Empty(t, s.Range("k", 3, 1))
}

func TestLen(t *testing.T) {
	s := New()
	require.Equal(t, 0, s.Len("missing"))
	s.Push("k", false, []string{"a"})
	require.Equal(t, 1, s.Len("k"))
}

func TestBPopImmediate(t *testing.T) {
	s := New()
	s.Push("k2", false, []string{"x"})

	res, ok := s.BPop(context.Background(), []string{"k1", "k2"}, true, time.Second)
	require.True(t, ok)
	require.Equal(t, "k2", res.Key)
	require.Equal(t, "x", res.Value)
}

func TestBPopBlocksThenWakes(t *testing.T) {
	s := New()
	done := make(chan BPopResult, 1)
	go func() {
		res, ok := s.BPop(context.Background(), []string{"k1", "k2"}, true, time.Second)
		require.True(t, ok)
		done <- res
	}()

	time.Sleep(20 * time.Millisecond)
	s.Push("k1", false, []string{"hello"})

	select {
	case res := <-done:
		require.Equal(t, "k1", res.Key)
		require.Equal(t, "hello", res.Value)
	case <-time.After(time.Second):
		t.Fatal("BPop did not wake on push")
	}
}

func TestBPopTimesOut(t *testing.T) {
	s := New()
	_, ok := s.BPop(context.Background(), []string{"k1"}, true, 20*time.Millisecond)
	require.False(t, ok)
}
