package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redikit/redikit/mtest"
)

func TestSetGet(t *testing.T) {
	s := New()
	s.Set("k", []byte("v"), 0)

	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	_, ok = s.Get("missing")
	require.False(t, ok)
}

func TestSetWithTTLExpires(t *testing.T) {
	now := time.Now()
	s := New()
	s.Now = func() time.Time { return now }

	s.Set("k", []byte("v"), 10*time.Millisecond)

	v, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	now = now.Add(11 * time.Millisecond)
	_, ok = s.Get("k")
	require.False(t, ok)
}

func TestIncrInitializesAtOne(t *testing.T) {
	s := New()
	n, err := s.Incr("counter")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.Incr("counter")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestIncrRejectsNonInteger(t *testing.T) {
	s := New()
	s.Set("k", []byte("notanumber"), 0)

	_, err := s.Incr("k")
	require.Error(t, err)
	require.Equal(t, notIntegerMsg, err.Error())
}

func TestIncrDropsExistingTTL(t *testing.T) {
	now := time.Now()
	s := New()
	s.Now = func() time.Time { return now }

	s.Set("k", []byte("1"), 10*time.Millisecond)
	_, err := s.Incr("k")
	require.NoError(t, err)

	now = now.Add(11 * time.Millisecond)
	v, ok := s.Get("k")
	require.True(t, ok, "Incr resets the TTL, so the key should survive past the original expiry")
	require.Equal(t, []byte("2"), v)
}

func TestHas(t *testing.T) {
	s := New()
	require.False(t, s.Has("k"))
	s.Set("k", []byte("v"), 0)
	require.True(t, s.Has("k"))
}

func TestKeysMatchesGlob(t *testing.T) {
	s := New()
	s.Set("foo:1", []byte("a"), 0)
	s.Set("foo:2", []byte("b"), 0)
	s.Set("bar", []byte("c"), 0)

	ks := s.Keys("foo:*")
	require.ElementsMatch(t, []string{"foo:1", "foo:2"}, ks)
}

func TestSetGetRandomKeysAndValues(t *testing.T) {
	s := New()
	want := make(map[string][]byte, 20)
	for i := 0; i < 20; i++ {
		key := "k:" + mtest.RandHex(8)
		val := mtest.RandBytes(16)
		want[key] = val
		s.Set(key, val, 0)
	}

	for key, val := range want {
		got, ok := s.Get(key)
		require.True(t, ok)
		require.Equal(t, val, got)
	}
}

func TestKeysExcludesExpired(t *testing.T) {
	now := time.Now()
	s := New()
	s.Now = func() time.Time { return now }

	s.Set("k", []byte("v"), 10*time.Millisecond)
	now = now.Add(11 * time.Millisecond)

	require.Empty(t, s.Keys("*"))
}

func TestLoadSnapshotDropsAlreadyExpired(t *testing.T) {
	now := time.Now()
	s := New()
	s.Now = func() time.Time { return now }

	s.LoadSnapshot(map[string]SnapshotEntry{
		"fresh":   {Value: []byte("a")},
		"expired": {Value: []byte("b"), Expiry: now.Add(-time.Second)},
		"future":  {Value: []byte("c"), Expiry: now.Add(time.Hour)},
	})

	require.True(t, s.Has("fresh"))
	require.True(t, s.Has("future"))
	require.False(t, s.Has("expired"))
}
