package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	id     string
	pushes [][]string
}

func (f *fakeSub) Push(parts []string) {
	f.pushes = append(f.pushes, parts)
}

func TestSubscribeUnsubscribeCounts(t *testing.T) {
	h := New()
	a := &fakeSub{id: "a"}

	require.Equal(t, 1, h.Subscribe(a, "ch1"))
	require.Equal(t, 2, h.Subscribe(a, "ch2"))
	require.Equal(t, 2, h.Subscribe(a, "ch2")) // idempotent

	require.True(t, h.IsSubscribed(a))
	require.Equal(t, 1, h.Unsubscribe(a, "ch1"))
	require.Equal(t, 0, h.Unsubscribe(a, "ch2"))
	require.False(t, h.IsSubscribed(a))
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	h := New()
	a := &fakeSub{id: "a"}
	b := &fakeSub{id: "b"}
	h.Subscribe(a, "ch")
	h.Subscribe(b, "ch")

	n := h.Publish("ch", "hello")
	require.Equal(t, 2, n)
	require.Equal(t, [][]string{{"message", "ch", "hello"}}, a.pushes)
	require.Equal(t, [][]string{{"message", "ch", "hello"}}, b.pushes)
}

func TestPublishNoSubscribers(t *testing.T) {
	h := New()
	require.Equal(t, 0, h.Publish("nobody", "msg"))
}

func TestDisconnectIsSilent(t *testing.T) {
	h := New()
	a := &fakeSub{id: "a"}
	h.Subscribe(a, "ch1")
	h.Subscribe(a, "ch2")

	h.Disconnect(a)
	require.False(t, h.IsSubscribed(a))
	require.Empty(t, h.Channels(a))
	require.Equal(t, 0, h.Publish("ch1", "x"))
}

func TestAllowedInSubscribedMode(t *testing.T) {
	require.True(t, AllowedInSubscribedMode("SUBSCRIBE"))
	require.True(t, AllowedInSubscribedMode("PING"))
	require.False(t, AllowedInSubscribedMode("GET"))
}
