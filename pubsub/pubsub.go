// Package pubsub implements the channel hub: SUBSCRIBE/UNSUBSCRIBE/PUBLISH
// and the subscribed-mode command gate, per spec §3 and §4.5.
package pubsub

import "sync"

// Subscriber is anything that can receive a pushed pub/sub message -- the
// server package's per-connection writer satisfies this by wrapping its
// RESP encoder.
type Subscriber interface {
	// Push delivers one out-of-band array reply (e.g. ["message", ch, msg])
	// to the subscriber. Implementations must not block indefinitely.
	Push(parts []string)
}

// Hub holds the two mappings spec §4.5 describes: channel -> ordered-unique
// subscribers, and subscriber -> the channels it's on. Subscriber identity
// is by pointer equality on the Subscriber value (the connection holds onto
// its own Subscriber, ensuring a stable identity across calls).
type Hub struct {
	mu          sync.Mutex
	channels    map[string][]Subscriber
	subscribed  map[Subscriber]map[string]bool
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		channels:   map[string][]Subscriber{},
		subscribed: map[Subscriber]map[string]bool{},
	}
}

// Subscribe adds sub to channel (no-op if already subscribed) and returns
// the subscriber's total subscribed-channel count afterward, per spec
// §4.5's SUBSCRIBE reply shape.
func (h *Hub) Subscribe(sub Subscriber, channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	chans, ok := h.subscribed[sub]
	if !ok {
		chans = map[string]bool{}
		h.subscribed[sub] = chans
	}
	if !chans[channel] {
		chans[channel] = true
		h.channels[channel] = append(h.channels[channel], sub)
	}
	return len(chans)
}

// Unsubscribe removes sub from channel (no-op if not subscribed), deleting
// the channel entry entirely once its last subscriber leaves. Returns the
// subscriber's remaining subscribed-channel count.
func (h *Hub) Unsubscribe(sub Subscriber, channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubscribeLocked(sub, channel)
}

func (h *Hub) unsubscribeLocked(sub Subscriber, channel string) int {
	chans, ok := h.subscribed[sub]
	if ok && chans[channel] {
		delete(chans, channel)
		subs := h.channels[channel]
		for i, s := range subs {
			if s == sub {
				h.channels[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.channels[channel]) == 0 {
			delete(h.channels, channel)
		}
	}
	if ok {
		return len(chans)
	}
	return 0
}

// Channels returns every channel sub currently subscribes to, in no
// particular order -- used for the bare UNSUBSCRIBE form and for disconnect
// cleanup.
func (h *Hub) Channels(sub Subscriber) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	chans := h.subscribed[sub]
	out := make([]string, 0, len(chans))
	for c := range chans {
		out = append(out, c)
	}
	return out
}

// IsSubscribed reports whether sub currently subscribes to at least one
// channel -- determines whether a connection is in subscribed mode.
func (h *Hub) IsSubscribed(sub Subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribed[sub]) > 0
}

// Publish delivers msg to every current subscriber of channel and returns
// the delivery count, per spec §4.5's PUBLISH reply.
func (h *Hub) Publish(channel, msg string) int {
	h.mu.Lock()
	subs := append([]Subscriber(nil), h.channels[channel]...)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Push([]string{"message", channel, msg})
	}
	return len(subs)
}

// Disconnect performs the silent full unsubscribe spec §4.5 requires on
// connection close: every channel is left with no outbound confirmation
// pushed, and the subscriber's bookkeeping is dropped entirely.
func (h *Hub) Disconnect(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribed[sub] {
		subs := h.channels[ch]
		for i, s := range subs {
			if s == sub {
				h.channels[ch] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.channels[ch]) == 0 {
			delete(h.channels, ch)
		}
	}
	delete(h.subscribed, sub)
}

// AllowedInSubscribedMode reports whether cmd (already uppercased) may be
// issued by a connection currently in subscribed mode, per spec §4.5.
func AllowedInSubscribedMode(cmd string) bool {
	switch cmd {
	case "SUBSCRIBE", "UNSUBSCRIBE", "PING", "PSUBSCRIBE", "PUNSUBSCRIBE", "QUIT":
		return true
	default:
		return false
	}
}
