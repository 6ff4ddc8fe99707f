package replication

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type bufWriter struct {
	buf bytes.Buffer
}

func (b *bufWriter) Write(p []byte) (int, error) { return b.buf.Write(p) }

func TestPropagateAdvancesOffsets(t *testing.T) {
	m := New("0123456789abcdef0123456789abcdef01234567")
	w := &bufWriter{}
	m.Register(w)

	frame := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	m.Propagate(frame, true)

	require.Equal(t, int64(len(frame)), m.ReplOffset())
	require.Equal(t, int64(len(frame)), m.WaitOffset())
	require.Equal(t, frame, w.buf.Bytes())
}

func TestPropagateNonWriteSkipsWaitOffset(t *testing.T) {
	m := New("id")
	frame := []byte("*1\r\n$4\r\nPING\r\n")
	m.Propagate(frame, false)
	require.Equal(t, int64(len(frame)), m.ReplOffset())
	require.Equal(t, int64(0), m.WaitOffset())
}

func TestWaitImmediateWhenNoWritesYet(t *testing.T) {
	m := New("id")
	m.Register(&bufWriter{})
	m.Register(&bufWriter{})
	n := m.Wait(context.Background(), 2, time.Second)
	require.Equal(t, 2, n)
}

func TestWaitQuorumAfterAcks(t *testing.T) {
	m := New("id")
	h1 := m.Register(&bufWriter{})
	h2 := m.Register(&bufWriter{})
	m.ackPollInterval = time.Millisecond

	frame := []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n")
	m.Propagate(frame, true)

	go func() {
		time.Sleep(5 * time.Millisecond)
		h1.SetAckOffset(m.ReplOffset())
		h2.SetAckOffset(m.ReplOffset())
	}()

	n := m.Wait(context.Background(), 2, time.Second)
	require.Equal(t, 2, n)
}

func TestWaitTimesOutWithPartialAcks(t *testing.T) {
	m := New("id")
	h1 := m.Register(&bufWriter{})
	m.Register(&bufWriter{})
	m.ackPollInterval = time.Millisecond

	frame := []byte("*1\r\n$4\r\nXADD\r\n")
	m.Propagate(frame, true)
	h1.SetAckOffset(m.ReplOffset())

	n := m.Wait(context.Background(), 2, 20*time.Millisecond)
	require.Equal(t, 1, n)
}

func TestUnregisterRemovesReplica(t *testing.T) {
	m := New("id")
	h := m.Register(&bufWriter{})
	require.Equal(t, 1, m.Count())
	m.Unregister(h)
	require.Equal(t, 0, m.Count())
}
