// Package replication implements the master-side replica registry,
// command propagation, offset accounting, and WAIT quorum polling, per spec
// §3 and §4.7. The replica-side handshake driver lives in handshake.go.
package replication

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Writer is the minimal per-connection write surface a replica handle
// needs; the server package's connection wraps its net.Conn to satisfy
// this.
type Writer interface {
	Write(b []byte) (int, error)
}

// ReplicaHandle tracks one registered replica connection: its write side
// (serialized per spec §5's per-connection write-mutex requirement), its
// advertised listening port, and the last offset it has acknowledged via
// REPLCONF ACK.
type ReplicaHandle struct {
	mu         sync.Mutex
	w          Writer
	listenPort string
	ackOffset  int64 // atomic
}

// Write serializes and forwards b to the replica's socket.
func (h *ReplicaHandle) Write(b []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(b)
	return err
}

// SetAckOffset records an offset reported via REPLCONF ACK <offset>.
func (h *ReplicaHandle) SetAckOffset(n int64) {
	atomic.StoreInt64(&h.ackOffset, n)
}

// AckOffset returns the last acknowledged offset.
func (h *ReplicaHandle) AckOffset() int64 {
	return atomic.LoadInt64(&h.ackOffset)
}

// ListeningPort returns the port the replica advertised via REPLCONF
// listening-port, or "" if not yet recorded.
func (h *ReplicaHandle) ListeningPort() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listenPort
}

// Manager is the master-side replication state: the registry of connected
// replicas and the two monotonic byte counters spec §4.7 names.
type Manager struct {
	ReplicationID string

	mu         sync.Mutex
	replicas   map[*ReplicaHandle]struct{}
	replOffset int64 // atomic
	waitOffset int64 // atomic

	// ackPollInterval governs how often Wait re-checks replica ack
	// offsets; overridable in tests. Defaults to 10ms.
	ackPollInterval time.Duration
}

// New returns a Manager for a master with the given fixed replication ID.
func New(replicationID string) *Manager {
	return &Manager{
		ReplicationID:   replicationID,
		replicas:        map[*ReplicaHandle]struct{}{},
		ackPollInterval: 10 * time.Millisecond,
	}
}

// ReplOffset returns the total bytes broadcast on the replication channel
// so far.
func (m *Manager) ReplOffset() int64 {
	return atomic.LoadInt64(&m.replOffset)
}

// WaitOffset returns the total bytes of write-type commands broadcast so
// far -- what WAIT quorum tracks.
func (m *Manager) WaitOffset() int64 {
	return atomic.LoadInt64(&m.waitOffset)
}

// AddReplicationOffset advances repl_offset (and waitcmd_offset, if
// isWrite) by n bytes, used on a replica applying frames received from its
// master (spec §4.7 "Offset accounting").
func (m *Manager) AddReplicationOffset(n int64, isWrite bool) {
	atomic.AddInt64(&m.replOffset, n)
	if isWrite {
		atomic.AddInt64(&m.waitOffset, n)
	}
}

// Register adds a newly PSYNC'd connection to the replica registry.
func (m *Manager) Register(w Writer) *ReplicaHandle {
	h := &ReplicaHandle{w: w}
	m.mu.Lock()
	m.replicas[h] = struct{}{}
	m.mu.Unlock()
	return h
}

// SetListeningPort records the port a replica advertised via REPLCONF
// listening-port.
func (m *Manager) SetListeningPort(h *ReplicaHandle, port string) {
	h.mu.Lock()
	h.listenPort = port
	h.mu.Unlock()
}

// Unregister removes h from the replica registry, e.g. on disconnect.
func (m *Manager) Unregister(h *ReplicaHandle) {
	m.mu.Lock()
	delete(m.replicas, h)
	m.mu.Unlock()
}

// Count returns the number of currently registered replicas.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replicas)
}

func (m *Manager) snapshot() []*ReplicaHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ReplicaHandle, 0, len(m.replicas))
	for h := range m.replicas {
		out = append(out, h)
	}
	return out
}

// Propagate writes the RESP-encoded frame of an already-executed command to
// every registered replica, then advances repl_offset by its length (and
// waitcmd_offset too, if isWrite), per spec §4.7 "Propagation"/"Offset
// accounting". Write errors to an individual replica are ignored here; a
// dead replica is reaped by its own connection goroutine.
func (m *Manager) Propagate(frame []byte, isWrite bool) {
	for _, h := range m.snapshot() {
		_ = h.Write(frame)
	}
	atomic.AddInt64(&m.replOffset, int64(len(frame)))
	if isWrite {
		atomic.AddInt64(&m.waitOffset, int64(len(frame)))
	}
}

// getAckFrame is the wire form of "REPLCONF GETACK *".
var getAckFrame = []byte("*3\r\n$8\r\nREPLCONF\r\n$6\r\nGETACK\r\n$1\r\n*\r\n")

// Wait implements the WAIT command: if no write has ever been propagated
// (waitcmd_offset == 0), it returns the replica count immediately. Otherwise
// it sends REPLCONF GETACK * to every replica and polls ack offsets until
// either numReplicas have caught up to the current repl_offset, or timeout
// elapses, returning the count of replicas that caught up.
func (m *Manager) Wait(ctx context.Context, numReplicas int, timeout time.Duration) int {
	if atomic.LoadInt64(&m.waitOffset) == 0 {
		return m.Count()
	}

	target := atomic.LoadInt64(&m.replOffset)
	replicas := m.snapshot()
	for _, h := range replicas {
		_ = h.Write(getAckFrame)
	}

	deadline := time.Now().Add(timeout)
	interval := m.ackPollInterval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	for {
		acked := 0
		for _, h := range replicas {
			if h.AckOffset() >= target {
				acked++
			}
		}
		if acked >= numReplicas || time.Now().After(deadline) {
			return acked
		}
		select {
		case <-ctx.Done():
			return acked
		case <-time.After(interval):
		}
	}
}

// ErrHandshakeFailed wraps a failure at any step of the replica handshake
// (spec §7 ReplicationFailure, fatal on startup).
type ErrHandshakeFailed struct {
	Step string
	Err  error
}

func (e *ErrHandshakeFailed) Error() string {
	return "replication handshake failed at " + e.Step + ": " + e.Err.Error()
}

func (e *ErrHandshakeFailed) Unwrap() error { return e.Err }
