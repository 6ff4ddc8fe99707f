// Package txn implements per-connection transactions: MULTI/EXEC/DISCARD,
// per spec §3 and §4.6.
//
// Spec §9 flags the source's dispatcher/transaction "friendship" (the
// transaction handler calling back into the dispatcher's private internals)
// as needing re-architecture. Here that's replaced with an explicit
// CommandExecutor interface: the transaction holds one and calls Execute
// per queued frame; the server package implements it, so txn never reaches
// back into dispatcher internals.
package txn

import (
	"fmt"

	"github.com/redikit/redikit/resp"
)

// CommandExecutor runs one already-parsed command frame against live state
// and returns its RESP reply. EXEC calls this once per queued command, in
// arrival order, against live (non-snapshotted) state per spec §4.6.
type CommandExecutor interface {
	Execute(args []string) resp.Value
}

// ErrNestedMulti, ErrExecWithoutMulti, and ErrDiscardWithoutMulti are the
// exact SemanticError conditions spec §4.6/§7 name.
var (
	ErrNestedMulti         = fmt.Errorf("MULTI calls can not be nested")
	ErrExecWithoutMulti    = fmt.Errorf("EXEC without MULTI")
	ErrDiscardWithoutMulti = fmt.Errorf("DISCARD without MULTI")
)

// Transaction is the per-connection MULTI/EXEC/DISCARD buffer. It is not
// safe for concurrent use -- a connection's commands already execute
// sequentially on its own goroutine, so no locking is needed here.
type Transaction struct {
	active bool
	queue  [][]string
}

// Active reports whether a MULTI has been opened and not yet closed.
func (t *Transaction) Active() bool {
	return t.active
}

// Multi opens a transaction. Returns ErrNestedMulti if one is already open.
func (t *Transaction) Multi() error {
	if t.active {
		return ErrNestedMulti
	}
	t.active = true
	t.queue = nil
	return nil
}

// Enqueue appends args to the open transaction's queue. Callers must check
// Active first.
func (t *Transaction) Enqueue(args []string) {
	t.queue = append(t.queue, append([]string(nil), args...))
}

// Discard clears and closes the open transaction. Returns
// ErrDiscardWithoutMulti if none is open.
func (t *Transaction) Discard() error {
	if !t.active {
		return ErrDiscardWithoutMulti
	}
	t.active = false
	t.queue = nil
	return nil
}

// Exec closes the open transaction and runs every queued command through
// exec in arrival order, collecting their replies into one RESP array.
// Returns ErrExecWithoutMulti if no transaction is open.
func (t *Transaction) Exec(exec CommandExecutor) (resp.Value, error) {
	if !t.active {
		return resp.Value{}, ErrExecWithoutMulti
	}
	queued := t.queue
	t.active = false
	t.queue = nil

	replies := make([]resp.Value, len(queued))
	for i, args := range queued {
		replies[i] = exec.Execute(args)
	}
	return resp.Array(replies...), nil
}

// Reset clears any open transaction state, used on connection close (spec
// §4.6 "on connection close mid-transaction, drop silently").
func (t *Transaction) Reset() {
	t.active = false
	t.queue = nil
}
