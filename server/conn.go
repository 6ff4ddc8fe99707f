package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/redikit/redikit/mctx"
	"github.com/redikit/redikit/replication"
	"github.com/redikit/redikit/resp"
	"github.com/redikit/redikit/txn"
)

// conn is one accepted client connection (or, from the master's point of
// view, one replica link). It owns its own goroutine; blocking commands
// (BLPOP, XREAD BLOCK) tie up only this goroutine, never the accept loop.
type conn struct {
	id  string
	nc  net.Conn
	srv *Server

	wmu sync.Mutex // serializes writes per connection, per spec §5

	txn txn.Transaction

	// replHandle is set once this connection issues REPLCONF listening-port
	// or PSYNC, turning it into a registered replica link from the master's
	// side.
	replHandle *replication.ReplicaHandle
}

// Push implements pubsub.Subscriber: delivers an out-of-band pub/sub
// message directly to the socket.
func (c *conn) Push(parts []string) {
	_ = c.writeValue(resp.ArrayOfStrings(parts...))
}

// Execute implements txn.CommandExecutor: runs one already-parsed command
// against live state and returns its reply, used by EXEC. Blocking
// commands run in their non-blocking form here -- a queued BLPOP inside a
// transaction checks once and returns immediately, matching real Redis's
// "transactions never block" behavior.
func (c *conn) Execute(args []string) resp.Value {
	v, suppress := c.srv.dispatch(context.Background(), c, args, false)
	if suppress {
		// SUBSCRIBE/UNSUBSCRIBE/PSYNC/REPLCONF ACK inside a transaction is
		// not a realistic client usage; fall back to a harmless OK rather
		// than surface a zero Value into the EXEC reply array.
		return resp.SimpleString("OK")
	}
	return v
}

func (c *conn) writeValue(v resp.Value) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return resp.Write(c.nc, v)
}

// serve runs the connection's read-dispatch-reply loop until the client
// disconnects, a protocol error occurs, or ctx is canceled.
func (c *conn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.srv.incConns(1)
	defer c.srv.incConns(-1)

	ctx = mctx.Annotate(ctx, "connID", c.id, "remoteAddr", c.nc.RemoteAddr().String())

	defer func() {
		c.txn.Reset()
		c.srv.Hub.Disconnect(c)
		if c.replHandle != nil {
			c.srv.Repl.Unregister(c.replHandle)
		}
		_ = c.nc.Close()
	}()

	r := resp.NewReader(c.nc)
	for {
		args, err := r.ReadArray()
		if err != nil {
			if !errors.Is(err, resp.ErrConnectionClosed) {
				c.srv.Log.Warn(ctx, "connection closed on protocol error", err)
			}
			return
		}
		if len(args) == 0 {
			continue
		}

		if c.srv.Metrics != nil {
			c.srv.Metrics.ObserveCommand(strings.ToUpper(args[0]))
		}

		reply, suppress := c.route(ctx, args)
		if suppress {
			continue
		}
		if err := c.writeValue(reply); err != nil {
			return
		}
	}
}

// route applies the dispatch precedence spec §4.8 names: an open
// transaction swallows everything except MULTI/EXEC/DISCARD; subscribed
// mode restricts the vocabulary; otherwise the command is routed normally.
// Blocking commands (BLPOP, XREAD BLOCK) block this goroutine directly --
// since each connection owns its own goroutine, there is no separate event
// loop to keep responsive, unlike the single-threaded source.
func (c *conn) route(ctx context.Context, args []string) (resp.Value, bool) {
	cmd := strings.ToUpper(args[0])

	if c.txn.Active() && cmd != "MULTI" && cmd != "EXEC" && cmd != "DISCARD" {
		c.txn.Enqueue(args)
		return resp.SimpleString("QUEUED"), false
	}

	if c.srv.Hub.IsSubscribed(c) && !subscribedModeAllowed(cmd) {
		return resp.Errorf("ERR Can't execute '%s': only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT are allowed in this context", strings.ToLower(cmd)), false
	}

	return c.srv.dispatch(ctx, c, args, true)
}

func subscribedModeAllowed(cmd string) bool {
	switch cmd {
	case "SUBSCRIBE", "UNSUBSCRIBE", "PING", "PSUBSCRIBE", "PUNSUBSCRIBE", "QUIT":
		return true
	default:
		return false
	}
}
