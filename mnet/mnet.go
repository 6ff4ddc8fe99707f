// Package mnet wraps net.Listener with accept/close logging, the way
// github.com/mediocregopher/mediocre-go-lib/mnet's Listener does, minus the
// component-tree configuration machinery -- redikit wires its listener
// directly from an mcfg.Store.
package mnet

import (
	"context"
	"net"

	"github.com/redikit/redikit/mctx"
	"github.com/redikit/redikit/mlog"
)

// Listener wraps a net.Listener, logging accepted connections and closure.
type Listener struct {
	net.Listener
	log *mlog.Logger
}

// Listen opens a TCP listener on addr and wraps it for logging.
func Listen(ctx context.Context, log *mlog.Logger, addr string) (*Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	log.Info(mctx.Annotate(ctx, "addr", l.Addr().String()), "listening")
	return &Listener{Listener: l, log: log}, nil
}

// Accept wraps the underlying Accept, logging the accepted remote address.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return conn, err
	}
	l.log.Debug(mctx.Annotate(context.Background(), "remoteAddr", conn.RemoteAddr().String()), "connection accepted")
	return conn, nil
}

// Close wraps the underlying Close, logging the shutdown.
func (l *Listener) Close() error {
	l.log.Info(context.Background(), "listener closing")
	return l.Listener.Close()
}
