package server

import (
	"context"
	"strings"

	"github.com/redikit/redikit/mctx"
	"github.com/redikit/redikit/rdb"
	"github.com/redikit/redikit/replication"
	"github.com/redikit/redikit/resp"
)

// connectReplica performs the replica side of the handshake (spec §4.7
// steps 1-5) and the initial RDB load, storing the resulting connection on
// s.replConn for applyReplicaLoop to stream from. Registered as an
// mrun.InitHook by RegisterHooks, so a master that's unreachable at startup
// fails the server's Init the same way a bind failure would.
func (s *Server) connectReplica(ctx context.Context) error {
	ownPort := s.Cfg.String("port", "6379")

	nc, err := replication.Dial(s.MasterHost, s.MasterPort)
	if err != nil {
		return &replication.ErrHandshakeFailed{Step: "dial", Err: err}
	}

	logCtx := mctx.Annotate(ctx, "master", s.MasterHost+":"+s.MasterPort)
	s.Log.Info(logCtx, "starting replica handshake")

	var authSecret []byte
	if secret := s.Cfg.String("replica-auth-secret", ""); secret != "" {
		authSecret = []byte(secret)
	}

	res, err := replication.Handshake(nc, ownPort, authSecret)
	if err != nil {
		s.Log.Error(logCtx, "replica handshake failed", err)
		nc.Close()
		return err
	}
	s.Repl.ReplicationID = res.ReplicationID

	if entries, err := rdb.Load(res.RDB); err != nil {
		s.Log.Warn(logCtx, "master RDB payload unparsable, starting empty", err)
	} else {
		s.Store.LoadSnapshot(entries)
	}

	s.Log.Info(logCtx, "replica handshake complete")
	s.replConn = nc
	return nil
}

// closeReplicaLink closes the connection to the master, if one was
// established. Registered as an mrun.ShutdownHook by RegisterHooks.
func (s *Server) closeReplicaLink(ctx context.Context) error {
	if s.replConn == nil {
		return nil
	}
	return s.replConn.Close()
}

// applyReplicaLoop streams replicated commands from s.replConn (step 6 --
// "the same socket now streams replicated commands") until ctx is
// canceled or the connection is lost. connectReplica must have already
// populated s.replConn.
func (s *Server) applyReplicaLoop(ctx context.Context) error {
	logCtx := mctx.Annotate(ctx, "master", s.MasterHost+":"+s.MasterPort)
	s.Log.Info(logCtx, "applying replication stream")

	masterConn := s.newConn(s.replConn)
	r := resp.NewReader(s.replConn)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		args, err := r.ReadArray()
		if err != nil {
			s.Log.Warn(logCtx, "lost connection to master", err)
			return err
		}
		if len(args) == 0 {
			continue
		}

		frame := resp.Encode(resp.ArrayOfStrings(args...))
		isWrite := isReplicatedCommand(strings.ToUpper(args[0]))
		s.Repl.AddReplicationOffset(int64(len(frame)), isWrite)

		s.applyFromMaster(ctx, masterConn, args)
	}
}

// applyFromMaster executes one command received from the master, per spec
// §4.8's reply-suppression rule: a replica never replies to its master
// except for REPLCONF GETACK * and COMMAND DOCS.
func (s *Server) applyFromMaster(ctx context.Context, masterConn *conn, args []string) {
	cmd := strings.ToUpper(args[0])

	v, suppress := s.dispatchOne(ctx, masterConn, cmd, args[1:], false)
	if suppress {
		return
	}

	if (cmd == "REPLCONF" && len(args) > 1 && strings.EqualFold(args[1], "GETACK")) || (cmd == "COMMAND" && len(args) > 1 && strings.EqualFold(args[1], "DOCS")) {
		_ = masterConn.writeValue(v)
	}
}
