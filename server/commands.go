package server

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redikit/redikit/rdb"
	"github.com/redikit/redikit/replication"
	"github.com/redikit/redikit/resp"
	"github.com/redikit/redikit/streamstore"
)

// isReplicatedCommand reports whether cmd is a write-type command: it
// advances waitcmd_offset and is propagated to registered replicas, per
// spec §4.7 ("SET, XADD; extensible").
func isReplicatedCommand(cmd string) bool {
	switch cmd {
	case "SET", "XADD":
		return true
	default:
		return false
	}
}

// dispatch routes one already-framed command to its handler and returns
// its RESP reply, along with suppress=true for the handful of commands
// (SUBSCRIBE, UNSUBSCRIBE, PSYNC, REPLCONF ACK) that write their own
// reply(ies) directly rather than through the normal single-reply path --
// the redesigned equivalent of spec §4.9's NO_REPLY sentinel. allowBlock is
// false when called from inside a transaction's EXEC, where blocking
// commands must behave as an immediate, possibly-empty, non-blocking check
// (transactions never suspend).
func (s *Server) dispatch(ctx context.Context, c *conn, args []string, allowBlock bool) (resp.Value, bool) {
	cmd := strings.ToUpper(args[0])
	rest := args[1:]

	reply, suppress := s.dispatchOne(ctx, c, cmd, rest, allowBlock)

	if isReplicatedCommand(cmd) {
		s.Repl.Propagate(resp.Encode(resp.ArrayOfStrings(args...)), true)
	}

	if s.Metrics != nil {
		s.Metrics.ReplOffsetBytes.Set(float64(s.Repl.ReplOffset()))
		if cmd == "SET" || cmd == "INCR" {
			s.Metrics.KeyspaceKeys.Set(float64(len(s.Store.Keys("*"))))
		}
	}
	return reply, suppress
}

func (s *Server) dispatchOne(ctx context.Context, c *conn, cmd string, args []string, allowBlock bool) (resp.Value, bool) {
	switch cmd {
	case "PING":
		return s.cmdPing(c, args), false
	case "ECHO":
		return s.cmdEcho(args), false
	case "COMMAND":
		return s.cmdCommand(args), false
	case "CONFIG":
		return s.cmdConfig(args), false
	case "SET":
		return s.cmdSet(args), false
	case "GET":
		return s.cmdGet(args), false
	case "INCR":
		return s.cmdIncr(args), false
	case "TYPE":
		return s.cmdType(args), false
	case "KEYS":
		return s.cmdKeys(args), false
	case "INFO":
		return s.cmdInfo(args), false
	case "REPLCONF":
		return s.cmdReplconf(c, args)
	case "PSYNC":
		s.cmdPsync(c, args)
		return resp.Value{}, true
	case "WAIT":
		return s.cmdWait(ctx, args), false
	case "XADD":
		return s.cmdXAdd(args), false
	case "XRANGE":
		return s.cmdXRange(args), false
	case "XREAD":
		return s.cmdXRead(ctx, args, allowBlock), false
	case "LPUSH":
		return s.cmdPush(args, true), false
	case "RPUSH":
		return s.cmdPush(args, false), false
	case "LPOP":
		return s.cmdPop(args, true), false
	case "RPOP":
		return s.cmdPop(args, false), false
	case "LRANGE":
		return s.cmdLRange(args), false
	case "LLEN":
		return s.cmdLLen(args), false
	case "BLPOP":
		return s.cmdBLPop(ctx, args, allowBlock), false
	case "MULTI":
		return s.cmdMulti(c), false
	case "EXEC":
		return s.cmdExec(c), false
	case "DISCARD":
		return s.cmdDiscard(c), false
	case "SUBSCRIBE":
		s.cmdSubscribe(c, args)
		return resp.Value{}, true
	case "UNSUBSCRIBE":
		s.cmdUnsubscribe(c, args)
		return resp.Value{}, true
	case "PUBLISH":
		return s.cmdPublish(args), false
	case "QUIT":
		return resp.SimpleString("OK"), false
	default:
		return resp.Errorf("ERR unknown command '%s'", strings.ToLower(cmd)), false
	}
}

func arityErr(cmd string) resp.Value {
	return resp.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

func (s *Server) cmdPing(c *conn, args []string) resp.Value {
	if s.Hub.IsSubscribed(c) {
		msg := ""
		if len(args) > 0 {
			msg = args[0]
		}
		return resp.Array(resp.BulkStringFromString("pong"), resp.BulkStringFromString(msg))
	}
	if len(args) == 0 {
		return resp.SimpleString("PONG")
	}
	return resp.BulkStringFromString(args[0])
}

func (s *Server) cmdEcho(args []string) resp.Value {
	if len(args) != 1 {
		return arityErr("ECHO")
	}
	return resp.BulkStringFromString(args[0])
}

// cmdCommand replies to COMMAND and COMMAND DOCS with an inert empty
// array, enough for clients that probe capabilities at connect time
// without implementing the full command-introspection metadata table.
func (s *Server) cmdCommand(args []string) resp.Value {
	return resp.Array()
}

func (s *Server) cmdConfig(args []string) resp.Value {
	if len(args) < 1 {
		return arityErr("CONFIG")
	}
	switch strings.ToUpper(args[0]) {
	case "GET":
		pattern := ""
		if len(args) > 1 {
			pattern = args[1]
		}
		v, _, _ := s.configGetGroup.Do(pattern, func() (interface{}, error) {
			all := s.Cfg.All(pattern)
			out := make([]resp.Value, 0, len(all)*2)
			for k, val := range all {
				out = append(out, resp.BulkStringFromString(k), resp.BulkStringFromString(val))
			}
			return resp.Array(out...), nil
		})
		return v.(resp.Value)
	default:
		return resp.Errorf("ERR CONFIG subcommand '%s' not supported", args[0])
	}
}

func (s *Server) cmdSet(args []string) resp.Value {
	if len(args) < 2 {
		return arityErr("SET")
	}
	key, val := args[0], args[1]

	var ttl time.Duration
	for i := 2; i < len(args); i++ {
		if strings.EqualFold(args[i], "PX") && i+1 < len(args) {
			ms, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return resp.ErrorReply("ERR PX value is not an integer or out of range")
			}
			ttl = time.Duration(ms) * time.Millisecond
			i++
		}
	}

	s.Store.Set(key, []byte(val), ttl)
	return resp.SimpleString("OK")
}

func (s *Server) cmdGet(args []string) resp.Value {
	if len(args) != 1 {
		return arityErr("GET")
	}
	v, ok := s.Store.Get(args[0])
	if !ok {
		return resp.NullBulk()
	}
	return resp.BulkString(v)
}

func (s *Server) cmdIncr(args []string) resp.Value {
	if len(args) != 1 {
		return arityErr("INCR")
	}
	n, err := s.Store.Incr(args[0])
	if err != nil {
		return resp.ErrorReply("ERR " + err.Error())
	}
	return resp.Integer(n)
}

func (s *Server) cmdType(args []string) resp.Value {
	if len(args) != 1 {
		return arityErr("TYPE")
	}
	key := args[0]
	// Lists are deliberately not consulted here, preserving the source's
	// known "TYPE returns none for list keys" gap (spec's documented open
	// question). Streams are consulted, since the omission there was never
	// called out as intentional.
	switch {
	case s.Store.Has(key):
		return resp.SimpleString("string")
	case s.Streams.Has(key):
		return resp.SimpleString("stream")
	default:
		return resp.SimpleString("none")
	}
}

func (s *Server) cmdKeys(args []string) resp.Value {
	if len(args) != 1 {
		return arityErr("KEYS")
	}
	ks := s.Store.Keys(args[0])
	return resp.ArrayOfStrings(ks...)
}

func (s *Server) cmdInfo(args []string) resp.Value {
	var sb strings.Builder
	sb.WriteString("# Replication\r\n")
	if s.IsReplica {
		sb.WriteString("role:slave\r\n")
		sb.WriteString("master_host:" + s.MasterHost + "\r\n")
		sb.WriteString("master_port:" + s.MasterPort + "\r\n")
	} else {
		sb.WriteString("role:master\r\n")
	}
	sb.WriteString("connected_slaves:" + strconv.Itoa(s.Repl.Count()) + "\r\n")
	sb.WriteString("master_replid:" + s.Repl.ReplicationID + "\r\n")
	sb.WriteString("master_repl_offset:" + strconv.FormatInt(s.Repl.ReplOffset(), 10) + "\r\n")
	return resp.BulkStringFromString(sb.String())
}

func (s *Server) cmdReplconf(c *conn, args []string) (resp.Value, bool) {
	if len(args) < 1 {
		return arityErr("REPLCONF"), false
	}
	switch strings.ToUpper(args[0]) {
	case "LISTENING-PORT":
		if len(args) < 2 {
			return arityErr("REPLCONF"), false
		}
		if s.Cfg.Bool("require-replica-auth", false) {
			secret := s.Cfg.String("replica-auth-secret", "")
			if len(args) < 3 {
				return resp.Errorf("NOAUTH replica auth token required"), false
			}
			if err := replication.VerifyReplicaToken([]byte(secret), args[2], args[1]); err != nil {
				return resp.Errorf("NOAUTH %s", err), false
			}
		}
		if c.replHandle == nil {
			c.replHandle = s.Repl.Register(c.nc)
		}
		s.Repl.SetListeningPort(c.replHandle, args[1])
		return resp.SimpleString("OK"), false
	case "CAPA":
		return resp.SimpleString("OK"), false
	case "GETACK":
		// Only meaningful on a replica's master-link connection; the
		// normal client path replies defensively rather than silently
		// swallowing an unexpected GETACK.
		return resp.ArrayOfStrings("REPLCONF", "ACK", strconv.FormatInt(s.Repl.ReplOffset(), 10)), false
	case "ACK":
		if len(args) >= 2 && c.replHandle != nil {
			if n, err := strconv.ParseInt(args[1], 10, 64); err == nil {
				c.replHandle.SetAckOffset(n)
			}
		}
		return resp.Value{}, true // ACK is master-bound; no reply expected
	default:
		return resp.SimpleString("OK"), false
	}
}

func (s *Server) cmdPsync(c *conn, args []string) {
	if c.replHandle == nil {
		c.replHandle = s.Repl.Register(c.nc)
	}
	line := resp.SimpleString("FULLRESYNC " + s.Repl.ReplicationID + " " + strconv.FormatInt(s.Repl.ReplOffset(), 10))
	if err := c.writeValue(line); err != nil {
		return
	}
	// The RDB payload is length-prefixed like a bulk string but carries no
	// trailing CRLF (see resp.Reader.ReadRDBBlob).
	_, _ = c.nc.Write(append([]byte("$"+strconv.Itoa(len(rdb.EmptyRDB))+"\r\n"), rdb.EmptyRDB...))
}

func (s *Server) cmdWait(ctx context.Context, args []string) resp.Value {
	if len(args) != 2 {
		return arityErr("WAIT")
	}
	numReplicas, err := strconv.Atoi(args[0])
	if err != nil {
		return resp.ErrorReply("ERR value is not an integer or out of range")
	}
	timeoutMs, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return resp.ErrorReply("ERR value is not an integer or out of range")
	}
	n := s.Repl.Wait(ctx, numReplicas, time.Duration(timeoutMs)*time.Millisecond)
	return resp.Integer(int64(n))
}

func (s *Server) cmdXAdd(args []string) resp.Value {
	if len(args) < 4 || len(args)%2 != 0 {
		return arityErr("XADD")
	}
	stream, rawID := args[0], args[1]
	fields := args[2:]

	id, err := s.Streams.XAdd(stream, rawID, fields)
	if err != nil {
		return resp.ErrorReply("ERR " + err.Error())
	}
	return resp.BulkStringFromString(id.String())
}

func entryToValue(e streamstore.Entry) resp.Value {
	return resp.Array(resp.BulkStringFromString(e.ID.String()), resp.ArrayOfStrings(e.Fields...))
}

func (s *Server) cmdXRange(args []string) resp.Value {
	if len(args) != 3 {
		return arityErr("XRANGE")
	}
	start, err := streamstore.ParseRangeStart(args[1])
	if err != nil {
		return resp.ErrorReply("ERR " + err.Error())
	}
	end, err := streamstore.ParseRangeEnd(args[2])
	if err != nil {
		return resp.ErrorReply("ERR " + err.Error())
	}

	entries := s.Streams.XRange(args[0], start, end)
	out := make([]resp.Value, len(entries))
	for i, e := range entries {
		out[i] = entryToValue(e)
	}
	return resp.Array(out...)
}

// cmdXRead parses "[BLOCK ms] STREAMS k1..kn id1..idn" and performs a
// (possibly blocking) multi-stream read, per spec §4.3.
func (s *Server) cmdXRead(ctx context.Context, args []string, allowBlock bool) resp.Value {
	var blockMs int64 = -1
	i := 0
	if i < len(args) && strings.EqualFold(args[i], "BLOCK") {
		ms, err := strconv.ParseInt(args[i+1], 10, 64)
		if err != nil {
			return resp.ErrorReply("ERR timeout is not an integer or out of range")
		}
		blockMs = ms
		i += 2
	}
	if i >= len(args) || !strings.EqualFold(args[i], "STREAMS") {
		return resp.ErrorReply("ERR syntax error")
	}
	i++
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return resp.ErrorReply("ERR Unbalanced XREAD list of streams: for each stream key an ID or '$' must be specified.")
	}
	n := len(rest) / 2
	names := rest[:n]
	rawIDs := rest[n:]

	ids := make([]streamstore.ID, n)
	for j, raw := range rawIDs {
		id, err := s.Streams.ResolveReadID(names[j], raw)
		if err != nil {
			return resp.ErrorReply("ERR " + err.Error())
		}
		ids[j] = id
	}

	block := allowBlock && blockMs >= 0
	timeout := time.Duration(blockMs) * time.Millisecond

	reads := s.Streams.XRead(ctx, names, ids, block, timeout)
	if len(reads) == 0 {
		return resp.NullArray()
	}

	out := make([]resp.Value, len(reads))
	for j, r := range reads {
		entries := make([]resp.Value, len(r.Entries))
		for k, e := range r.Entries {
			entries[k] = entryToValue(e)
		}
		out[j] = resp.Array(resp.BulkStringFromString(r.Stream), resp.Array(entries...))
	}
	return resp.Array(out...)
}

func (s *Server) cmdPush(args []string, left bool) resp.Value {
	cmd := "RPUSH"
	if left {
		cmd = "LPUSH"
	}
	if len(args) < 2 {
		return arityErr(cmd)
	}
	n := s.Lists.Push(args[0], left, args[1:])
	return resp.Integer(int64(n))
}

func (s *Server) cmdPop(args []string, left bool) resp.Value {
	cmd := "RPOP"
	if left {
		cmd = "LPOP"
	}
	if len(args) < 1 || len(args) > 2 {
		return arityErr(cmd)
	}
	count := 1
	hasCount := len(args) == 2
	if hasCount {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return resp.ErrorReply("ERR value is not an integer or out of range")
		}
		count = n
	}

	vs, ok := s.Lists.Pop(args[0], left, count)
	if !ok {
		if hasCount {
			return resp.NullArray()
		}
		return resp.NullBulk()
	}
	if !hasCount {
		return resp.BulkStringFromString(vs[0])
	}
	return resp.ArrayOfStrings(vs...)
}

func (s *Server) cmdLRange(args []string) resp.Value {
	if len(args) != 3 {
		return arityErr("LRANGE")
	}
	start, err := strconv.Atoi(args[1])
	if err != nil {
		return resp.ErrorReply("ERR value is not an integer or out of range")
	}
	end, err := strconv.Atoi(args[2])
	if err != nil {
		return resp.ErrorReply("ERR value is not an integer or out of range")
	}
	return resp.ArrayOfStrings(s.Lists.Range(args[0], start, end)...)
}

func (s *Server) cmdLLen(args []string) resp.Value {
	if len(args) != 1 {
		return arityErr("LLEN")
	}
	return resp.Integer(int64(s.Lists.Len(args[0])))
}

func (s *Server) cmdBLPop(ctx context.Context, args []string, allowBlock bool) resp.Value {
	if len(args) < 2 {
		return arityErr("BLPOP")
	}
	keys := args[:len(args)-1]
	secs, err := strconv.ParseFloat(args[len(args)-1], 64)
	if err != nil {
		return resp.ErrorReply("ERR timeout is not a float or out of range")
	}
	timeout := time.Duration(secs * float64(time.Second))

	if !allowBlock {
		// Inside a transaction's EXEC, BLPOP never suspends: check each key
		// once, in declared order, and return immediately either way.
		for _, k := range keys {
			if vs, ok := s.Lists.Pop(k, true, 1); ok {
				return resp.ArrayOfStrings(k, vs[0])
			}
		}
		return resp.NullArray()
	}

	res, ok := s.Lists.BPop(ctx, keys, true, timeout)
	if !ok {
		return resp.NullArray()
	}
	return resp.ArrayOfStrings(res.Key, res.Value)
}

func (s *Server) cmdMulti(c *conn) resp.Value {
	if err := c.txn.Multi(); err != nil {
		return resp.ErrorReply("ERR " + err.Error())
	}
	return resp.SimpleString("OK")
}

func (s *Server) cmdExec(c *conn) resp.Value {
	v, err := c.txn.Exec(c)
	if err != nil {
		return resp.ErrorReply("ERR " + err.Error())
	}
	return v
}

func (s *Server) cmdDiscard(c *conn) resp.Value {
	if err := c.txn.Discard(); err != nil {
		return resp.ErrorReply("ERR " + err.Error())
	}
	return resp.SimpleString("OK")
}

func (s *Server) cmdSubscribe(c *conn, args []string) {
	if len(args) == 0 {
		_ = c.writeValue(arityErr("SUBSCRIBE"))
		return
	}
	for _, ch := range args {
		n := s.Hub.Subscribe(c, ch)
		_ = c.writeValue(resp.Array(resp.BulkStringFromString("subscribe"), resp.BulkStringFromString(ch), resp.Integer(int64(n))))
	}
}

func (s *Server) cmdUnsubscribe(c *conn, args []string) {
	channels := args
	if len(channels) == 0 {
		channels = s.Hub.Channels(c)
	}
	if len(channels) == 0 {
		_ = c.writeValue(resp.Array(resp.BulkStringFromString("unsubscribe"), resp.NullBulk(), resp.Integer(0)))
		return
	}
	for _, ch := range channels {
		n := s.Hub.Unsubscribe(c, ch)
		_ = c.writeValue(resp.Array(resp.BulkStringFromString("unsubscribe"), resp.BulkStringFromString(ch), resp.Integer(int64(n))))
	}
}

func (s *Server) cmdPublish(args []string) resp.Value {
	if len(args) != 2 {
		return arityErr("PUBLISH")
	}
	n := s.Hub.Publish(args[0], args[1])
	return resp.Integer(int64(n))
}
