package replication

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/redikit/redikit/resp"
)

// HandshakeResult carries what the replica learns from a successful
// handshake: the master's replication ID, its repl_offset at FULLRESYNC
// time, and the raw RDB payload to load before applying the live stream.
type HandshakeResult struct {
	ReplicationID string
	StartOffset   int64
	RDB           []byte
}

// Dial connects to host:port and normalizes "localhost" to 127.0.0.1, per
// spec §6.
func Dial(host, port string) (net.Conn, error) {
	if host == "localhost" {
		host = "127.0.0.1"
	}
	return net.Dial("tcp", net.JoinHostPort(host, port))
}

// Handshake drives the replica side of spec §4.7's six-step handshake over
// an already-dialed connection to the master, returning the decoded
// FULLRESYNC result. The caller keeps the connection open afterward; the
// same socket streams replicated commands.
//
// authSecret is optional: when non-nil, a short-lived signed token
// (SignReplicaToken) is appended to the REPLCONF listening-port call, for
// masters started with --require-replica-auth.
func Handshake(conn net.Conn, ownPort string, authSecret []byte) (*HandshakeResult, error) {
	r := resp.NewReader(conn)

	step := func(name string, frame []byte, want string) (string, error) {
		if _, err := conn.Write(frame); err != nil {
			return "", &ErrHandshakeFailed{Step: name, Err: err}
		}
		line, err := r.ReadSimpleString()
		if err != nil {
			return "", &ErrHandshakeFailed{Step: name, Err: err}
		}
		if want != "" && !strings.HasPrefix(line, want) {
			return "", &ErrHandshakeFailed{Step: name, Err: fmt.Errorf("unexpected reply %q", line)}
		}
		return line, nil
	}

	if _, err := step("PING", resp.Encode(resp.ArrayOfStrings("PING")), "PONG"); err != nil {
		return nil, err
	}

	listeningPortArgs := []string{"REPLCONF", "listening-port", ownPort}
	if authSecret != nil {
		tok, err := SignReplicaToken(authSecret, ownPort)
		if err != nil {
			return nil, &ErrHandshakeFailed{Step: "REPLCONF listening-port", Err: err}
		}
		listeningPortArgs = append(listeningPortArgs, tok)
	}
	if _, err := step("REPLCONF listening-port",
		resp.Encode(resp.ArrayOfStrings(listeningPortArgs...)), "OK"); err != nil {
		return nil, err
	}

	if _, err := step("REPLCONF capa",
		resp.Encode(resp.ArrayOfStrings("REPLCONF", "capa", "psync2")), "OK"); err != nil {
		return nil, err
	}

	line, err := step("PSYNC", resp.Encode(resp.ArrayOfStrings("PSYNC", "?", "-1")), "FULLRESYNC")
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return nil, &ErrHandshakeFailed{Step: "PSYNC", Err: fmt.Errorf("malformed FULLRESYNC line %q", line)}
	}
	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, &ErrHandshakeFailed{Step: "PSYNC", Err: fmt.Errorf("invalid offset in %q", line)}
	}

	rdb, err := r.ReadRDBBlob()
	if err != nil {
		return nil, &ErrHandshakeFailed{Step: "RDB transfer", Err: err}
	}

	return &HandshakeResult{ReplicationID: fields[1], StartOffset: offset, RDB: rdb}, nil
}
