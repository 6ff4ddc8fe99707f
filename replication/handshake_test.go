package replication

import (
	"net"
	"testing"

	"github.com/redikit/redikit/resp"
	"github.com/stretchr/testify/require"
)

func TestHandshakeSuccess(t *testing.T) {
	client, master := net.Pipe()
	defer client.Close()
	defer master.Close()

	go func() {
		r := resp.NewReader(master)

		_, _ = r.ReadArray() // PING
		_, _ = master.Write([]byte("+PONG\r\n"))

		_, _ = r.ReadArray() // REPLCONF listening-port
		_, _ = master.Write([]byte("+OK\r\n"))

		_, _ = r.ReadArray() // REPLCONF capa
		_, _ = master.Write([]byte("+OK\r\n"))

		_, _ = r.ReadArray() // PSYNC
		_, _ = master.Write([]byte("+FULLRESYNC abcd1234 100\r\n"))

		payload := []byte("REDIS0011")
		_, _ = master.Write(resp.Encode(resp.BulkString(payload)))
	}()

	res, err := Handshake(client, "6380", nil)
	require.NoError(t, err)
	require.Equal(t, "abcd1234", res.ReplicationID)
	require.Equal(t, int64(100), res.StartOffset)
	require.Equal(t, []byte("REDIS0011"), res.RDB)
}

func TestHandshakeSignsListeningPortWhenAuthSecretSet(t *testing.T) {
	client, master := net.Pipe()
	defer client.Close()
	defer master.Close()

	var listeningPortArgs []string
	go func() {
		r := resp.NewReader(master)

		_, _ = r.ReadArray() // PING
		_, _ = master.Write([]byte("+PONG\r\n"))

		listeningPortArgs, _ = r.ReadArray() // REPLCONF listening-port [token]
		_, _ = master.Write([]byte("+OK\r\n"))

		_, _ = r.ReadArray() // REPLCONF capa
		_, _ = master.Write([]byte("+OK\r\n"))

		_, _ = r.ReadArray() // PSYNC
		_, _ = master.Write([]byte("+FULLRESYNC abcd1234 100\r\n"))

		_, _ = master.Write(resp.Encode(resp.BulkString([]byte("REDIS0011"))))
	}()

	_, err := Handshake(client, "6380", []byte("s3cret"))
	require.NoError(t, err)
	require.Len(t, listeningPortArgs, 4)
	require.NoError(t, VerifyReplicaToken([]byte("s3cret"), listeningPortArgs[3], "6380"))
}

func TestHandshakeFailsOnUnexpectedReply(t *testing.T) {
	client, master := net.Pipe()
	defer client.Close()
	defer master.Close()

	go func() {
		r := resp.NewReader(master)
		_, _ = r.ReadArray()
		_, _ = master.Write([]byte("-ERR nope\r\n"))
	}()

	_, err := Handshake(client, "6380", nil)
	require.Error(t, err)
	var hsErr *ErrHandshakeFailed
	require.ErrorAs(t, err, &hsErr)
	require.Equal(t, "PING", hsErr.Step)
}
