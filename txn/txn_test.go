package txn

import (
	"testing"

	"github.com/redikit/redikit/resp"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	n int64
}

func (f *fakeExecutor) Execute(args []string) resp.Value {
	f.n++
	return resp.Integer(f.n)
}

func TestMultiExecQueuesAndRuns(t *testing.T) {
	var tr Transaction
	require.NoError(t, tr.Multi())
	require.True(t, tr.Active())

	tr.Enqueue([]string{"INCR", "c"})
	tr.Enqueue([]string{"INCR", "c"})

	exec := &fakeExecutor{}
	v, err := tr.Exec(exec)
	require.NoError(t, err)
	require.Equal(t, resp.Array(resp.Integer(1), resp.Integer(2)), v)
	require.False(t, tr.Active())
}

func TestNestedMultiIsError(t *testing.T) {
	var tr Transaction
	require.NoError(t, tr.Multi())
	require.ErrorIs(t, tr.Multi(), ErrNestedMulti)
}

func TestExecWithoutMultiIsError(t *testing.T) {
	var tr Transaction
	_, err := tr.Exec(&fakeExecutor{})
	require.ErrorIs(t, err, ErrExecWithoutMulti)
}

func TestDiscardWithoutMultiIsError(t *testing.T) {
	var tr Transaction
	require.ErrorIs(t, tr.Discard(), ErrDiscardWithoutMulti)
}

func TestDiscardClearsQueue(t *testing.T) {
	var tr Transaction
	require.NoError(t, tr.Multi())
	tr.Enqueue([]string{"SET", "a", "b"})
	require.NoError(t, tr.Discard())
	require.False(t, tr.Active())
}

func TestResetDropsSilently(t *testing.T) {
	var tr Transaction
	require.NoError(t, tr.Multi())
	tr.Enqueue([]string{"SET", "a", "b"})
	tr.Reset()
	require.False(t, tr.Active())
}
