package streams

import (
	"testing"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueBounded(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.Push(relay.NewData(1, []byte("ab"))))
	require.NoError(t, q.Push(relay.NewData(1, []byte("cde"))))

	err := q.Push(relay.NewData(1, []byte("f")))
	require.Error(t, err)
	assert.ErrorIs(t, err, circerr.ErrWouldBlock)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(5), q.Bytes())

	msg, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, []byte("ab"), msg.Body)

	msg, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte("ab"), msg.Body)
	assert.Equal(t, uint64(3), q.Bytes())
	select {
	case <-q.Writable():
	default:
		t.Fatal("pop should signal writable")
	}

	require.NoError(t, q.Push(relay.NewData(1, []byte("f"))))
}

func TestQueueUnbounded(t *testing.T) {
	q := NewQueue(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, q.Push(relay.NewData(1, []byte{byte(i)})))
	}
	assert.Equal(t, 1000, q.Len())
	for i := 0; i < 1000; i++ {
		msg, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, byte(i), msg.Body[0])
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Push(relay.NewData(1, []byte("x"))))
	q.Close()
	assert.True(t, q.Closed())

	err := q.Push(relay.NewData(1, []byte("y")))
	assert.True(t, circerr.IsShutdown(err))

	_, ok := q.Pop()
	assert.True(t, ok, "queued messages survive close")
}
