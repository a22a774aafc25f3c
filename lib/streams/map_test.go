package streams

import (
	"testing"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/flowctrl"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(useSendme bool) *OpenEntry {
	return &OpenEntry{
		Outbound: NewQueue(16),
		Inbound:  NewQueue(0),
		Flow:     flowctrl.NewStream(config.Defaults(), useSendme, false),
		Checker:  NewConnectedChecker(),
	}
}

func newMap() *Map {
	return NewMap(config.Defaults().Reactor)
}

func TestMapAddEntryAllocatesUniqueIDs(t *testing.T) {
	m := newMap()
	seen := map[relay.StreamID]bool{}
	for i := 0; i < 200; i++ {
		id, err := m.AddEntry(newEntry(false))
		require.NoError(t, err)
		assert.False(t, id.IsZero())
		assert.False(t, seen[id], "id %s allocated twice", id)
		seen[id] = true
	}
	assert.Equal(t, 200, m.Len())
}

func TestMapAddEntryExhausted(t *testing.T) {
	cfg := config.Defaults().Reactor
	cfg.StreamIDProbeAttempts = 4
	m := NewMap(cfg)
	for id := 1; id <= 0xFFFF; id++ {
		m.open[relay.StreamID(id)] = &OpenEntry{}
	}
	_, err := m.AddEntry(newEntry(false))
	require.Error(t, err)
	assert.True(t, circerr.IsExhausted(err))
	assert.False(t, circerr.IsProtocol(err))
}

func TestMapAddEntryWithID(t *testing.T) {
	m := newMap()
	require.NoError(t, m.AddEntryWithID(5, newEntry(false)))
	assert.True(t, circerr.IsProtocol(m.AddEntryWithID(5, newEntry(false))))
	assert.True(t, circerr.IsBug(m.AddEntryWithID(0, newEntry(false))))
}

func TestMapRoundRobin(t *testing.T) {
	m := newMap()
	a, b := newEntry(false), newEntry(false)
	require.NoError(t, m.AddEntryWithID(10, a))
	require.NoError(t, m.AddEntryWithID(20, b))
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Outbound.Push(relay.NewData(10, []byte("a"))))
		require.NoError(t, b.Outbound.Push(relay.NewData(20, []byte("b"))))
	}

	now := time.Unix(1, 0)
	var order []relay.StreamID
	for {
		id, _, ok := m.NextReady(now, nil)
		if !ok {
			break
		}
		_, ok = m.Take(id)
		require.True(t, ok)
		order = append(order, id)
	}
	assert.Equal(t, []relay.StreamID{10, 20, 10, 20, 10, 20}, order)
}

func TestMapRoundRobinAfterDrain(t *testing.T) {
	m := newMap()
	a, b := newEntry(false), newEntry(false)
	require.NoError(t, m.AddEntryWithID(1, a))
	require.NoError(t, m.AddEntryWithID(2, b))
	require.NoError(t, a.Outbound.Push(relay.NewData(1, []byte("a1"))))
	require.NoError(t, a.Outbound.Push(relay.NewData(1, []byte("a2"))))
	require.NoError(t, b.Outbound.Push(relay.NewData(2, []byte("b1"))))

	now := time.Unix(1, 0)
	id, _, ok := m.NextReady(now, nil)
	require.True(t, ok)
	require.Equal(t, relay.StreamID(1), id)
	m.Take(id)

	id, _, ok = m.NextReady(now, nil)
	require.True(t, ok)
	assert.Equal(t, relay.StreamID(2), id, "A was re-stamped behind B")
}

func TestMapGateAndFlowControl(t *testing.T) {
	m := newMap()
	a, b := newEntry(false), newEntry(false)
	require.NoError(t, m.AddEntryWithID(1, a))
	require.NoError(t, m.AddEntryWithID(2, b))
	require.NoError(t, a.Outbound.Push(relay.NewData(1, []byte("a"))))
	require.NoError(t, b.Outbound.Push(relay.NewMsg(relay.CmdBegin, 2, []byte("host:80\x00"))))
	now := time.Unix(1, 0)

	closed := func(relay.Msg) bool { return false }
	id, msg, ok := m.NextReady(now, closed)
	require.True(t, ok, "non-DATA messages bypass the gate")
	assert.Equal(t, relay.StreamID(2), id)
	assert.Equal(t, relay.CmdBegin, msg.Cmd)
	m.Take(id)

	_, _, ok = m.NextReady(now, closed)
	assert.False(t, ok)

	require.NoError(t, a.Flow.HandleMsg(relay.NewXoff(1)))
	_, _, ok = m.NextReady(now, nil)
	assert.False(t, ok, "XOFF blocks the stream")
	assert.True(t, m.NextWakeup(now).IsZero())
}

func TestMapTerminateThenEnd(t *testing.T) {
	m := newMap()
	require.NoError(t, m.AddEntryWithID(7, newEntry(false)))

	send, err := m.Terminate(7, ExplicitEnd)
	require.NoError(t, err)
	assert.True(t, send)

	e := m.Get(7)
	assert.Nil(t, e.Open)
	require.NotNil(t, e.Closed)
	assert.Equal(t, EndSent, e.Closed.Kind)

	require.NoError(t, m.HandleEnd(7))
	assert.False(t, m.Get(7).Found())
	assert.Equal(t, 0, m.Len())
}

func TestMapEndThenTerminate(t *testing.T) {
	m := newMap()
	e := newEntry(false)
	require.NoError(t, m.AddEntryWithID(7, e))

	require.NoError(t, m.HandleEnd(7))
	assert.True(t, e.Inbound.Closed())
	got := m.Get(7)
	require.NotNil(t, got.Closed)
	assert.Equal(t, EndReceived, got.Closed.Kind)

	err := m.HandleEnd(7)
	assert.True(t, circerr.IsProtocol(err), "two ENDs from the peer")

	send, err := m.Terminate(7, StreamTargetClosed)
	require.NoError(t, err)
	assert.False(t, send, "peer already ended")
	assert.False(t, m.Get(7).Found())
}

func TestMapTerminateErrors(t *testing.T) {
	m := newMap()
	_, err := m.Terminate(3, ExplicitEnd)
	assert.True(t, circerr.IsBug(err))

	require.NoError(t, m.AddEntryWithID(3, newEntry(false)))
	_, err = m.Terminate(3, ExplicitEnd)
	require.NoError(t, err)
	_, err = m.Terminate(3, ExplicitEnd)
	assert.True(t, circerr.IsBug(err))

	assert.True(t, circerr.IsProtocol(m.HandleEnd(99)))
}

func TestMapDroppedCellsShrinkHalfStreamWindow(t *testing.T) {
	m := newMap()
	e := newEntry(true)
	require.NoError(t, m.AddEntryWithID(4, e))
	for i := 0; i < 499; i++ {
		require.NoError(t, m.RecordDropped(4))
	}
	assert.Equal(t, uint32(499), e.Dropped())

	_, err := m.Terminate(4, StreamTargetClosed)
	require.NoError(t, err)
	half := m.Get(4).Closed.Half

	_, err = half.Handle(relay.NewData(4, []byte("x")))
	require.NoError(t, err)
	_, err = half.Handle(relay.NewData(4, []byte("y")))
	assert.True(t, circerr.IsProtocol(err), "window exhausted")
}

func TestMapTerminateOverrunKeepsStreamOpen(t *testing.T) {
	m := newMap()
	e := newEntry(true)
	require.NoError(t, m.AddEntryWithID(4, e))
	for i := 0; i < 501; i++ {
		require.NoError(t, m.RecordDropped(4))
	}

	_, err := m.Terminate(4, StreamTargetClosed)
	assert.True(t, circerr.IsProtocol(err))
	got := m.Get(4)
	require.NotNil(t, got.Open, "stream stays tracked after a failed terminate")
	assert.Nil(t, got.Closed)
	assert.Equal(t, 1, m.Len())
}

func TestMapFinished(t *testing.T) {
	m := newMap()
	e := newEntry(false)
	require.NoError(t, m.AddEntryWithID(9, e))
	require.NoError(t, e.Outbound.Push(relay.NewData(9, []byte("last"))))
	e.Outbound.Close()
	assert.Empty(t, m.Finished())

	m.Take(9)
	assert.Equal(t, []relay.StreamID{9}, m.Finished())
}
