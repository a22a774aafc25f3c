package circuit

import (
	"testing"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/congestion"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHopList(t *testing.T, cfg config.ConfigDefaults, n int) *HopList {
	t.Helper()
	l := NewHopList()
	for i := 0; i < n; i++ {
		require.NoError(t, l.add(newHop(relay.HopNum(i), congestion.NewController(cfg.Congestion, false))))
	}
	return l
}

func TestHopListAddInOrder(t *testing.T) {
	l := testHopList(t, config.Defaults(), 2)
	assert.Equal(t, 2, l.Len())

	err := l.add(newHop(5, congestion.NewController(config.Defaults().Congestion, false)))
	assert.True(t, circerr.IsBug(err))

	_, err = l.Get(2)
	assert.True(t, circerr.IsBug(err))
	h, err := l.Get(1)
	require.NoError(t, err)
	assert.Equal(t, relay.HopNum(1), h.Num())
}

func TestHopListBlocking(t *testing.T) {
	l := testHopList(t, config.Defaults(), 3)
	for h := relay.HopNum(0); h < 3; h++ {
		assert.True(t, l.canSendData(h))
	}

	assert.True(t, l.setBlocking(1, true))
	assert.False(t, l.setBlocking(1, true), "unchanged boundary")
	assert.True(t, l.canSendData(0))
	assert.False(t, l.canSendData(1))
	assert.False(t, l.canSendData(2))

	_, err := l.claimData(2)
	assert.ErrorIs(t, err, circerr.ErrWouldBlock, "blocked hops take no data")
	snap, err := l.Snapshot(2)
	require.NoError(t, err)
	assert.Zero(t, snap.Inflight)

	assert.True(t, l.setBlocking(0, false))
	assert.True(t, l.canSendData(2))
	assert.False(t, l.canSendData(7), "unknown hop")
}

func TestHopListCongestionWindow(t *testing.T) {
	cfg := config.Defaults()
	cfg.Congestion.Algorithm = config.AlgorithmFixedWindow
	cfg.Congestion.Fixed.CircWindowStart = 2
	cfg.Congestion.Fixed.CircWindowInc = 2
	l := testHopList(t, cfg, 1)

	point, err := l.claimData(0)
	require.NoError(t, err)
	assert.False(t, point)
	point, err = l.claimData(0)
	require.NoError(t, err)
	assert.True(t, point)
	assert.False(t, l.canSendData(0), "window exhausted")
	_, err = l.claimData(0)
	assert.ErrorIs(t, err, circerr.ErrWouldBlock)
	assert.True(t, l.usesStreamSendme(0))

	owed, err := l.noteDataReceived(0)
	require.NoError(t, err)
	assert.False(t, owed)
	owed, err = l.noteDataReceived(0)
	require.NoError(t, err)
	assert.True(t, owed)

	tag := []byte("0123456789abcdef0123")
	require.NoError(t, l.noteSendmePoint(0, time.Now(), tag))
	snap, err := l.handleSendme(0, time.Now().Add(time.Millisecond), tag, congestion.Signals{})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), snap.Inflight)
	assert.True(t, l.canSendData(0))

	_, err = l.handleSendme(0, time.Now(), tag, congestion.Signals{})
	assert.True(t, circerr.IsProtocol(err), "no tag outstanding")
}

func TestHopWake(t *testing.T) {
	l := testHopList(t, config.Defaults(), 2)
	l.wakeAll()
	l.wakeAll()
	for i := relay.HopNum(0); i < 2; i++ {
		h, err := l.Get(i)
		require.NoError(t, err)
		select {
		case <-h.wake:
		default:
			t.Fatalf("%s not woken", i)
		}
	}
}
