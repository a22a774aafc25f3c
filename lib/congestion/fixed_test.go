package congestion

import (
	"testing"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindow(t *testing.T) {
	f := NewFixedWindow(1000, 100)
	assert.True(t, f.UsesStreamSendme())
	assert.False(t, f.UsesXonXoff())
	assert.Nil(t, f.Cwnd())

	points := 0
	for f.CanSend() {
		if f.IsNextCellSendme() {
			points++
		}
		f.OnDataSent()
	}
	assert.Equal(t, 10, points)
	assert.Equal(t, uint32(1000), f.Inflight())

	var st State
	require.NoError(t, f.OnSendmeReceived(&st, nil, Signals{}))
	assert.Equal(t, uint32(100), f.Window())
	assert.True(t, f.CanSend())
}

func TestFixedWindowUnexpectedSendme(t *testing.T) {
	f := NewFixedWindow(1000, 100)
	var st State
	err := f.OnSendmeReceived(&st, nil, Signals{})
	require.Error(t, err)
	assert.True(t, circerr.IsProtocol(err))
	assert.Equal(t, uint32(1000), f.Window())
}
