package flowctrl

import (
	"testing"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowPackage(t *testing.T) {
	w := NewWindow(config.Defaults().Congestion.Fixed)

	err := w.HandleSendme()
	require.Error(t, err)
	assert.True(t, circerr.IsProtocol(err))

	sent := 0
	for w.CanSend() {
		w.NoteDataSent()
		sent++
	}
	assert.Equal(t, 500, sent)

	require.NoError(t, w.HandleSendme())
	assert.Equal(t, uint32(50), w.Package())
}

func TestWindowDeliver(t *testing.T) {
	w := NewWindow(config.Defaults().Congestion.Fixed)

	for i := 0; i < 49; i++ {
		require.NoError(t, w.NoteDataReceived())
	}
	assert.False(t, w.NoteDataDelivered())
	require.NoError(t, w.NoteDataReceived())
	assert.True(t, w.NoteDataDelivered())
	assert.Equal(t, uint32(500), w.Deliver())

	require.NoError(t, w.Consume(500))
	err := w.NoteDataReceived()
	require.Error(t, err)
	assert.True(t, circerr.IsProtocol(err))
}
