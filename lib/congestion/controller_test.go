package congestion

import (
	"testing"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendToFirstPoint(t *testing.T, c *Controller, at time.Time, tag []byte) {
	t.Helper()
	for {
		require.True(t, c.CanSend())
		point := c.IsNextCellSendme()
		if point {
			c.NoteSendmePoint(at, tag)
		}
		c.NoteDataSent()
		if point {
			return
		}
	}
}

func TestControllerSelectsAlgorithm(t *testing.T) {
	cfg := config.Defaults().Congestion
	c := NewController(cfg, false)
	assert.IsType(t, &Vegas{}, c.Algorithm())
	assert.True(t, c.UsesXonXoff())
	assert.False(t, c.UsesStreamSendme())

	cfg.Algorithm = config.AlgorithmFixedWindow
	c = NewController(cfg, false)
	assert.IsType(t, &FixedWindow{}, c.Algorithm())
	assert.False(t, c.UsesXonXoff())
	assert.True(t, c.UsesStreamSendme())
	assert.Equal(t, config.AlgorithmFixedWindow, c.Snapshot().Algorithm)
}

func TestControllerOnionParams(t *testing.T) {
	cfg := config.Defaults().Congestion
	c := NewController(cfg, true)
	v := c.Algorithm().(*Vegas)
	assert.Equal(t, cfg.VegasOnion.Gamma, v.params.Gamma)
}

func TestControllerRejectsBadTags(t *testing.T) {
	t0 := time.Unix(100, 0)
	tag := []byte("0123456789abcdef")

	tests := []struct {
		name string
		got  []byte
	}{
		{"mismatch", []byte("fedcba9876543210")},
		{"unauthenticated", nil},
		{"truncated", tag[:8]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(config.Defaults().Congestion, false)
			sendToFirstPoint(t, c, t0, tag)
			err := c.HandleSendme(t0.Add(time.Millisecond), tt.got, Signals{})
			require.Error(t, err)
			assert.True(t, circerr.IsProtocol(err))
		})
	}
}

func TestControllerUnexpectedSendme(t *testing.T) {
	c := NewController(config.Defaults().Congestion, false)
	err := c.HandleSendme(time.Now(), []byte("0123456789abcdef"), Signals{})
	require.Error(t, err)
	assert.True(t, circerr.IsProtocol(err))
}

func TestControllerAcceptsMatchingTag(t *testing.T) {
	t0 := time.Unix(100, 0)
	tag := []byte("0123456789abcdef")
	c := NewController(config.Defaults().Congestion, false)
	sendToFirstPoint(t, c, t0, tag)
	assert.Equal(t, uint32(31), c.Snapshot().Inflight)

	require.NoError(t, c.HandleSendme(t0.Add(50*time.Millisecond), tag, Signals{}))
	snap := c.Snapshot()
	assert.Equal(t, uint32(0), snap.Inflight)
	assert.Equal(t, 50*time.Millisecond, snap.EWMARTT)
	assert.Equal(t, 50*time.Millisecond, snap.MinRTT)
	assert.Equal(t, SlowStart, snap.State)
}

func TestControllerReceiveCadence(t *testing.T) {
	c := NewController(config.Defaults().Congestion, false)
	owed := 0
	for i := 0; i < 93; i++ {
		if c.NoteDataReceived() {
			owed++
		}
	}
	assert.Equal(t, 3, owed)

	cfg := config.Defaults().Congestion
	cfg.Algorithm = config.AlgorithmFixedWindow
	c = NewController(cfg, false)
	owed = 0
	for i := 0; i < 250; i++ {
		if c.NoteDataReceived() {
			owed++
		}
	}
	assert.Equal(t, 2, owed)
}

func TestControllerWindowBlocksSending(t *testing.T) {
	c := NewController(config.Defaults().Congestion, false)
	sent := 0
	for c.CanSend() {
		c.NoteDataSent()
		sent++
	}
	assert.Equal(t, 124, sent)
}
