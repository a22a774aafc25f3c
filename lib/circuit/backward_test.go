package circuit

import (
	"context"
	"testing"
	"time"

	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/layer"
	"github.com/go-i2p/go-circuit/lib/link"
	"github.com/go-i2p/go-circuit/lib/padding"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend hands out canned padding actions once.
type scriptedBackend struct {
	actions []padding.MachineAction
}

func (b *scriptedBackend) ReportEvents(time.Time, []padding.TriggerEvent) {}

func (b *scriptedBackend) TakeDueActions(time.Time) []padding.MachineAction {
	a := b.actions
	b.actions = nil
	return a
}

func (b *scriptedBackend) NextWakeup() time.Time { return time.Time{} }

func testBackward(t *testing.T, cfg config.ConfigDefaults) (*backward, *link.End) {
	t.Helper()
	crypto := layer.NewClientLayers()
	_, err := crypto.AddHop(hopKeys(t, 1)[0])
	require.NoError(t, err)
	near, far := link.Pipe(16)
	t.Cleanup(func() { _ = near.Close() })
	b := &backward{
		cfg:    cfg,
		hops:   testHopList(t, cfg, 1),
		crypto: crypto,
		sink:   near,
		pad:    padding.NewController(),
	}
	return b, far
}

func dataOffer(body string) (readyMsg, chan bool) {
	claimed := make(chan bool, 1)
	return readyMsg{hop: 0, msg: relay.NewData(1, []byte(body)), claimed: claimed}, claimed
}

func TestBackwardRefusesDataOnceBlockStarts(t *testing.T) {
	ctx := context.Background()
	b, _ := testBackward(t, config.Defaults())
	require.True(t, b.hops.canSendData(0))
	rm, claimed := dataOffer("x")

	now := time.Now()
	b.pad.SetBackend(now, 0, &scriptedBackend{actions: []padding.MachineAction{{Kind: padding.StartBlocking}}})
	require.NoError(t, b.runPadding(ctx, now))

	sent, err := b.takeReady(ctx, now, rm, false)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.False(t, <-claimed)
	assert.Zero(t, b.sink.QueueLen())

	snap, err := b.hops.Snapshot(0)
	require.NoError(t, err)
	assert.Zero(t, snap.Inflight)
}

func TestBackwardRefusesDataPastWindow(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	cfg.Congestion.Algorithm = config.AlgorithmFixedWindow
	cfg.Congestion.Fixed.CircWindowStart = 2
	cfg.Congestion.Fixed.CircWindowInc = 2
	b, _ := testBackward(t, cfg)

	// Three offers built while the window still looked open.
	for i, want := range []bool{true, true, false} {
		rm, claimed := dataOffer("x")
		sent, err := b.takeReady(ctx, time.Now(), rm, false)
		require.NoError(t, err)
		assert.Equal(t, want, sent, "offer %d", i)
		assert.Equal(t, want, <-claimed, "offer %d", i)
	}
	assert.Equal(t, uint32(2), b.sink.QueueLen())
}

func TestBackwardAcceptsControlWhileBlocked(t *testing.T) {
	ctx := context.Background()
	b, _ := testBackward(t, config.Defaults())
	b.hops.setBlocking(0, true)

	claimed := make(chan bool, 1)
	rm := readyMsg{hop: 0, msg: relay.NewEnd(1, relay.EndReasonDone), pending: true, claimed: claimed}
	sent, err := b.takeReady(ctx, time.Now(), rm, false)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.True(t, <-claimed)
}
