package padding

import (
	"testing"
	"time"

	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBackend records events and hands out canned actions.
type recordingBackend struct {
	events  []TriggerKind
	actions []MachineAction
	wakeup  time.Time
}

func (b *recordingBackend) ReportEvents(_ time.Time, events []TriggerEvent) {
	for _, e := range events {
		b.events = append(b.events, e.Kind)
	}
}

func (b *recordingBackend) TakeDueActions(time.Time) []MachineAction {
	a := b.actions
	b.actions = nil
	return a
}

func (b *recordingBackend) NextWakeup() time.Time { return b.wakeup }

func TestControllerReportsUpToHop(t *testing.T) {
	c := NewController()
	now := time.Now()
	b0, b1, b2 := &recordingBackend{}, &recordingBackend{}, &recordingBackend{}
	c.SetBackend(now, 0, b0)
	c.SetBackend(now, 1, b1)
	c.SetBackend(now, 2, b2)

	c.ReportSent(now, 1)
	assert.Equal(t, []TriggerKind{NormalSent}, b0.events)
	assert.Equal(t, []TriggerKind{NormalSent}, b1.events)
	assert.Empty(t, b2.events)

	c.ReportPaddingSent(now, 2)
	assert.Equal(t, []TriggerKind{NormalSent, NormalSent}, b0.events)
	assert.Equal(t, []TriggerKind{NormalSent, PaddingSent}, b2.events)

	c.ReportPaddingReplaced(now, 0)
	assert.Equal(t, []TriggerKind{NormalSent, NormalSent, NormalSent, PaddingSent}, b0.events)

	c.ReportReceived(now, 0)
	c.ReportPaddingReceived(now, 0)
	assert.Equal(t, []TriggerKind{NormalRecv, PaddingRecv}, b0.events[4:])
}

func TestControllerBlockingBoundary(t *testing.T) {
	c := NewController()
	now := time.Now()
	b1, b2 := &recordingBackend{}, &recordingBackend{}
	c.SetBackend(now, 1, b1)
	c.SetBackend(now, 2, b2)

	_, _, ok := c.BlockingBoundary()
	assert.False(t, ok)

	b2.actions = []MachineAction{{Kind: StartBlocking, Bypass: true}}
	events := c.Next(now)
	require.Len(t, events, 1)
	assert.Equal(t, EventStartBlocking, events[0].Kind)
	assert.Equal(t, relay.HopNum(2), events[0].Hop)
	assert.True(t, events[0].Bypassable)

	b1.actions = []MachineAction{{Kind: StartBlocking}}
	c.Next(now)
	hop, bypassable, ok := c.BlockingBoundary()
	require.True(t, ok)
	assert.Equal(t, relay.HopNum(1), hop)
	assert.False(t, bypassable)

	assert.False(t, c.Blocked(0, false))
	assert.True(t, c.Blocked(1, false))
	assert.True(t, c.Blocked(2, true), "hop 1's block is not bypassable")

	b1.actions = []MachineAction{{Kind: StopBlocking}}
	c.Next(now)
	hop, bypassable, ok = c.BlockingBoundary()
	require.True(t, ok)
	assert.Equal(t, relay.HopNum(2), hop)
	assert.True(t, bypassable)
	assert.False(t, c.Blocked(2, true))
	assert.True(t, c.Blocked(2, false))

	c.SetBackend(now, 2, nil)
	_, _, ok = c.BlockingBoundary()
	assert.False(t, ok)
}

func TestControllerSendPaddingAndTimer(t *testing.T) {
	c := NewController()
	now := time.Now()
	rt, err := NewRuntime(0, []*Machine{KeepaliveMachine(20 * time.Millisecond)}, config.Defaults().Padding)
	require.NoError(t, err)
	c.SetBackend(now, 0, rt)
	assert.True(t, c.Timer().Deadline().IsZero())

	c.ReportSent(now, 0)
	deadline := c.Timer().Deadline()
	assert.Equal(t, now.Add(20*time.Millisecond), deadline)

	select {
	case <-c.Timer().Chan():
	case <-time.After(2 * time.Second):
		t.Fatal("padding timer did not fire")
	}
	events := c.Next(deadline)
	require.Len(t, events, 1)
	assert.Equal(t, EventSendPadding, events[0].Kind)
	assert.True(t, events[0].Replace)
	assert.True(t, c.Timer().Deadline().IsZero())
}

// blockAfter blocks for an hour once data has been sent, after timeout.
func blockAfter(name string, timeout time.Duration, bypass bool) *Machine {
	return &Machine{
		Name: name,
		States: []State{
			{Next: map[TriggerKind][]Transition{NormalSent: always(1)}},
			{Action: &ActionSpec{Kind: ActionBlock, Timeout: Fixed(timeout), Duration: Fixed(time.Hour), Bypass: bypass}},
		},
	}
}

func TestControllerStrictBlockOutlivesBypassableBlock(t *testing.T) {
	c := NewController()
	now := time.Unix(100, 0)
	rt, err := NewRuntime(0, []*Machine{
		blockAfter("strict", time.Second, false),
		blockAfter("loose", 2*time.Second, true),
	}, config.Defaults().Padding)
	require.NoError(t, err)
	c.SetBackend(now, 0, rt)
	c.ReportSent(now, 0)

	events := c.Next(now.Add(time.Second))
	require.Len(t, events, 1)
	assert.False(t, events[0].Bypassable)

	events = c.Next(now.Add(2 * time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, EventStartBlocking, events[0].Kind)
	assert.False(t, events[0].Bypassable, "the strict block is still in force")

	_, bypassable, ok := c.BlockingBoundary()
	require.True(t, ok)
	assert.False(t, bypassable)
	assert.True(t, c.Blocked(0, true))
}

func TestControllerBypassableOnlyWhileEveryBlockIs(t *testing.T) {
	c := NewController()
	now := time.Now()
	b := &recordingBackend{}
	c.SetBackend(now, 0, b)

	b.actions = []MachineAction{{Kind: StartBlocking, Bypass: true}, {Kind: StartBlocking, Machine: 1, Bypass: true}}
	c.Next(now)
	assert.False(t, c.Blocked(0, true))

	b.actions = []MachineAction{{Kind: StartBlocking, Machine: 2}}
	c.Next(now)
	assert.True(t, c.Blocked(0, true))

	b.actions = []MachineAction{{Kind: StartBlocking, Bypass: true}}
	c.Next(now)
	assert.True(t, c.Blocked(0, true), "a later bypassable block does not loosen a strict one")

	b.actions = []MachineAction{{Kind: StopBlocking, Machine: AllMachines}}
	c.Next(now)
	assert.False(t, c.Blocked(0, false))

	b.actions = []MachineAction{{Kind: StartBlocking, Bypass: true}}
	c.Next(now)
	assert.False(t, c.Blocked(0, true), "a fresh block period starts bypassable")
	assert.True(t, c.Blocked(0, false))
}
