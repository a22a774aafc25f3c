package padding

import (
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
)

// TriggerKind is the kind of an event fed to padding machines.
type TriggerKind int

const (
	NormalSent TriggerKind = iota
	NormalRecv
	PaddingSent
	PaddingRecv
	BlockingBegin
	BlockingEnd
	TimerBegin
	TimerEnd
	LimitReached
)

var triggerNames = [...]string{
	NormalSent:    "normal_sent",
	NormalRecv:    "normal_recv",
	PaddingSent:   "padding_sent",
	PaddingRecv:   "padding_recv",
	BlockingBegin: "blocking_begin",
	BlockingEnd:   "blocking_end",
	TimerBegin:    "timer_begin",
	TimerEnd:      "timer_end",
	LimitReached:  "limit_reached",
}

func (k TriggerKind) String() string {
	if int(k) < len(triggerNames) {
		return triggerNames[k]
	}
	return "unknown"
}

// AllMachines addresses a trigger event to every machine of a hop.
const AllMachines = -1

// TriggerEvent is an event delivered to the machines of a hop. Timer and
// limit events concern a single machine.
type TriggerEvent struct {
	Kind    TriggerKind
	Machine int
}

// Broadcast returns an event for every machine.
func Broadcast(k TriggerKind) TriggerEvent {
	return TriggerEvent{Kind: k, Machine: AllMachines}
}

// ActionKind is what entering a state does.
type ActionKind int

const (
	// ActionPadding schedules a padding cell after Timeout.
	ActionPadding ActionKind = iota + 1
	// ActionBlock schedules blocking for Duration after Timeout.
	ActionBlock
	// ActionCancel cancels the pending action, or the internal timer when
	// CancelTimer is set.
	ActionCancel
	// ActionUpdateTimer sets the machine's internal timer to Duration.
	ActionUpdateTimer
)

// ActionSpec is the action attached to a state.
type ActionSpec struct {
	Kind ActionKind

	// Bypass lets padding cross, or blocking be crossed by, bypass padding.
	Bypass bool
	// Replace lets queued data take the place of the padding cell.
	Replace bool

	Timeout  Dist
	Duration Dist

	CancelTimer bool
}

// StateEnd is the transition target that stops a machine.
const StateEnd = -1

// Transition moves to To with the given probability.
type Transition struct {
	To          int
	Probability float64
}

// State is one state of a machine. A state without an action only waits
// for events.
type State struct {
	Action *ActionSpec
	Next   map[TriggerKind][]Transition
}

// Machine is a padding state machine. Execution starts in state 0.
type Machine struct {
	Name   string
	States []State

	// AllowedPadding caps the padding cells the machine may send; 0 means
	// no cap. Once reached the machine gets a LimitReached event instead.
	AllowedPadding uint64
}

// Validate checks that every transition targets a real state and that
// each event's probabilities sum to at most one.
func (m *Machine) Validate() error {
	if len(m.States) == 0 {
		return circerr.Bugf("padding", "machine %q has no states", m.Name)
	}
	for i, st := range m.States {
		for kind, ts := range st.Next {
			sum := 0.0
			for _, t := range ts {
				if t.To != StateEnd && (t.To < 0 || t.To >= len(m.States)) {
					return circerr.Bugf("padding", "machine %q state %d: %s transition to missing state %d", m.Name, i, kind, t.To)
				}
				if t.Probability < 0 {
					return circerr.Bugf("padding", "machine %q state %d: negative probability", m.Name, i)
				}
				sum += t.Probability
			}
			if sum > 1.0000001 {
				return circerr.Bugf("padding", "machine %q state %d: %s probabilities sum to %f", m.Name, i, kind, sum)
			}
		}
	}
	return nil
}

// KeepaliveMachine sends one padding cell whenever the hop has been idle
// for idle. Real traffic pushes the padding back.
func KeepaliveMachine(idle time.Duration) *Machine {
	traffic := []Transition{{To: 1, Probability: 1}}
	return &Machine{
		Name: "keepalive",
		States: []State{
			{Next: map[TriggerKind][]Transition{NormalSent: traffic, NormalRecv: traffic}},
			{
				Action: &ActionSpec{Kind: ActionPadding, Timeout: Fixed(idle), Replace: true},
				Next: map[TriggerKind][]Transition{
					NormalSent:  traffic,
					NormalRecv:  traffic,
					PaddingSent: {{To: 0, Probability: 1}},
				},
			},
		},
	}
}
