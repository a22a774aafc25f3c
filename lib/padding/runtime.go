package padding

import (
	"time"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Backend is the padding logic of one hop.
type Backend interface {
	// ReportEvents feeds trigger events observed at now.
	ReportEvents(now time.Time, events []TriggerEvent)
	// TakeDueActions returns the actions whose time has come by now.
	TakeDueActions(now time.Time) []MachineAction
	// NextWakeup returns when TakeDueActions next has work, or the zero
	// time when nothing is scheduled.
	NextWakeup() time.Time
}

// MachineActionKind is an action a backend asks the circuit to carry out.
type MachineActionKind int

const (
	SendPadding MachineActionKind = iota
	StartBlocking
	StopBlocking
)

func (k MachineActionKind) String() string {
	switch k {
	case SendPadding:
		return "send_padding"
	case StartBlocking:
		return "start_blocking"
	default:
		return "stop_blocking"
	}
}

// MachineAction is a due action.
type MachineAction struct {
	Kind    MachineActionKind
	Machine int
	Bypass  bool
	Replace bool
}

type pendingAction struct {
	kind     ActionKind
	at       time.Time
	bypass   bool
	replace  bool
	duration time.Duration
}

type machineRuntime struct {
	m       *Machine
	state   int
	padding uint64
	action  *pendingAction
	timerAt time.Time
}

// Runtime runs the machines of one hop. It implements Backend.
type Runtime struct {
	hop      relay.HopNum
	machines []*machineRuntime
	maxIter  int

	blockedUntil time.Time
}

var _ Backend = (*Runtime)(nil)

// NewRuntime validates machines and starts each one in state 0.
func NewRuntime(hop relay.HopNum, machines []*Machine, cfg config.PaddingDefaults) (*Runtime, error) {
	if len(machines) > cfg.MaxMachinesPerHop {
		return nil, circerr.Bugf("padding", "%d machines on %s, at most %d allowed", len(machines), hop, cfg.MaxMachinesPerHop)
	}
	r := &Runtime{hop: hop, maxIter: cfg.MaxCascadeIterations}
	for _, m := range machines {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		r.machines = append(r.machines, &machineRuntime{m: m})
	}
	return r, nil
}

// ReportEvents feeds events and any follow-on events they cause.
func (r *Runtime) ReportEvents(now time.Time, events []TriggerEvent) {
	budget := r.maxIter
	r.process(now, events, &budget)
}

// TakeDueActions fires expired timers and returns the actions due by now.
func (r *Runtime) TakeDueActions(now time.Time) []MachineAction {
	var out []MachineAction
	budget := r.maxIter
	for {
		progressed := false

		if !r.blockedUntil.IsZero() && !now.Before(r.blockedUntil) {
			r.blockedUntil = time.Time{}
			out = append(out, MachineAction{Kind: StopBlocking, Machine: AllMachines})
			r.process(now, []TriggerEvent{Broadcast(BlockingEnd)}, &budget)
			progressed = true
		}

		for i, mr := range r.machines {
			if !mr.timerAt.IsZero() && !now.Before(mr.timerAt) {
				mr.timerAt = time.Time{}
				r.process(now, []TriggerEvent{{Kind: TimerEnd, Machine: i}}, &budget)
				progressed = true
			}
		}

		for i, mr := range r.machines {
			a := mr.action
			if a == nil || now.Before(a.at) {
				continue
			}
			mr.action = nil
			progressed = true
			switch a.kind {
			case ActionPadding:
				mr.padding++
				out = append(out, MachineAction{Kind: SendPadding, Machine: i, Bypass: a.bypass, Replace: a.replace})
			case ActionBlock:
				until := now.Add(a.duration)
				if until.After(r.blockedUntil) {
					r.blockedUntil = until
				}
				out = append(out, MachineAction{Kind: StartBlocking, Machine: i, Bypass: a.bypass})
				r.process(now, []TriggerEvent{Broadcast(BlockingBegin)}, &budget)
			}
		}

		if !progressed || budget <= 0 {
			break
		}
	}
	return out
}

// NextWakeup returns the earliest pending action, timer or block expiry.
func (r *Runtime) NextWakeup() time.Time {
	earliest := r.blockedUntil
	consider := func(t time.Time) {
		if !t.IsZero() && (earliest.IsZero() || t.Before(earliest)) {
			earliest = t
		}
	}
	for _, mr := range r.machines {
		consider(mr.timerAt)
		if mr.action != nil {
			consider(mr.action.at)
		}
	}
	return earliest
}

// process delivers events, and the events they cause, until the queue is
// empty or budget runs out. Running out leaves some machines behind.
func (r *Runtime) process(now time.Time, events []TriggerEvent, budget *int) {
	queue := append([]TriggerEvent(nil), events...)
	for len(queue) > 0 {
		if *budget <= 0 {
			log.WithFields(logger.Fields{
				"at":      "Runtime.process",
				"reason":  "cascade_limit_reached",
				"hop":     r.hop.String(),
				"dropped": len(queue),
			}).Warn("padding event cascade cut short")
			return
		}
		*budget--
		ev := queue[0]
		queue = queue[1:]
		for i, mr := range r.machines {
			if ev.Machine != AllMachines && ev.Machine != i {
				continue
			}
			queue = append(queue, r.transition(now, i, mr, ev.Kind)...)
		}
	}
}

func (r *Runtime) transition(now time.Time, idx int, mr *machineRuntime, kind TriggerKind) []TriggerEvent {
	if mr.state == StateEnd {
		return nil
	}
	ts := mr.m.States[mr.state].Next[kind]
	if len(ts) == 0 {
		return nil
	}
	draw := rand.Float64()
	acc := 0.0
	for _, t := range ts {
		acc += t.Probability
		if draw < acc {
			return r.enter(now, idx, mr, t.To)
		}
	}
	return nil
}

func (r *Runtime) enter(now time.Time, idx int, mr *machineRuntime, to int) []TriggerEvent {
	if to == StateEnd {
		mr.state = StateEnd
		mr.action = nil
		mr.timerAt = time.Time{}
		return nil
	}
	mr.state = to
	act := mr.m.States[to].Action
	if act == nil {
		return nil
	}
	switch act.Kind {
	case ActionCancel:
		if act.CancelTimer {
			mr.timerAt = time.Time{}
		} else {
			mr.action = nil
		}
	case ActionUpdateTimer:
		mr.timerAt = now.Add(act.Duration.Sample())
		return []TriggerEvent{{Kind: TimerBegin, Machine: idx}}
	case ActionPadding:
		if mr.m.AllowedPadding > 0 && mr.padding >= mr.m.AllowedPadding {
			return []TriggerEvent{{Kind: LimitReached, Machine: idx}}
		}
		r.schedule(mr, &pendingAction{kind: ActionPadding, at: now.Add(act.Timeout.Sample()), bypass: act.Bypass, replace: act.Replace})
	case ActionBlock:
		r.schedule(mr, &pendingAction{kind: ActionBlock, at: now.Add(act.Timeout.Sample()), bypass: act.Bypass, duration: act.Duration.Sample()})
	}
	return nil
}

// schedule sets the machine's single action slot, replacing whatever was
// pending there.
func (r *Runtime) schedule(mr *machineRuntime, a *pendingAction) {
	mr.action = a
}
