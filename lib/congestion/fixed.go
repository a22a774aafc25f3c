package congestion

import "github.com/go-i2p/go-circuit/lib/circerr"

// FixedWindow is the legacy SENDME window algorithm: a package window that
// starts at a fixed size, shrinks by one per DATA cell, and grows by one
// increment per SENDME. It never adapts to the path.
type FixedWindow struct {
	start   uint32
	inc     uint32
	window  uint32
	cadence sendmeCadence
}

// NewFixedWindow returns a full window of start cells acknowledged in steps
// of inc.
func NewFixedWindow(start, inc uint32) *FixedWindow {
	return &FixedWindow{
		start:   start,
		inc:     inc,
		window:  start,
		cadence: sendmeCadence{every: inc},
	}
}

func (f *FixedWindow) UsesStreamSendme() bool { return true }

func (f *FixedWindow) UsesXonXoff() bool { return false }

func (f *FixedWindow) CanSend() bool { return f.window > 0 }

func (f *FixedWindow) IsNextCellSendme() bool { return f.cadence.next() }

func (f *FixedWindow) OnDataSent() {
	if f.window > 0 {
		f.window--
	}
	f.cadence.sent()
}

func (f *FixedWindow) Inflight() uint32 { return f.start - f.window }

func (f *FixedWindow) Cwnd() *CongestionWindow { return nil }

// Window returns the remaining package window.
func (f *FixedWindow) Window() uint32 { return f.window }

// OnSendmeReceived reopens the window by one increment. A SENDME that would
// push the window past its starting size acknowledges cells never sent.
func (f *FixedWindow) OnSendmeReceived(_ *State, _ *RTTEstimator, _ Signals) error {
	if uint64(f.window)+uint64(f.inc) > uint64(f.start) {
		return circerr.Protocolf("congestion", "unexpected SENDME: window %d would exceed %d", f.window+f.inc, f.start)
	}
	f.window += f.inc
	return nil
}
