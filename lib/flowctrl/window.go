package flowctrl

import (
	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
)

// Window is the legacy per-stream SENDME window used on fixed-window hops.
// The package window limits what we send; the deliver window limits what the
// peer may send us before we acknowledge it.
type Window struct {
	start   uint32
	inc     uint32
	pkg     uint32
	deliver uint32
}

// NewWindow returns full windows sized from cfg.
func NewWindow(cfg config.FixedWindowDefaults) *Window {
	return &Window{
		start:   cfg.StreamWindowStart,
		inc:     cfg.StreamWindowInc,
		pkg:     cfg.StreamWindowStart,
		deliver: cfg.StreamWindowStart,
	}
}

// CanSend reports whether the package window has room.
func (w *Window) CanSend() bool { return w.pkg > 0 }

// NoteDataSent consumes one cell of package window.
func (w *Window) NoteDataSent() {
	if w.pkg > 0 {
		w.pkg--
	}
}

// HandleSendme reopens the package window by one increment.
func (w *Window) HandleSendme() error {
	if uint64(w.pkg)+uint64(w.inc) > uint64(w.start) {
		return circerr.Protocolf("flowctrl", "unexpected stream SENDME: window %d would exceed %d", w.pkg+w.inc, w.start)
	}
	w.pkg += w.inc
	return nil
}

// NoteDataReceived consumes one cell of deliver window. A peer that sends
// past the window commits a protocol violation.
func (w *Window) NoteDataReceived() error {
	return w.Consume(1)
}

// Consume takes n cells of deliver window at once.
func (w *Window) Consume(n uint32) error {
	if n > w.deliver {
		return circerr.Protocolf("flowctrl", "peer exceeded stream window by %d cells", n-w.deliver)
	}
	w.deliver -= n
	return nil
}

// NoteDataDelivered reports whether, after cells were handed to the
// application, a stream SENDME is owed. Sending it reopens the deliver
// window by one increment.
func (w *Window) NoteDataDelivered() bool {
	if w.start-w.deliver < w.inc {
		return false
	}
	w.deliver += w.inc
	return true
}

// Package returns the remaining package window.
func (w *Window) Package() uint32 { return w.pkg }

// Deliver returns the remaining deliver window.
func (w *Window) Deliver() uint32 { return w.deliver }
