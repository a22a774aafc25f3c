// Package flowctrl implements per-stream flow control.
//
// Hops running Vegas use XON/XOFF: the receiver of a stream tells the sender
// to pause (XOFF) when its buffer grows past a threshold and to resume at an
// advisory rate (XON) once it drains. Hops running the fixed window use the
// legacy per-stream SENDME window instead.
//
// Client-side circuits additionally run a Sidechannel check that rejects
// XON/XOFF messages arriving implausibly early or often, since their timing
// can otherwise be used to mark a circuit (the dropmark attack).
package flowctrl
