package streams

import (
	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/flowctrl"
	"github.com/go-i2p/go-circuit/lib/relay"
)

// HalfStream is what remains of a stream we closed while waiting for the
// peer's END. It still enforces the command checker and, on SENDME-window
// hops, the receive window.
type HalfStream struct {
	checker CmdChecker
	window  *flowctrl.Window
}

// NewHalfStream keeps checker and window (nil under XON/XOFF).
func NewHalfStream(checker CmdChecker, window *flowctrl.Window) *HalfStream {
	return &HalfStream{checker: checker, window: window}
}

// Handle validates a message arriving after we closed the stream and
// reports whether it was the peer's END.
func (h *HalfStream) Handle(msg relay.Msg) (Status, error) {
	status, err := h.checker.Check(msg)
	if err != nil {
		return status, err
	}
	switch msg.Cmd {
	case relay.CmdData:
		if h.window != nil {
			if err := h.window.NoteDataReceived(); err != nil {
				return StatusOpen, err
			}
		}
	case relay.CmdSendme:
		if h.window != nil {
			if err := h.window.HandleSendme(); err != nil {
				return StatusOpen, err
			}
		}
	case relay.CmdXon:
		if _, err := relay.ParseXon(msg.Body); err != nil {
			return StatusOpen, err
		}
	case relay.CmdXoff:
		if err := relay.ParseXoff(msg.Body); err != nil {
			return StatusOpen, err
		}
	case relay.CmdConnected, relay.CmdEnd, relay.CmdResolved:
	default:
		return StatusOpen, circerr.Bugf("streams", "checker accepted %s on a half-closed stream", msg.Cmd)
	}
	return status, nil
}
