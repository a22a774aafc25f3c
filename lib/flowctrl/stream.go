package flowctrl

import (
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/relay"
)

// Stream is the flow control of one stream. Exactly one of the SENDME window
// and XON/XOFF is active, chosen from the hop's congestion control algorithm.
type Stream struct {
	window *Window
	xon    *XonXoff
}

// NewStream returns the flow control for a new stream. useSendme selects the
// legacy window; otherwise XON/XOFF is used.
func NewStream(cfg config.ConfigDefaults, useSendme, clientSide bool) *Stream {
	if useSendme {
		return &Stream{window: NewWindow(cfg.Congestion.Fixed)}
	}
	return &Stream{xon: NewXonXoff(cfg.FlowControl, clientSide)}
}

// Window returns the SENDME window, or nil under XON/XOFF.
func (s *Stream) Window() *Window { return s.window }

// XonXoff returns the XON/XOFF state, or nil under the SENDME window.
func (s *Stream) XonXoff() *XonXoff { return s.xon }

// CanSend reports whether a DATA message of n bytes may leave at now.
func (s *Stream) CanSend(now time.Time, n int) bool {
	if s.window != nil {
		return s.window.CanSend()
	}
	return s.xon.CanSend(now, n)
}

// ReadyAt returns when a DATA message of n bytes may leave, or the zero time
// when only a message from the peer can unblock the stream.
func (s *Stream) ReadyAt(now time.Time, n int) time.Time {
	if s.window != nil {
		if s.window.CanSend() {
			return now
		}
		return time.Time{}
	}
	return s.xon.ReadyAt(now, n)
}

// NoteDataSent records a DATA message of n bytes sent at now.
func (s *Stream) NoteDataSent(now time.Time, n int) {
	if s.window != nil {
		s.window.NoteDataSent()
		return
	}
	s.xon.NoteDataSent(now, n)
}

// HandleMsg applies a stream SENDME, XON or XOFF from the peer. A message of
// the flavour not in use on this stream is a protocol violation.
func (s *Stream) HandleMsg(msg relay.Msg) error {
	switch msg.Cmd {
	case relay.CmdSendme:
		if s.window == nil {
			return circerr.Protocolf("flowctrl", "stream SENDME on a stream using XON/XOFF")
		}
		return s.window.HandleSendme()
	case relay.CmdXon:
		if s.xon == nil {
			return circerr.Protocolf("flowctrl", "XON on a stream using SENDME windows")
		}
		r, err := relay.ParseXon(msg.Body)
		if err != nil {
			return err
		}
		return s.xon.HandleXon(r)
	case relay.CmdXoff:
		if s.xon == nil {
			return circerr.Protocolf("flowctrl", "XOFF on a stream using SENDME windows")
		}
		if err := relay.ParseXoff(msg.Body); err != nil {
			return err
		}
		return s.xon.HandleXoff()
	default:
		return circerr.Bugf("flowctrl", "%s is not a flow control message", msg.Cmd)
	}
}
