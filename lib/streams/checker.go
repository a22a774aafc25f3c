package streams

import (
	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
)

// Status tells whether a stream is still open after a message.
type Status int

const (
	StatusOpen Status = iota
	StatusClosed
)

// CmdChecker validates the commands arriving on a stream against where the
// stream is in its lifecycle.
type CmdChecker interface {
	// Check validates msg and reports whether it closes the stream.
	Check(msg relay.Msg) (Status, error)
}

// DataChecker is the checker of a stream opened with BEGIN: the peer must
// answer with CONNECTED (or END) before sending data.
type DataChecker struct {
	connected bool
}

// NewDataChecker returns a checker for a stream awaiting CONNECTED.
func NewDataChecker() *DataChecker { return &DataChecker{} }

// NewConnectedChecker returns a checker for a stream already connected.
func NewConnectedChecker() *DataChecker { return &DataChecker{connected: true} }

func (c *DataChecker) Check(msg relay.Msg) (Status, error) {
	switch msg.Cmd {
	case relay.CmdEnd:
		return StatusClosed, nil
	case relay.CmdConnected:
		if c.connected {
			return StatusOpen, circerr.Protocolf("streams", "duplicate CONNECTED on stream %s", msg.StreamID)
		}
		c.connected = true
		return StatusOpen, nil
	case relay.CmdData, relay.CmdSendme, relay.CmdXon, relay.CmdXoff:
		if !c.connected {
			return StatusOpen, circerr.Protocolf("streams", "%s before CONNECTED on stream %s", msg.Cmd, msg.StreamID)
		}
		return StatusOpen, nil
	default:
		return StatusOpen, circerr.Protocolf("streams", "unexpected %s on data stream %s", msg.Cmd, msg.StreamID)
	}
}

// ResolveChecker is the checker of a RESOLVE stream: one RESOLVED or an END
// closes it and nothing else is allowed.
type ResolveChecker struct{}

func (ResolveChecker) Check(msg relay.Msg) (Status, error) {
	switch msg.Cmd {
	case relay.CmdResolved, relay.CmdEnd:
		return StatusClosed, nil
	default:
		return StatusOpen, circerr.Protocolf("streams", "unexpected %s on resolve stream %s", msg.Cmd, msg.StreamID)
	}
}
