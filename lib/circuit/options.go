package circuit

import (
	"context"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/layer"
	"github.com/go-i2p/go-circuit/lib/relay"
)

// Crypto adds, seals and opens the layers of the hops of a circuit. Seal is
// only called by the backward reactor and Open by the forward reactor.
// layer.ClientLayers implements it.
type Crypto interface {
	AddHop(k layer.Keys) (relay.HopNum, error)
	Seal(hop relay.HopNum, cell relay.Cell) ([]byte, error)
	Open(cell relay.Cell) (relay.HopNum, []byte, error)
}

// Sink is the outbound side of the link to the first hop. Blocked reports
// whether Send would wait; Writable is signalled when that may have changed.
type Sink interface {
	Send(ctx context.Context, cell relay.Cell) error
	Blocked() bool
	QueueLen() uint32
	Writable() <-chan struct{}
}

// Source is the inbound side of the link to the first hop.
type Source interface {
	Recv(ctx context.Context) (relay.Cell, error)
}

// MsgHandler receives circuit-level messages that are neither SENDME nor
// DROP. An error tears the circuit down.
type MsgHandler func(hop relay.HopNum, msg relay.Msg) error

// RejectCircuitMsgs is the default MsgHandler: a client expects nothing else
// on stream 0.
func RejectCircuitMsgs(hop relay.HopNum, msg relay.Msg) error {
	return circerr.Protocolf("circuit", "unexpected %s from %s", msg.Cmd, hop)
}

// Options configures a Reactor.
type Options struct {
	Config  config.ConfigDefaults
	Crypto  Crypto
	Sink    Sink
	Source  Source
	Handler MsgHandler
}

func (o *Options) check() error {
	if o.Crypto == nil || o.Sink == nil || o.Source == nil {
		return circerr.Bugf("circuit", "reactor needs crypto, sink and source")
	}
	if o.Handler == nil {
		o.Handler = RejectCircuitMsgs
	}
	return config.Validate(o.Config)
}
