package flowctrl

import (
	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Sidechannel checks that XON/XOFF messages from the peer are plausible given
// how much data we actually sent on the stream.
//
// The rules are looser than the strict timing rules peers are expected to
// follow:
//   - an XOFF is rejected until we have sent at least the XOFF limit in bytes,
//   - two XOFFs in a row with no XON between them are rejected,
//   - an XON is rejected unless at least the XON rate in bytes was sent since
//     the previous XON/XOFF, except when it directly follows an XOFF.
type Sidechannel struct {
	xoffLimit uint64
	xonRate   uint64

	sent      uint64
	sinceLast uint64
	last      relay.Command
}

// NewSidechannel builds the check from the flow control parameters. The
// peer may apply either the client or the exit XOFF limit, so the smaller one
// bounds how early a legitimate XOFF can arrive.
func NewSidechannel(cfg config.FlowControlDefaults) *Sidechannel {
	return &Sidechannel{
		xoffLimit: min(cfg.XoffClientBytes(), cfg.XoffExitBytes()),
		xonRate:   cfg.XonRateBytes(),
	}
}

// SentBytes records n payload bytes sent on the stream.
func (s *Sidechannel) SentBytes(n int) {
	s.sent += uint64(n)
	s.sinceLast += uint64(n)
}

// ReceivedXoff validates an incoming XOFF.
func (s *Sidechannel) ReceivedXoff() error {
	if s.sent < s.xoffLimit {
		return s.reject("xoff_too_early", "XOFF after only %d of %d bytes sent", s.sent, s.xoffLimit)
	}
	if s.last == relay.CmdXoff {
		return s.reject("xoff_repeated", "XOFF received twice without an XON")
	}
	s.last = relay.CmdXoff
	s.sinceLast = 0
	return nil
}

// ReceivedXon validates an incoming XON.
func (s *Sidechannel) ReceivedXon() error {
	if s.last != relay.CmdXoff && s.sinceLast < s.xonRate {
		return s.reject("xon_too_frequent", "XON after only %d of %d bytes since last update", s.sinceLast, s.xonRate)
	}
	s.last = relay.CmdXon
	s.sinceLast = 0
	return nil
}

func (s *Sidechannel) reject(reason, format string, args ...any) error {
	log.WithFields(logger.Fields{
		"at":         "Sidechannel.reject",
		"reason":     reason,
		"bytes_sent": s.sent,
	}).Warn("implausible flow control message from peer")
	return circerr.Protocolf("flowctrl", format, args...)
}
