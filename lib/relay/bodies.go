package relay

import (
	"encoding/binary"

	"github.com/go-i2p/go-circuit/lib/circerr"
)

const (
	sendmeVersion0 = 0
	sendmeVersion1 = 1

	// flowCtrlVersion is the only XON/XOFF body version.
	flowCtrlVersion = 0
)

// NewSendme builds a circuit- or stream-level SENDME. A nil tag yields a
// version 0 (unauthenticated) body; otherwise a version 1 body carrying tag.
func NewSendme(id StreamID, tag []byte) Msg {
	if tag == nil {
		return Msg{Cmd: CmdSendme, StreamID: id}
	}
	body := make([]byte, 3+len(tag))
	body[0] = sendmeVersion1
	binary.BigEndian.PutUint16(body[1:3], uint16(len(tag)))
	copy(body[3:], tag)
	return Msg{Cmd: CmdSendme, StreamID: id, Body: body}
}

// ParseSendme returns the authentication tag carried by a SENDME body, or nil
// for a version 0 body.
func ParseSendme(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}
	switch body[0] {
	case sendmeVersion0:
		return nil, nil
	case sendmeVersion1:
		if len(body) < 3 {
			return nil, circerr.Protocolf("relay", "truncated SENDME v1 header")
		}
		n := int(binary.BigEndian.Uint16(body[1:3]))
		if n != 16 && n != 20 {
			return nil, circerr.Protocolf("relay", "SENDME v1 tag length %d", n)
		}
		if len(body) < 3+n {
			return nil, circerr.Protocolf("relay", "truncated SENDME v1 tag")
		}
		tag := make([]byte, n)
		copy(tag, body[3:3+n])
		return tag, nil
	default:
		return nil, circerr.Protocolf("relay", "unrecognized SENDME version %d", body[0])
	}
}

// XonRate is the rate advertised by an XON. Unlimited is encoded as zero kbps.
type XonRate struct {
	Unlimited bool
	Kbps      uint32
}

// Unlimited is the XonRate with no limit.
var Unlimited = XonRate{Unlimited: true}

// RateKbps returns a limited XonRate. A zero rate is treated as unlimited.
func RateKbps(kbps uint32) XonRate {
	if kbps == 0 {
		return Unlimited
	}
	return XonRate{Kbps: kbps}
}

// BytesPerSecond converts the rate to bytes per second. Unlimited yields 0.
func (r XonRate) BytesPerSecond() uint64 {
	if r.Unlimited {
		return 0
	}
	return uint64(r.Kbps) * 1000 / 8
}

// NewXon builds an XON for a stream.
func NewXon(id StreamID, rate XonRate) Msg {
	body := make([]byte, 5)
	body[0] = flowCtrlVersion
	if !rate.Unlimited {
		binary.BigEndian.PutUint32(body[1:5], rate.Kbps)
	}
	return Msg{Cmd: CmdXon, StreamID: id, Body: body}
}

// ParseXon decodes an XON body.
func ParseXon(body []byte) (XonRate, error) {
	if len(body) < 1 {
		return XonRate{}, circerr.Protocolf("relay", "empty XON body")
	}
	if body[0] != flowCtrlVersion {
		return XonRate{}, circerr.Protocolf("relay", "unrecognized XON version %d", body[0])
	}
	if len(body) < 5 {
		return XonRate{}, circerr.Protocolf("relay", "truncated XON body")
	}
	return RateKbps(binary.BigEndian.Uint32(body[1:5])), nil
}

// NewXoff builds an XOFF for a stream.
func NewXoff(id StreamID) Msg {
	return Msg{Cmd: CmdXoff, StreamID: id, Body: []byte{flowCtrlVersion}}
}

// ParseXoff validates an XOFF body.
func ParseXoff(body []byte) error {
	if len(body) < 1 {
		return circerr.Protocolf("relay", "empty XOFF body")
	}
	if body[0] != flowCtrlVersion {
		return circerr.Protocolf("relay", "unrecognized XOFF version %d", body[0])
	}
	return nil
}

// EndReason explains why a stream ended.
type EndReason uint8

const (
	EndReasonMisc          EndReason = 1
	EndReasonResolveFailed EndReason = 2
	EndReasonConnRefused   EndReason = 3
	EndReasonExitPolicy    EndReason = 4
	EndReasonDestroy       EndReason = 5
	EndReasonDone          EndReason = 6
	EndReasonTimeout       EndReason = 7
	EndReasonNoRoute       EndReason = 8
	EndReasonHibernating   EndReason = 9
	EndReasonInternal      EndReason = 10
	EndReasonResourceLimit EndReason = 11
	EndReasonConnReset     EndReason = 12
	EndReasonTorProtocol   EndReason = 13
)

// NewEnd builds an END for a stream.
func NewEnd(id StreamID, reason EndReason) Msg {
	return Msg{Cmd: CmdEnd, StreamID: id, Body: []byte{byte(reason)}}
}

// ParseEnd returns the reason carried by an END body. An empty body means
// EndReasonMisc.
func ParseEnd(body []byte) EndReason {
	if len(body) == 0 {
		return EndReasonMisc
	}
	return EndReason(body[0])
}
