package relay

import (
	"encoding/binary"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

const (
	// CellBodyLen is the size of a relay cell body.
	CellBodyLen = 509

	// HeaderLen is the size of the relay header preceding the body.
	HeaderLen = 11

	// MaxBodyLen is the largest body a single relay message can carry.
	MaxBodyLen = CellBodyLen - HeaderLen

	// zeroPadLen bytes of zero precede the random padding.
	zeroPadLen = 4
)

// Cell is one sealed or plaintext relay cell body.
type Cell []byte

// Msg is a decoded relay message.
type Msg struct {
	Cmd      Command
	StreamID StreamID
	Body     []byte
}

// NewMsg builds a message, copying body.
func NewMsg(cmd Command, id StreamID, body []byte) Msg {
	b := make([]byte, len(body))
	copy(b, body)
	return Msg{Cmd: cmd, StreamID: id, Body: b}
}

// NewData builds a DATA message. The payload must fit MaxBodyLen.
func NewData(id StreamID, payload []byte) Msg {
	return NewMsg(CmdData, id, payload)
}

// NewDrop builds a circuit-level DROP (long-range padding) message.
func NewDrop() Msg {
	return Msg{Cmd: CmdDrop}
}

// Len returns the number of body bytes carried by the message.
func (m Msg) Len() int {
	return len(m.Body)
}

// Encode serializes m into a CellBodyLen byte cell body.
func Encode(m Msg) (Cell, error) {
	if len(m.Body) > MaxBodyLen {
		return nil, circerr.Bugf("relay", "%s body of %d bytes exceeds %d", m.Cmd, len(m.Body), MaxBodyLen)
	}
	cell := make([]byte, CellBodyLen)
	cell[0] = byte(m.Cmd)
	// recognized (1:3) and digest (5:9) stay zero
	binary.BigEndian.PutUint16(cell[3:5], uint16(m.StreamID))
	binary.BigEndian.PutUint16(cell[9:11], uint16(len(m.Body)))
	copy(cell[HeaderLen:], m.Body)

	padStart := HeaderLen + len(m.Body) + zeroPadLen
	if padStart < CellBodyLen {
		if _, err := rand.Read(cell[padStart:]); err != nil {
			return nil, circerr.Bugf("relay", "padding randomness: %v", err)
		}
	}
	return cell, nil
}

// Decode parses a plaintext cell body.
func Decode(cell Cell) (Msg, error) {
	if len(cell) != CellBodyLen {
		return Msg{}, circerr.Protocolf("relay", "cell body is %d bytes, want %d", len(cell), CellBodyLen)
	}
	length := int(binary.BigEndian.Uint16(cell[9:11]))
	if length > MaxBodyLen {
		log.WithField("length", length).Debug("rejecting relay cell with oversized length")
		return Msg{}, circerr.Protocolf("relay", "relay length %d exceeds %d", length, MaxBodyLen)
	}
	m := Msg{
		Cmd:      Command(cell[0]),
		StreamID: StreamID(binary.BigEndian.Uint16(cell[3:5])),
		Body:     make([]byte, length),
	}
	copy(m.Body, cell[HeaderLen:HeaderLen+length])
	return m, nil
}
