package relay

import "fmt"

// MaxHops is the largest number of hops a circuit may have. Per-hop bit state
// (padding blocking flags) is sized from it.
const MaxHops = 8

// HopNum is the zero-based position of a hop in a circuit.
type HopNum uint8

// String renders the hop one-based, the way operators count hops.
func (h HopNum) String() string {
	return fmt.Sprintf("hop %d", int(h)+1)
}

// Valid reports whether h can index a circuit of MaxHops hops.
func (h HopNum) Valid() bool {
	return int(h) < MaxHops
}

// StreamID identifies a stream within a hop. Zero addresses the circuit.
type StreamID uint16

// IsZero reports whether the id addresses the circuit rather than a stream.
func (s StreamID) IsZero() bool {
	return s == 0
}

func (s StreamID) String() string {
	return fmt.Sprintf("stream %d", uint16(s))
}
