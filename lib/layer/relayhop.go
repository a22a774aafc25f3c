package layer

import "github.com/go-i2p/go-circuit/lib/relay"

// RelayHop is the relay side of one hop's layer.
type RelayHop struct {
	fwd *direction
	bwd *direction
}

// NewRelayHop builds the relay side from the keys shared with the client.
func NewRelayHop(k Keys) (*RelayHop, error) {
	fwd, err := newDirection(k.Forward, k.ForwardDigest)
	if err != nil {
		return nil, err
	}
	bwd, err := newDirection(k.Backward, k.BackwardDigest)
	if err != nil {
		return nil, err
	}
	return &RelayHop{fwd: fwd, bwd: bwd}, nil
}

// Unwrap removes this hop's layer from a forward cell. If the cell is
// addressed to this hop it returns the digest snapshot and true.
func (r *RelayHop) Unwrap(cell relay.Cell) ([]byte, bool, error) {
	r.fwd.crypt(cell)
	return r.fwd.recognize(cell)
}

// Originate seals a backward cell that starts at this hop.
func (r *RelayHop) Originate(cell relay.Cell) []byte {
	tag := r.bwd.stamp(cell)
	r.bwd.crypt(cell)
	return tag
}

// Wrap adds this hop's layer to a backward cell from a later hop.
func (r *RelayHop) Wrap(cell relay.Cell) {
	r.bwd.crypt(cell)
}
