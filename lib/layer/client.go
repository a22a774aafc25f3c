package layer

import (
	"sync"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/relay"
)

type clientHop struct {
	fwd *direction
	bwd *direction
}

// ClientLayers holds the client side of every hop's layer. Seal and Open
// may run concurrently with each other; each must only be called from one
// goroutine at a time.
type ClientLayers struct {
	mu   sync.RWMutex
	hops []*clientHop
}

// NewClientLayers returns layers for a circuit with no hops.
func NewClientLayers() *ClientLayers {
	return &ClientLayers{}
}

// AddHop appends the layer of the next hop.
func (c *ClientLayers) AddHop(k Keys) (relay.HopNum, error) {
	fwd, err := newDirection(k.Forward, k.ForwardDigest)
	if err != nil {
		return 0, err
	}
	bwd, err := newDirection(k.Backward, k.BackwardDigest)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.hops) >= relay.MaxHops {
		return 0, circerr.Exhaustedf("layer", "circuit already has %d hops", relay.MaxHops)
	}
	c.hops = append(c.hops, &clientHop{fwd: fwd, bwd: bwd})
	return relay.HopNum(len(c.hops) - 1), nil
}

// Len returns the number of hops.
func (c *ClientLayers) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hops)
}

// Seal encrypts cell in place for hop and returns its SENDME tag.
func (c *ClientLayers) Seal(hop relay.HopNum, cell relay.Cell) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(hop) >= len(c.hops) {
		return nil, circerr.Bugf("layer", "seal for %s on a %d hop circuit", hop, len(c.hops))
	}
	if len(cell) != relay.CellBodyLen {
		return nil, circerr.Bugf("layer", "seal of %d byte cell", len(cell))
	}
	tag := c.hops[hop].fwd.stamp(cell)
	for h := int(hop); h >= 0; h-- {
		c.hops[h].fwd.crypt(cell)
	}
	return tag, nil
}

// Open removes layers from an inbound cell until some hop recognizes it,
// and returns that hop with the cell's digest snapshot. A cell no hop
// recognizes is a protocol violation.
func (c *ClientLayers) Open(cell relay.Cell) (relay.HopNum, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(cell) != relay.CellBodyLen {
		return 0, nil, circerr.Protocolf("layer", "inbound cell of %d bytes", len(cell))
	}
	for h, hop := range c.hops {
		hop.bwd.crypt(cell)
		tag, ok, err := hop.bwd.recognize(cell)
		if err != nil {
			return 0, nil, err
		}
		if ok {
			return relay.HopNum(h), tag, nil
		}
	}
	return 0, nil, circerr.Protocolf("layer", "inbound cell not recognized by any of %d hops", len(c.hops))
}
