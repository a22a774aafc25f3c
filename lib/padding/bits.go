package padding

import (
	"math/bits"

	"github.com/go-i2p/go-circuit/lib/relay"
)

// Bits is a set of hops, one bit per hop position.
type Bits uint32

// compile-time check that every hop has a bit
var _ = [32 - relay.MaxHops]struct{}{}

// Set adds h.
func (b *Bits) Set(h relay.HopNum) { *b |= 1 << h }

// Clear removes h.
func (b *Bits) Clear(h relay.HopNum) { *b &^= 1 << h }

// Has reports whether h is in the set.
func (b Bits) Has(h relay.HopNum) bool { return b&(1<<h) != 0 }

// Empty reports whether no hop is set.
func (b Bits) Empty() bool { return b == 0 }

// Lowest returns the lowest hop in the set.
func (b Bits) Lowest() (relay.HopNum, bool) {
	if b == 0 {
		return 0, false
	}
	return relay.HopNum(bits.TrailingZeros32(uint32(b))), true
}
