package padding

import (
	"math"
	"time"

	"github.com/go-i2p/crypto/rand"
)

// DistKind selects a probability distribution.
type DistKind int

const (
	DistNone DistKind = iota
	// DistFixed always yields Param1.
	DistFixed
	// DistUniform yields a value in [Param1, Param2).
	DistUniform
	// DistNormal has mean Param1 and standard deviation Param2.
	DistNormal
	// DistExponential has rate Param1.
	DistExponential
)

// Dist is a distribution of durations in microseconds. A sample is shifted
// by Start and capped at Max (when Max is positive); negative samples
// become zero.
type Dist struct {
	Kind   DistKind
	Param1 float64
	Param2 float64
	Start  float64
	Max    float64
}

// Fixed returns a distribution that always yields d.
func Fixed(d time.Duration) Dist {
	return Dist{Kind: DistFixed, Param1: float64(d.Microseconds())}
}

// Uniform returns a distribution uniform over [lo, hi).
func Uniform(lo, hi time.Duration) Dist {
	return Dist{Kind: DistUniform, Param1: float64(lo.Microseconds()), Param2: float64(hi.Microseconds())}
}

// Sample draws one duration.
func (d Dist) Sample() time.Duration {
	var v float64
	switch d.Kind {
	case DistFixed:
		v = d.Param1
	case DistUniform:
		v = d.Param1 + rand.Float64()*(d.Param2-d.Param1)
	case DistNormal:
		// Box-Muller
		u1 := 1 - rand.Float64()
		u2 := rand.Float64()
		v = d.Param1 + d.Param2*math.Sqrt(-2*math.Log(u1))*math.Cos(2*math.Pi*u2)
	case DistExponential:
		if d.Param1 > 0 {
			v = -math.Log(1-rand.Float64()) / d.Param1
		}
	}
	v += d.Start
	if d.Max > 0 && v > d.Max {
		v = d.Max
	}
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	return time.Duration(v) * time.Microsecond
}
