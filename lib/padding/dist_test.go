package padding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistSample(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, Fixed(250*time.Millisecond).Sample())
	assert.Zero(t, Dist{}.Sample())

	u := Uniform(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 100; i++ {
		v := u.Sample()
		assert.GreaterOrEqual(t, v, 10*time.Millisecond)
		assert.Less(t, v, 20*time.Millisecond)
	}

	capped := Dist{Kind: DistNormal, Param1: 1e6, Param2: 1e6, Max: 1000}
	for i := 0; i < 100; i++ {
		v := capped.Sample()
		assert.LessOrEqual(t, v, time.Millisecond)
		assert.GreaterOrEqual(t, v, time.Duration(0))
	}

	exp := Dist{Kind: DistExponential, Param1: 0.001, Start: 500}
	for i := 0; i < 100; i++ {
		assert.GreaterOrEqual(t, exp.Sample(), 500*time.Microsecond)
	}
}
