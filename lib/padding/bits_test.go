package padding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBits(t *testing.T) {
	var b Bits
	assert.True(t, b.Empty())
	_, ok := b.Lowest()
	assert.False(t, ok)

	b.Set(5)
	b.Set(2)
	assert.True(t, b.Has(2))
	assert.False(t, b.Has(3))
	low, ok := b.Lowest()
	assert.True(t, ok)
	assert.EqualValues(t, 2, low)

	b.Clear(2)
	low, _ = b.Lowest()
	assert.EqualValues(t, 5, low)
	b.Clear(5)
	assert.True(t, b.Empty())
}
