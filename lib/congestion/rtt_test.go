package congestion

import (
	"testing"
	"time"

	"github.com/go-i2p/go-circuit/lib/circerr"
	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultRTT() *RTTEstimator {
	return NewRTTEstimator(RTTParamsFromConfig(config.Defaults().Congestion.RTT))
}

func TestRTTUpdateWithoutSendmePoint(t *testing.T) {
	r := defaultRTT()
	err := r.Update(time.Now(), SlowStart, nil)
	require.Error(t, err)
	assert.True(t, circerr.IsProtocol(err))
}

func TestRTTSamples(t *testing.T) {
	r := defaultRTT()
	w := defaultCwnd()
	t0 := time.Unix(100, 0)

	r.ExpectSendme(t0)
	r.ExpectSendme(t0)
	assert.Equal(t, 2, r.Outstanding())

	require.NoError(t, r.Update(t0.Add(100*time.Millisecond), SlowStart, w))
	assert.Equal(t, 100*time.Millisecond, r.EWMA())
	assert.Equal(t, 100*time.Millisecond, r.Min())
	assert.False(t, r.ClockStalled())

	require.NoError(t, r.Update(t0.Add(200*time.Millisecond), SlowStart, w))
	assert.Equal(t, (400*time.Millisecond+100*time.Millisecond)/3, r.EWMA())
	assert.Equal(t, 100*time.Millisecond, r.Min())
	assert.Equal(t, 200*time.Millisecond, r.Max())
	assert.Equal(t, 0, r.Outstanding())
}

func TestRTTClockStall(t *testing.T) {
	r := defaultRTT()
	t0 := time.Unix(100, 0)

	r.ExpectSendme(t0)
	require.NoError(t, r.Update(t0, SlowStart, nil))
	assert.True(t, r.ClockStalled())
	assert.Zero(t, r.EWMA(), "stalled samples are not folded in")

	r.ExpectSendme(t0)
	require.NoError(t, r.Update(t0.Add(time.Millisecond), SlowStart, nil))
	assert.False(t, r.ClockStalled())

	r.ExpectSendme(t0)
	require.NoError(t, r.Update(t0.Add(6*time.Second), SlowStart, nil))
	assert.True(t, r.ClockStalled(), "a 6000x jump is treated as a clock jump")
	assert.Equal(t, time.Millisecond, r.EWMA())
}

func TestRTTMinResetAtWindowFloor(t *testing.T) {
	r := defaultRTT()
	w := defaultCwnd()
	t0 := time.Unix(100, 0)

	r.ExpectSendme(t0)
	require.NoError(t, r.Update(t0.Add(100*time.Millisecond), SlowStart, w))

	r.ExpectSendme(t0)
	require.NoError(t, r.Update(t0.Add(400*time.Millisecond), Steady, w))
	assert.Equal(t, 300*time.Millisecond, r.EWMA())
	assert.Equal(t, 300*time.Millisecond, r.Min(), "min RTT follows the EWMA while cwnd sits at its floor")
}
