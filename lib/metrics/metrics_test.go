package metrics

import (
	"testing"
	"time"

	"github.com/go-i2p/go-circuit/lib/congestion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Error(t, Register(reg), "double registration is refused")
}

func TestObserveCongestion(t *testing.T) {
	ObserveCongestion(0, congestion.Snapshot{
		State:    congestion.SlowStart,
		Cwnd:     124,
		Inflight: 31,
		EWMARTT:  250 * time.Millisecond,
	})
	assert.Equal(t, 124.0, testutil.ToFloat64(cwnd.WithLabelValues("1")))
	assert.Equal(t, 31.0, testutil.ToFloat64(inflight.WithLabelValues("1")))
	assert.Equal(t, 0.25, testutil.ToFloat64(rttEWMA.WithLabelValues("1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(slowStart.WithLabelValues("1")))

	ObserveCongestion(0, congestion.Snapshot{State: congestion.Steady})
	assert.Equal(t, 0.0, testutil.ToFloat64(slowStart.WithLabelValues("1")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(sendmes.WithLabelValues("3"))
	SendmeReceived(2)
	SendmeReceived(2)
	assert.Equal(t, before+2, testutil.ToFloat64(sendmes.WithLabelValues("3")))

	before = testutil.ToFloat64(paddingCells.WithLabelValues("2"))
	PaddingSent(1)
	assert.Equal(t, before+1, testutil.ToFloat64(paddingCells.WithLabelValues("2")))

	before = testutil.ToFloat64(droppedCells.WithLabelValues("1"))
	CellDropped(0)
	assert.Equal(t, before+1, testutil.ToFloat64(droppedCells.WithLabelValues("1")))

	OpenStreams(0, 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(openStreams.WithLabelValues("1")))
}
