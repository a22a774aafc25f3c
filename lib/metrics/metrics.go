// Package metrics exposes circuit data plane state as Prometheus metrics.
// Every metric is labelled by hop only.
package metrics

import (
	"strconv"

	"github.com/go-i2p/go-circuit/lib/congestion"
	"github.com/go-i2p/go-circuit/lib/relay"
	"github.com/prometheus/client_golang/prometheus"
)

var hopLabel = []string{"hop"}

var (
	cwnd = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gocircuit_cwnd_cells",
			Help: "Congestion window of a hop, in cells",
		},
		hopLabel,
	)
	inflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gocircuit_inflight_cells",
			Help: "Unacknowledged DATA cells to a hop",
		},
		hopLabel,
	)
	rttEWMA = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gocircuit_rtt_ewma_seconds",
			Help: "Smoothed round trip time to a hop",
		},
		hopLabel,
	)
	slowStart = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gocircuit_slow_start",
			Help: "1 while a hop's congestion control is in slow start",
		},
		hopLabel,
	)
	sendmes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gocircuit_sendmes_total",
			Help: "Circuit SENDMEs received from a hop",
		},
		hopLabel,
	)
	paddingCells = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gocircuit_padding_cells_total",
			Help: "Padding cells sent to a hop",
		},
		hopLabel,
	)
	openStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gocircuit_open_streams",
			Help: "Open streams on a hop",
		},
		hopLabel,
	)
	droppedCells = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gocircuit_dropped_cells_total",
			Help: "DATA cells dropped because the stream was no longer read",
		},
		hopLabel,
	)
)

// Collectors returns every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{cwnd, inflight, rttEWMA, slowStart, sendmes, paddingCells, openStreams, droppedCells}
}

// Register registers every collector with reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func hop(h relay.HopNum) string {
	return strconv.Itoa(int(h) + 1)
}

// ObserveCongestion records a congestion snapshot of h.
func ObserveCongestion(h relay.HopNum, s congestion.Snapshot) {
	l := hop(h)
	cwnd.WithLabelValues(l).Set(float64(s.Cwnd))
	inflight.WithLabelValues(l).Set(float64(s.Inflight))
	rttEWMA.WithLabelValues(l).Set(s.EWMARTT.Seconds())
	ss := 0.0
	if s.State.InSlowStart() {
		ss = 1
	}
	slowStart.WithLabelValues(l).Set(ss)
}

// SendmeReceived counts a circuit SENDME from h.
func SendmeReceived(h relay.HopNum) {
	sendmes.WithLabelValues(hop(h)).Inc()
}

// PaddingSent counts a padding cell sent to h.
func PaddingSent(h relay.HopNum) {
	paddingCells.WithLabelValues(hop(h)).Inc()
}

// OpenStreams sets the open stream count of h.
func OpenStreams(h relay.HopNum, n int) {
	openStreams.WithLabelValues(hop(h)).Set(float64(n))
}

// CellDropped counts a DATA cell dropped on h.
func CellDropped(h relay.HopNum) {
	droppedCells.WithLabelValues(hop(h)).Inc()
}
