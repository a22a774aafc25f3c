package config

// Algorithm selects the congestion control algorithm of a hop.
type Algorithm string

const (
	// AlgorithmVegas is the delay-based algorithm from proposal 324.
	AlgorithmVegas Algorithm = "vegas"

	// AlgorithmFixedWindow is the legacy SENDME window algorithm.
	AlgorithmFixedWindow Algorithm = "fixed"
)

// CongestionDefaults contains the congestion control parameters of a hop.
type CongestionDefaults struct {
	// Algorithm picks Vegas or the fixed window.
	// Default: vegas
	Algorithm Algorithm `mapstructure:"algorithm" yaml:"algorithm"`

	// Cwnd holds the congestion window parameters.
	Cwnd CwndDefaults `mapstructure:"cwnd" yaml:"cwnd"`

	// RTT holds the round trip estimator parameters.
	RTT RTTDefaults `mapstructure:"rtt" yaml:"rtt"`

	// VegasExit holds the queue thresholds for exit circuits.
	VegasExit VegasDefaults `mapstructure:"vegas_exit" yaml:"vegas_exit"`

	// VegasOnion holds the queue thresholds for onion service circuits.
	VegasOnion VegasDefaults `mapstructure:"vegas_onion" yaml:"vegas_onion"`

	// SlowStartMax is the hard ceiling on cwnd while in slow start.
	// Default: 5000 cells
	SlowStartMax uint32 `mapstructure:"slow_start_max" yaml:"slow_start_max"`

	// Fixed holds the legacy window parameters.
	Fixed FixedWindowDefaults `mapstructure:"fixed" yaml:"fixed"`
}

// CwndDefaults contains the congestion window parameters.
type CwndDefaults struct {
	// Init is the starting window.
	// Default: 124 cells
	Init uint32 `mapstructure:"init" yaml:"init"`

	// Min is the floor of the window.
	// Default: 124 cells
	Min uint32 `mapstructure:"min" yaml:"min"`

	// Max is the ceiling of the window.
	// Default: 2147483647 cells
	Max uint32 `mapstructure:"max" yaml:"max"`

	// Increment is the steady-state step applied by inc and dec.
	// Default: 31 cells
	Increment uint32 `mapstructure:"increment" yaml:"increment"`

	// IncrementRate is how many steps happen per window in steady state.
	// Default: 1
	IncrementRate uint32 `mapstructure:"increment_rate" yaml:"increment_rate"`

	// SlowStartIncPct is the slow start step as a percentage of SendmeInc.
	// Default: 100
	SlowStartIncPct uint32 `mapstructure:"slow_start_inc_pct" yaml:"slow_start_inc_pct"`

	// SendmeInc is how many DATA cells one SENDME acknowledges.
	// Default: 31 cells
	SendmeInc uint32 `mapstructure:"sendme_inc" yaml:"sendme_inc"`

	// FullGap is how many SENDME increments of slack still count as "full".
	// Default: 4
	FullGap uint32 `mapstructure:"full_gap" yaml:"full_gap"`

	// FullMinPct is the utilisation below which the window becomes non-full.
	// Default: 25
	FullMinPct uint32 `mapstructure:"full_min_pct" yaml:"full_min_pct"`
}

// RTTDefaults contains the round trip estimator parameters.
type RTTDefaults struct {
	// EWMACwndPct scales the EWMA N from the update rate, in percent.
	// Default: 50
	EWMACwndPct uint32 `mapstructure:"ewma_cwnd_pct" yaml:"ewma_cwnd_pct"`

	// EWMAMax caps N in steady state.
	// Default: 10
	EWMAMax uint32 `mapstructure:"ewma_max" yaml:"ewma_max"`

	// EWMASlowStartMax is N during slow start.
	// Default: 2
	EWMASlowStartMax uint32 `mapstructure:"ewma_ss_max" yaml:"ewma_ss_max"`

	// ResetPct moves min RTT toward the EWMA when cwnd sits at its minimum.
	// Default: 100
	ResetPct uint32 `mapstructure:"reset_pct" yaml:"reset_pct"`
}

// VegasDefaults contains the Vegas queue thresholds, in cells.
// Values should maintain: Alpha < Beta < Delta and Gamma <= Beta.
type VegasDefaults struct {
	Alpha uint32 `mapstructure:"alpha" yaml:"alpha"`
	Beta  uint32 `mapstructure:"beta" yaml:"beta"`
	Gamma uint32 `mapstructure:"gamma" yaml:"gamma"`
	Delta uint32 `mapstructure:"delta" yaml:"delta"`

	// SlowStartCap is where slow start switches to the RFC 3742 limited increment.
	SlowStartCap uint32 `mapstructure:"ss_cap" yaml:"ss_cap"`
}

// FixedWindowDefaults contains the legacy SENDME window parameters.
type FixedWindowDefaults struct {
	// CircWindowStart is the initial circuit window.
	// Default: 1000 cells
	CircWindowStart uint32 `mapstructure:"circ_window_start" yaml:"circ_window_start"`

	// CircWindowInc is the number of cells one circuit SENDME acknowledges.
	// Default: 100 cells
	CircWindowInc uint32 `mapstructure:"circ_window_inc" yaml:"circ_window_inc"`

	// StreamWindowStart is the initial stream window.
	// Default: 500 cells
	StreamWindowStart uint32 `mapstructure:"stream_window_start" yaml:"stream_window_start"`

	// StreamWindowInc is the number of cells one stream SENDME acknowledges.
	// Default: 50 cells
	StreamWindowInc uint32 `mapstructure:"stream_window_inc" yaml:"stream_window_inc"`
}

// outbufCells is the number of cells in a full outbound connection buffer.
const outbufCells = 62

// buildCongestionDefaults creates default congestion configuration values.
func buildCongestionDefaults() CongestionDefaults {
	return CongestionDefaults{
		Algorithm: AlgorithmVegas,
		Cwnd: CwndDefaults{
			Init:            124,
			Min:             124,
			Max:             2147483647,
			Increment:       31,
			IncrementRate:   1,
			SlowStartIncPct: 100,
			SendmeInc:       31,
			FullGap:         4,
			FullMinPct:      25,
		},
		RTT: RTTDefaults{
			EWMACwndPct:      50,
			EWMAMax:          10,
			EWMASlowStartMax: 2,
			ResetPct:         100,
		},
		VegasExit: VegasDefaults{
			Alpha:        3 * outbufCells,
			Beta:         4 * outbufCells,
			Gamma:        3 * outbufCells,
			Delta:        5 * outbufCells,
			SlowStartCap: 600,
		},
		VegasOnion: VegasDefaults{
			Alpha:        3 * outbufCells / 2,
			Beta:         4 * outbufCells / 2,
			Gamma:        3 * outbufCells / 2,
			Delta:        5 * outbufCells / 2,
			SlowStartCap: 475,
		},
		SlowStartMax: 5000,
		Fixed: FixedWindowDefaults{
			CircWindowStart:   1000,
			CircWindowInc:     100,
			StreamWindowStart: 500,
			StreamWindowInc:   50,
		},
	}
}
