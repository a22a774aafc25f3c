package congestion

import "github.com/go-i2p/go-circuit/lib/config"

// CwndParams are the immutable congestion window parameters.
type CwndParams struct {
	Init            uint32
	Min             uint32
	Max             uint32
	Increment       uint32
	IncrementRate   uint32
	SlowStartIncPct uint32
	SendmeInc       uint32
	FullGap         uint32
	FullMinPct      uint32
}

// VegasParams are the queue thresholds and slow start bounds of Vegas.
type VegasParams struct {
	Alpha        uint32
	Beta         uint32
	Gamma        uint32
	Delta        uint32
	SlowStartCap uint32
	SlowStartMax uint32
}

// RTTParams are the round trip estimator parameters.
type RTTParams struct {
	EWMACwndPct      uint32
	EWMAMax          uint32
	EWMASlowStartMax uint32
	ResetPct         uint32
}

// CwndParamsFromConfig converts the configured window parameters.
func CwndParamsFromConfig(c config.CwndDefaults) CwndParams {
	return CwndParams{
		Init:            c.Init,
		Min:             c.Min,
		Max:             c.Max,
		Increment:       c.Increment,
		IncrementRate:   c.IncrementRate,
		SlowStartIncPct: c.SlowStartIncPct,
		SendmeInc:       c.SendmeInc,
		FullGap:         c.FullGap,
		FullMinPct:      c.FullMinPct,
	}
}

// VegasParamsFromConfig picks the exit or onion thresholds.
func VegasParamsFromConfig(c config.CongestionDefaults, onion bool) VegasParams {
	v := c.VegasExit
	if onion {
		v = c.VegasOnion
	}
	return VegasParams{
		Alpha:        v.Alpha,
		Beta:         v.Beta,
		Gamma:        v.Gamma,
		Delta:        v.Delta,
		SlowStartCap: v.SlowStartCap,
		SlowStartMax: c.SlowStartMax,
	}
}

// RTTParamsFromConfig converts the configured estimator parameters.
func RTTParamsFromConfig(c config.RTTDefaults) RTTParams {
	return RTTParams{
		EWMACwndPct:      c.EWMACwndPct,
		EWMAMax:          c.EWMAMax,
		EWMASlowStartMax: c.EWMASlowStartMax,
		ResetPct:         c.ResetPct,
	}
}
