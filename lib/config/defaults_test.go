package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaults verifies that Defaults() returns a complete configuration
// with all expected default values set.
func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, AlgorithmVegas, cfg.Congestion.Algorithm)
	assert.Equal(t, uint32(124), cfg.Congestion.Cwnd.Init)
	assert.Equal(t, uint32(124), cfg.Congestion.Cwnd.Min)
	assert.Equal(t, uint32(31), cfg.Congestion.Cwnd.SendmeInc)
	assert.Equal(t, uint32(31), cfg.Congestion.Cwnd.Increment)
	assert.Equal(t, uint32(5000), cfg.Congestion.SlowStartMax)

	assert.Equal(t, uint32(186), cfg.Congestion.VegasExit.Alpha)
	assert.Equal(t, uint32(248), cfg.Congestion.VegasExit.Beta)
	assert.Equal(t, uint32(186), cfg.Congestion.VegasExit.Gamma)
	assert.Equal(t, uint32(310), cfg.Congestion.VegasExit.Delta)
	assert.Equal(t, uint32(600), cfg.Congestion.VegasExit.SlowStartCap)

	assert.Equal(t, uint64(500*498), cfg.FlowControl.XoffClientBytes())
	assert.True(t, cfg.FlowControl.SidechannelMitigation)
	assert.Equal(t, 65536, cfg.Reactor.StreamIDProbeAttempts)
}

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConfigDefaults)
		want   string
	}{
		{"unknown algorithm", func(c *ConfigDefaults) { c.Congestion.Algorithm = "reno" }, "Algorithm"},
		{"zero sendme inc", func(c *ConfigDefaults) { c.Congestion.Cwnd.SendmeInc = 0 }, "SendmeInc"},
		{"init below min", func(c *ConfigDefaults) { c.Congestion.Cwnd.Init = 10 }, "Init"},
		{"vegas ordering", func(c *ConfigDefaults) { c.Congestion.VegasExit.Beta = 1 }, "Alpha < Beta < Delta"},
		{"gamma above beta", func(c *ConfigDefaults) { c.Congestion.VegasOnion.Gamma = 1000 }, "Gamma"},
		{"fixed window", func(c *ConfigDefaults) { c.Congestion.Fixed.StreamWindowInc = 0 }, "stream window"},
		{"rtt reset pct", func(c *ConfigDefaults) { c.Congestion.RTT.ResetPct = 101 }, "ResetPct"},
		{"xoff limit", func(c *ConfigDefaults) { c.FlowControl.XoffClientCells = 0 }, "XOFF"},
		{"cascade bound", func(c *ConfigDefaults) { c.Padding.MaxCascadeIterations = 0 }, "MaxCascadeIterations"},
		{"probe attempts", func(c *ConfigDefaults) { c.Reactor.StreamIDProbeAttempts = 70000 }, "StreamIDProbeAttempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}
