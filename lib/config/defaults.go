package config

import (
	"github.com/go-i2p/logger"
)

// ConfigDefaults contains all default configuration values for go-circuit.
// This centralizes default values to make them easy to discover, document, and modify.
type ConfigDefaults struct {
	// Congestion control defaults
	Congestion CongestionDefaults `mapstructure:"congestion" yaml:"congestion"`

	// Per-stream flow control defaults
	FlowControl FlowControlDefaults `mapstructure:"flow_control" yaml:"flow_control"`

	// Padding machine defaults
	Padding PaddingDefaults `mapstructure:"padding" yaml:"padding"`

	// Reactor defaults
	Reactor ReactorDefaults `mapstructure:"reactor" yaml:"reactor"`
}

// FlowControlDefaults contains default values for XON/XOFF stream flow control.
type FlowControlDefaults struct {
	// CellPayloadBytes converts cell counts to bytes.
	// Default: 498 bytes (relay body size)
	CellPayloadBytes uint32 `mapstructure:"cell_payload_bytes" yaml:"cell_payload_bytes"`

	// XoffClientCells is the buffered amount that makes a client send XOFF.
	// Default: 500 cells
	XoffClientCells uint32 `mapstructure:"xoff_client_cells" yaml:"xoff_client_cells"`

	// XoffExitCells is the buffered amount that makes an exit send XOFF.
	// Default: 500 cells
	XoffExitCells uint32 `mapstructure:"xoff_exit_cells" yaml:"xoff_exit_cells"`

	// XonRateCells is how much must drain between advisory XON updates.
	// Default: 500 cells
	XonRateCells uint32 `mapstructure:"xon_rate_cells" yaml:"xon_rate_cells"`

	// XonChangePct is the drain-rate change that triggers an advisory XON.
	// Default: 25
	XonChangePct uint32 `mapstructure:"xon_change_pct" yaml:"xon_change_pct"`

	// XonEWMACount is the N of the drain-rate EWMA.
	// Default: 2
	XonEWMACount uint32 `mapstructure:"xon_ewma_count" yaml:"xon_ewma_count"`

	// SidechannelMitigation rejects implausible XON/XOFF from the peer.
	// Only ever applied to client-side circuits.
	// Default: true
	SidechannelMitigation bool `mapstructure:"sidechannel_mitigation" yaml:"sidechannel_mitigation"`
}

// XoffClientBytes returns the client XOFF threshold in bytes.
func (f FlowControlDefaults) XoffClientBytes() uint64 {
	return uint64(f.XoffClientCells) * uint64(f.CellPayloadBytes)
}

// XoffExitBytes returns the exit XOFF threshold in bytes.
func (f FlowControlDefaults) XoffExitBytes() uint64 {
	return uint64(f.XoffExitCells) * uint64(f.CellPayloadBytes)
}

// XonRateBytes returns the advisory XON spacing in bytes.
func (f FlowControlDefaults) XonRateBytes() uint64 {
	return uint64(f.XonRateCells) * uint64(f.CellPayloadBytes)
}

// PaddingDefaults contains default values for the padding machines.
type PaddingDefaults struct {
	// MaxCascadeIterations bounds how many follow-on events one batch may produce.
	// Default: 64
	MaxCascadeIterations int `mapstructure:"max_cascade_iterations" yaml:"max_cascade_iterations"`

	// MaxMachinesPerHop bounds how many machines a hop's backend may run.
	// Default: 4
	MaxMachinesPerHop int `mapstructure:"max_machines_per_hop" yaml:"max_machines_per_hop"`
}

// ReactorDefaults contains default values for the circuit reactors.
type ReactorDefaults struct {
	// StreamQueueDepth is how many outbound messages a stream may queue.
	// Default: 16
	StreamQueueDepth int `mapstructure:"stream_queue_depth" yaml:"stream_queue_depth"`

	// StreamIDProbeAttempts bounds the stream id search.
	// Default: 65536
	StreamIDProbeAttempts int `mapstructure:"stream_id_probe_attempts" yaml:"stream_id_probe_attempts"`

	// ClientSide marks circuits we originate, enabling sidechannel checks.
	// Default: true
	ClientSide bool `mapstructure:"client_side" yaml:"client_side"`

	// OnionService selects the onion Vegas thresholds instead of the exit ones.
	// Default: false
	OnionService bool `mapstructure:"onion_service" yaml:"onion_service"`
}

// Defaults returns a ConfigDefaults instance with all default values set.
// This is the single source of truth for all configuration defaults.
func Defaults() ConfigDefaults {
	return ConfigDefaults{
		Congestion:  buildCongestionDefaults(),
		FlowControl: buildFlowControlDefaults(),
		Padding:     buildPaddingDefaults(),
		Reactor:     buildReactorDefaults(),
	}
}

// buildFlowControlDefaults creates default flow control configuration values.
func buildFlowControlDefaults() FlowControlDefaults {
	return FlowControlDefaults{
		CellPayloadBytes:      498,
		XoffClientCells:       500,
		XoffExitCells:         500,
		XonRateCells:          500,
		XonChangePct:          25,
		XonEWMACount:          2,
		SidechannelMitigation: true,
	}
}

// buildPaddingDefaults creates default padding configuration values.
func buildPaddingDefaults() PaddingDefaults {
	return PaddingDefaults{
		MaxCascadeIterations: 64,
		MaxMachinesPerHop:    4,
	}
}

// buildReactorDefaults creates default reactor configuration values.
func buildReactorDefaults() ReactorDefaults {
	return ReactorDefaults{
		StreamQueueDepth:      16,
		StreamIDProbeAttempts: 65536,
		ClientSide:            true,
		OnionService:          false,
	}
}

// Validate checks if the provided configuration values are reasonable.
// Returns an error describing the first invalid value found.
func Validate(cfg ConfigDefaults) error {
	log.WithFields(logger.Fields{
		"at":     "Validate",
		"reason": "verification_requested",
	}).Debug("validating configuration defaults")
	return runConfigValidators(cfg)
}

// runConfigValidators executes all configuration validators in sequence.
// Returns the first error encountered or nil if all validations pass.
func runConfigValidators(cfg ConfigDefaults) error {
	validators := []func() error{
		func() error { return validateCwnd(cfg.Congestion) },
		func() error { return validateVegas("VegasExit", cfg.Congestion.VegasExit) },
		func() error { return validateVegas("VegasOnion", cfg.Congestion.VegasOnion) },
		func() error { return validateFixed(cfg.Congestion.Fixed) },
		func() error { return validateRTT(cfg.Congestion.RTT) },
		func() error { return validateFlowControl(cfg.FlowControl) },
		func() error { return validatePadding(cfg.Padding) },
		func() error { return validateReactor(cfg.Reactor) },
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("Configuration validation failed")
			return err
		}
	}
	log.WithFields(logger.Fields{
		"at":     "Validate",
		"reason": "all_validators_passed",
	}).Debug("all configuration validations passed successfully")
	return nil
}

// validateCwnd validates the algorithm choice and window parameters.
func validateCwnd(cc CongestionDefaults) error {
	switch cc.Algorithm {
	case AlgorithmVegas, AlgorithmFixedWindow:
	default:
		return newValidationError("Congestion.Algorithm must be \"vegas\" or \"fixed\"")
	}
	w := cc.Cwnd
	if w.SendmeInc == 0 {
		return newValidationError("Congestion.Cwnd.SendmeInc must be at least 1")
	}
	if w.Min < w.SendmeInc {
		return newValidationError("Congestion.Cwnd.Min must be at least one SENDME increment")
	}
	if w.Init < w.Min || w.Init > w.Max {
		return newValidationError("Congestion.Cwnd.Init must lie between Min and Max")
	}
	if w.Increment == 0 || w.IncrementRate == 0 {
		return newValidationError("Congestion.Cwnd.Increment and IncrementRate must be at least 1")
	}
	if w.FullMinPct > 100 {
		return newValidationError("Congestion.Cwnd.FullMinPct must not exceed 100")
	}
	if cc.SlowStartMax < w.Min {
		return newValidationError("Congestion.SlowStartMax must be at least Cwnd.Min")
	}
	return nil
}

// validateVegas validates one set of Vegas queue thresholds.
func validateVegas(name string, v VegasDefaults) error {
	if !(v.Alpha < v.Beta && v.Beta < v.Delta) {
		return newValidationError("Congestion." + name + " must satisfy Alpha < Beta < Delta")
	}
	if v.Gamma > v.Beta {
		return newValidationError("Congestion." + name + ".Gamma must not exceed Beta")
	}
	return nil
}

// validateFixed validates the legacy window parameters.
func validateFixed(f FixedWindowDefaults) error {
	if f.CircWindowInc == 0 || f.CircWindowStart < f.CircWindowInc {
		return newValidationError("Congestion.Fixed circuit window must hold at least one increment")
	}
	if f.StreamWindowInc == 0 || f.StreamWindowStart < f.StreamWindowInc {
		return newValidationError("Congestion.Fixed stream window must hold at least one increment")
	}
	return nil
}

// validateRTT validates the estimator parameters.
func validateRTT(r RTTDefaults) error {
	if r.EWMASlowStartMax == 0 || r.EWMAMax == 0 {
		return newValidationError("Congestion.RTT EWMA bounds must be at least 1")
	}
	if r.ResetPct > 100 {
		return newValidationError("Congestion.RTT.ResetPct must not exceed 100")
	}
	return nil
}

// validateFlowControl validates XON/XOFF limits.
func validateFlowControl(f FlowControlDefaults) error {
	if f.CellPayloadBytes == 0 {
		return newValidationError("FlowControl.CellPayloadBytes must be at least 1")
	}
	if f.XoffClientCells == 0 || f.XoffExitCells == 0 {
		return newValidationError("FlowControl XOFF limits must be at least 1 cell")
	}
	if f.XonEWMACount == 0 {
		return newValidationError("FlowControl.XonEWMACount must be at least 1")
	}
	return nil
}

// validatePadding validates padding machine bounds.
func validatePadding(p PaddingDefaults) error {
	if p.MaxCascadeIterations < 1 {
		return newValidationError("Padding.MaxCascadeIterations must be at least 1")
	}
	if p.MaxMachinesPerHop < 1 {
		return newValidationError("Padding.MaxMachinesPerHop must be at least 1")
	}
	return nil
}

// validateReactor validates reactor sizing.
func validateReactor(r ReactorDefaults) error {
	if r.StreamQueueDepth < 1 {
		return newValidationError("Reactor.StreamQueueDepth must be at least 1")
	}
	if r.StreamIDProbeAttempts < 1 || r.StreamIDProbeAttempts > 65536 {
		return newValidationError("Reactor.StreamIDProbeAttempts must lie in [1, 65536]")
	}
	return nil
}

// validationError is returned when configuration validation fails
type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
