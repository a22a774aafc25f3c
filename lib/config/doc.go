// Package config provides the tunable parameters of the circuit data plane.
//
// # Sources
//
// Defaults() is the single source of truth. The values mirror the network
// consensus defaults for congestion control (proposal 324) and flow control:
// they are what a circuit uses when no consensus parameter overrides them.
//
// Load overlays a YAML file (and GOCIRCUIT_* environment variables) onto the
// defaults through viper, then runs Validate.
//
// # Units
//
// Congestion windows, increments and thresholds are counted in cells. Flow
// control limits are counted in cells and converted to bytes with
// FlowControlDefaults.CellPayloadBytes.
package config
