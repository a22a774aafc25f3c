package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "circuit.yaml")
	contents := []byte(`
congestion:
  algorithm: fixed
  cwnd:
    min: 248
    init: 248
flow_control:
  sidechannel_mitigation: false
`)
	require.NoError(t, os.WriteFile(path, contents, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmFixedWindow, cfg.Congestion.Algorithm)
	assert.Equal(t, uint32(248), cfg.Congestion.Cwnd.Min)
	assert.Equal(t, uint32(31), cfg.Congestion.Cwnd.SendmeInc, "untouched keys keep their defaults")
	assert.False(t, cfg.FlowControl.SidechannelMitigation)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("GOCIRCUIT_REACTOR_STREAM_QUEUE_DEPTH", "4")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Reactor.StreamQueueDepth)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("congestion:\n  algorithm: cubic\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
