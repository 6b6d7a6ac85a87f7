package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"kfsim-go/kalman"
	"kfsim-go/sim"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kfsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 10.0, cfg.Loop.UpdateHz)
	require.Equal(t, sim.DefaultControls(), cfg.Controls)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  httpPort: 9000
loop:
  updateHz: 20
controls:
  noise: 12
  showPrediction: false
  matrices:
    R: [[2,0,0,0],[0,2,0,0],[0,0,2,0],[0,0,0,2]]
seed: 42
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Server.HTTPPort)
	require.Equal(t, DefaultUDPPort, cfg.Server.UDPPort)
	require.Equal(t, 20.0, cfg.Loop.UpdateHz)
	require.Equal(t, DefaultSampleHz, cfg.Loop.SampleHz)
	require.Equal(t, 12.0, cfg.Controls.NoiseAmount)
	require.False(t, cfg.Controls.ShowPrediction)
	require.Equal(t, kalman.Diagonal(2, 2, 2, 2), cfg.Controls.Matrices.R)
	require.Equal(t, kalman.Identity(), cfg.Controls.Matrices.H)
	require.Equal(t, uint64(42), cfg.Seed)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, "loop:\n  updateHz: 0\n")
	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidParameter)

	path = writeFile(t, "controls:\n  noise: -3\n")
	_, err = Load(path)
	require.ErrorIs(t, err, ErrInvalidParameter)

	path = writeFile(t, "server: [not, a, map]\n")
	_, err = Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateUpdate(t *testing.T) {
	neg := -1.0
	require.ErrorIs(t, ValidateUpdate(sim.ControlsUpdate{PredictionSeconds: &neg}), ErrInvalidParameter)
	nan := math.NaN()
	require.ErrorIs(t, ValidateUpdate(sim.ControlsUpdate{NoiseAmount: &nan}), ErrInvalidParameter)
	zero := 0.0
	require.ErrorIs(t, ValidateUpdate(sim.ControlsUpdate{Timestep: &zero}), ErrInvalidParameter)

	m := sim.DefaultMatrices(sim.DefaultTimestep)
	m.Q[1][1] = math.Inf(1)
	require.ErrorIs(t, ValidateUpdate(sim.ControlsUpdate{Matrices: &m}), ErrInvalidParameter)

	ok := 3.0
	require.NoError(t, ValidateUpdate(sim.ControlsUpdate{NoiseAmount: &ok, PredictionSeconds: &zero}))
}

func TestLoadTimestep(t *testing.T) {
	cfg, err := Load(writeFile(t, "controls:\n  timestep: 0.05\n"))
	require.NoError(t, err)
	require.Equal(t, kalman.TransitionMatrix(0.05), cfg.Controls.Matrices.A)

	cfg, err = Load(writeFile(t, "controls:\n  matrices:\n    A: [[1,0,0.1,0],[0,1,0,0.1],[0,0,1,0],[0,0,0,1]]\n"))
	require.NoError(t, err)
	require.Equal(t, 0.1, cfg.Controls.Timestep)
}
