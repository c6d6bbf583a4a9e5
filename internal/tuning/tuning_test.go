package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-allocator/internal/portfolio"
	"github.com/wonny/aegis-allocator/internal/risk"
	"github.com/wonny/aegis-allocator/pkg/config"
)

const sampleYAML = `
meta:
  profile_id: fast-ci
  version: "2"
simulation:
  num_runs: 500
  seed: 42
annealing:
  steps: 250
  chains: 2
  seed: 42
plan:
  group_by_class: true
tiers:
  remote_timeout: 3s
`

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "fast-ci", cfg.Meta.ProfileID)
	assert.Equal(t, 500, cfg.Simulation.NumRuns)
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
	assert.Equal(t, 0.01, cfg.Simulation.VolFloor, "unset keys keep defaults")
	assert.Equal(t, 250, cfg.Annealing.Steps)
	assert.Equal(t, 0.95, cfg.Annealing.CoolingRate)
	assert.True(t, cfg.Plan.GroupByClass)
	assert.Equal(t, 0.01, cfg.Plan.MaterialityThreshold)
	assert.Equal(t, 3*time.Second, cfg.Tiers.RemoteTimeout)
	assert.Equal(t, 3*time.Second, cfg.Orchestrator().RemoteTimeout)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte("simulation:\n  num_runz: 10\n"))
	assert.Error(t, err)
}

func TestParse_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
		is    error
	}{
		{"runs", "simulation:\n  num_runs: 1\n", "simulation", risk.ErrInvalidConfig},
		{"cooling", "annealing:\n  cooling_rate: 1.5\n", "annealing", portfolio.ErrInvalidConfig},
		{"materiality", "plan:\n  materiality_threshold: 2\n", "plan", portfolio.ErrInvalidConfig},
		{"timeout", "tiers:\n  remote_timeout: 0s\n", "tiers.remote_timeout", nil},
		{"profile", "meta:\n  profile_id: \"\"\n", "meta.profile_id", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var verr ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, raw, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sampleYAML, string(raw))
	assert.Equal(t, "fast-ci", cfg.Meta.ProfileID)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestHash(t *testing.T) {
	a, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	b, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)

	assert.Len(t, ha, 64)
	assert.Equal(t, ha, hb)

	b.Annealing.Steps++
	hc, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestFromEnv(t *testing.T) {
	env := &config.Config{
		Engine:     config.EngineConfig{Timeout: 7 * time.Second},
		LLM:        config.LLMConfig{Timeout: 20 * time.Second},
		Simulation: config.SimulationConfig{Runs: 900, Workers: 2},
		Annealing: config.AnnealingConfig{
			Steps: 300, Chains: 3, InitialTemperature: 50, CoolingRate: 0.9, Seed: 8,
		},
	}

	cfg := FromEnv(env)
	require.NoError(t, Validate(&cfg))

	assert.Equal(t, 900, cfg.Simulation.NumRuns)
	assert.Equal(t, int64(8), cfg.Simulation.Seed)
	assert.Equal(t, 3, cfg.Annealing.Chains)
	assert.Equal(t, 0.9, cfg.Annealing.CoolingRate)
	assert.Equal(t, 7*time.Second, cfg.Tiers.RemoteTimeout)
	assert.Equal(t, 20*time.Second, cfg.Tiers.QualitativeTimeout)
}
