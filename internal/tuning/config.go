package tuning

import (
	"time"

	"github.com/wonny/aegis-allocator/internal/brain"
	"github.com/wonny/aegis-allocator/internal/portfolio"
	"github.com/wonny/aegis-allocator/internal/risk"
	"github.com/wonny/aegis-allocator/pkg/config"
)

// Config is the full set of engine tunables
type Config struct {
	Meta       Meta                   `yaml:"meta" json:"meta"`
	Simulation risk.MonteCarloConfig  `yaml:"simulation" json:"simulation"`
	Annealing  portfolio.AnnealConfig `yaml:"annealing" json:"annealing"`
	Plan       portfolio.PlanConfig   `yaml:"plan" json:"plan"`
	Tiers      Tiers                  `yaml:"tiers" json:"tiers"`
}

// Meta identifies a tuning profile
type Meta struct {
	ProfileID string `yaml:"profile_id" json:"profile_id"`
	Version   string `yaml:"version" json:"version"`
}

// Tiers orchestrator timeouts
type Tiers struct {
	RemoteTimeout      time.Duration `yaml:"remote_timeout" json:"remote_timeout"`
	LocalTimeout       time.Duration `yaml:"local_timeout" json:"local_timeout"`
	QualitativeTimeout time.Duration `yaml:"qualitative_timeout" json:"qualitative_timeout"`
}

// Default returns built-in tunables
func Default() Config {
	orch := brain.DefaultConfig()
	return Config{
		Meta:       Meta{ProfileID: "default", Version: "1"},
		Simulation: risk.DefaultMonteCarloConfig(),
		Annealing:  portfolio.DefaultAnnealConfig(),
		Plan:       portfolio.DefaultPlanConfig(),
		Tiers: Tiers{
			RemoteTimeout:      orch.RemoteTimeout,
			LocalTimeout:       orch.LocalTimeout,
			QualitativeTimeout: orch.QualitativeTimeout,
		},
	}
}

// FromEnv overlays environment configuration on the defaults
func FromEnv(cfg *config.Config) Config {
	t := Default()
	t.Meta.ProfileID = "env"

	t.Simulation.NumRuns = cfg.Simulation.Runs
	t.Simulation.Workers = cfg.Simulation.Workers
	t.Simulation.Seed = cfg.Annealing.Seed

	t.Annealing.Steps = cfg.Annealing.Steps
	t.Annealing.Chains = cfg.Annealing.Chains
	t.Annealing.InitialTemperature = cfg.Annealing.InitialTemperature
	t.Annealing.CoolingRate = cfg.Annealing.CoolingRate
	t.Annealing.Seed = cfg.Annealing.Seed

	t.Tiers.RemoteTimeout = cfg.Engine.Timeout
	t.Tiers.QualitativeTimeout = cfg.LLM.Timeout

	return t
}

// Orchestrator converts tier timeouts into orchestrator config
func (c *Config) Orchestrator() brain.Config {
	return brain.Config{
		RemoteTimeout:      c.Tiers.RemoteTimeout,
		LocalTimeout:       c.Tiers.LocalTimeout,
		QualitativeTimeout: c.Tiers.QualitativeTimeout,
	}
}
