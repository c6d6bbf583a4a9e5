package tuning

import (
	"fmt"

	"github.com/wonny/aegis-allocator/internal/portfolio"
	"github.com/wonny/aegis-allocator/internal/risk"
)

// ValidationError names the offending section
type ValidationError struct {
	Field string
	Err   error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks every section
func Validate(cfg *Config) error {
	if cfg.Meta.ProfileID == "" {
		return ValidationError{"meta.profile_id", fmt.Errorf("required")}
	}
	if err := risk.ValidateConfig(cfg.Simulation); err != nil {
		return ValidationError{"simulation", err}
	}
	if err := portfolio.ValidateAnnealConfig(cfg.Annealing); err != nil {
		return ValidationError{"annealing", err}
	}
	if err := portfolio.ValidatePlanConfig(cfg.Plan); err != nil {
		return ValidationError{"plan", err}
	}
	if cfg.Tiers.RemoteTimeout <= 0 {
		return ValidationError{"tiers.remote_timeout", fmt.Errorf("must be > 0")}
	}
	if cfg.Tiers.LocalTimeout < 0 || cfg.Tiers.QualitativeTimeout < 0 {
		return ValidationError{"tiers", fmt.Errorf("timeouts must not be negative")}
	}
	return nil
}
