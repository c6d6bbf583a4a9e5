package portfolio

import (
	"fmt"
	"math"
)

// PlanConfig defines plan construction parameters
// ⭐ SSOT: post-processing constants live here
type PlanConfig struct {
	MaterialityThreshold float64 `json:"materiality_threshold" yaml:"materiality_threshold"` // min retained weight (0.01 = 1%)
	PeriodsPerYear       int     `json:"periods_per_year" yaml:"periods_per_year"`           // μ is treated as a monthly-equivalent return
	VaRConfidence        float64 `json:"var_confidence" yaml:"var_confidence"`
	GroupByClass         bool    `json:"group_by_class" yaml:"group_by_class"` // one line item per AssetObservation.Type
}

// DefaultPlanConfig returns default configuration
func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		MaterialityThreshold: 0.01,
		PeriodsPerYear:       12,
		VaRConfidence:        0.95,
		GroupByClass:         false,
	}
}

// ValidatePlanConfig checks plan settings
func ValidatePlanConfig(config PlanConfig) error {
	if math.IsNaN(config.MaterialityThreshold) || config.MaterialityThreshold < 0 || config.MaterialityThreshold >= 1 {
		return fmt.Errorf("%w: materiality_threshold must be in [0, 1)", ErrInvalidConfig)
	}
	if config.PeriodsPerYear < 1 {
		return fmt.Errorf("%w: periods_per_year must be >= 1", ErrInvalidConfig)
	}
	if !(config.VaRConfidence > 0 && config.VaRConfidence < 1) {
		return fmt.Errorf("%w: var_confidence must be in (0, 1)", ErrInvalidConfig)
	}
	return nil
}
