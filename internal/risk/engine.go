package risk

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// =============================================================================
// Config validation
// =============================================================================

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrShapeMismatch = errors.New("weight vector does not match estimate")
)

// ValidateConfig checks simulator settings
func ValidateConfig(config MonteCarloConfig) error {
	if config.NumRuns < 2 {
		return fmt.Errorf("%w: num_runs must be >= 2 (got %d)", ErrInvalidConfig, config.NumRuns)
	}
	if config.VolFloor < 0 || math.IsNaN(config.VolFloor) || math.IsInf(config.VolFloor, 0) {
		return fmt.Errorf("%w: vol_floor must be a finite non-negative number", ErrInvalidConfig)
	}
	if math.IsNaN(config.DriftDamping) || math.IsInf(config.DriftDamping, 0) {
		return fmt.Errorf("%w: drift_damping must be finite", ErrInvalidConfig)
	}
	if config.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1 (got %d)", ErrInvalidConfig, config.Workers)
	}
	return nil
}

// =============================================================================
// Portfolio projection (pure)
// =============================================================================

// PortfolioReturns projects every simulated run onto the weight vector:
// r_p = Samples · w, one entry per run.
func PortfolioReturns(est *ReturnEstimate, weights []float64) ([]float64, error) {
	if est == nil || est.N() == 0 {
		return []float64{}, nil
	}
	if len(weights) != est.N() {
		return nil, fmt.Errorf("%w: %d weights for %d assets", ErrShapeMismatch, len(weights), est.N())
	}

	runs, _ := est.Samples.Dims()
	out := mat.NewVecDense(runs, nil)
	out.MulVec(est.Samples, mat.NewVecDense(len(weights), weights))

	return out.RawVector().Data, nil
}

// Profile summarises a weight vector against an estimate:
// expected return wᵀμ, variance wᵀΣw and the simulated VaR/CVaR at confidence.
func Profile(est *ReturnEstimate, weights []float64, confidence float64) (RiskProfile, error) {
	if est == nil || est.N() == 0 {
		return RiskProfile{}, nil
	}

	returns, err := PortfolioReturns(est, weights)
	if err != nil {
		return RiskProfile{}, err
	}

	w := mat.NewVecDense(len(weights), weights)
	variance := mat.Inner(w, est.Covariance, w)
	if variance < 0 {
		variance = 0 // rounding on near-singular Σ
	}

	tail := CalculateVaR(returns, confidence)

	return RiskProfile{
		ExpectedReturn: stat.Mean(returns, nil),
		Variance:       variance,
		Volatility:     math.Sqrt(variance),
		Tail:           tail,
	}, nil
}
