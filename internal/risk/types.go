package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// Monte Carlo Types
// =============================================================================

// MonteCarloConfig scenario simulation settings
// ⭐ SSOT: every constant of the simulator lives here so tests can shrink it
type MonteCarloConfig struct {
	NumRuns      int     `json:"num_runs" yaml:"num_runs"`           // R, default 2000
	VolFloor     float64 `json:"vol_floor" yaml:"vol_floor"`         // noise floor added to |change|, default 0.01
	DriftDamping float64 `json:"drift_damping" yaml:"drift_damping"` // drift = change * damping, default 0.1
	Workers      int     `json:"workers" yaml:"workers"`             // parallel batches, default 4
	Seed         int64   `json:"seed" yaml:"seed"`                   // 0 = time seeded
}

// DefaultMonteCarloConfig default scenario settings
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		NumRuns:      2000,
		VolFloor:     0.01,
		DriftDamping: 0.1,
		Workers:      4,
		Seed:         0,
	}
}

// ReturnEstimate joint return distribution estimated from the simulated runs
// ⭐ transient: built per call, discarded after the plan is produced
type ReturnEstimate struct {
	Symbols    []string      `json:"symbols"`
	Mean       []float64     `json:"mean"` // μ, length N
	Covariance *mat.SymDense `json:"-"`    // Σ, N×N, nil when N == 0
	Samples    *mat.Dense    `json:"-"`    // R×N simulated returns, nil when N == 0
	Runs       int           `json:"runs"`
	Seed       int64         `json:"seed"` // master seed actually used
}

// N returns the asset count
func (e *ReturnEstimate) N() int {
	return len(e.Mean)
}

// Cov returns Σ[i][j]
func (e *ReturnEstimate) Cov(i, j int) float64 {
	return e.Covariance.At(i, j)
}

// Volatility returns the simulated per-period standard deviation of asset i
func (e *ReturnEstimate) Volatility(i int) float64 {
	return math.Sqrt(e.Covariance.At(i, i))
}

// CovarianceRows copies Σ into a row-major [][]float64 (for JSON and logging)
func (e *ReturnEstimate) CovarianceRows() [][]float64 {
	n := e.N()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = e.Covariance.At(i, j)
		}
	}
	return rows
}

// =============================================================================
// VaR/CVaR Types
// =============================================================================

// VaRResult VaR calculation result
// ⭐ SSOT: losses are positive (VaR=0.05 → up to 5% loss at the confidence level)
type VaRResult struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
}

// RiskProfile summary of a weight vector against a ReturnEstimate
type RiskProfile struct {
	ExpectedReturn float64   `json:"expected_return"` // wᵀμ, per period
	Variance       float64   `json:"variance"`        // wᵀΣw
	Volatility     float64   `json:"volatility"`
	Tail           VaRResult `json:"tail"`
}
