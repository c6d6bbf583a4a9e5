package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/aegis-allocator/pkg/logger"
)

var (
	ErrInvalidConfig = errors.New("invalid annealing configuration")
	ErrShapeMismatch = errors.New("mean vector and covariance matrix disagree")
)

// =============================================================================
// Config
// =============================================================================

// AnnealConfig simulated annealing settings
// ⭐ SSOT: optimizer constants live here
type AnnealConfig struct {
	Steps              int     `json:"steps" yaml:"steps"`                             // K, fixed iteration count
	InitialTemperature float64 `json:"initial_temperature" yaml:"initial_temperature"` // T₀
	CoolingRate        float64 `json:"cooling_rate" yaml:"cooling_rate"`               // T ← T·r
	MaxTransfer        float64 `json:"max_transfer" yaml:"max_transfer"`               // max weight moved per step
	Chains             int     `json:"chains" yaml:"chains"`                           // independent parallel chains
	Seed               int64   `json:"seed" yaml:"seed"`                               // 0 = time seeded
}

// DefaultAnnealConfig returns default configuration
func DefaultAnnealConfig() AnnealConfig {
	return AnnealConfig{
		Steps:              1000,
		InitialTemperature: 100,
		CoolingRate:        0.95,
		MaxTransfer:        0.1,
		Chains:             4,
		Seed:               0,
	}
}

// ValidateAnnealConfig checks annealing settings
func ValidateAnnealConfig(config AnnealConfig) error {
	if config.Steps < 0 {
		return fmt.Errorf("%w: steps must be >= 0 (got %d)", ErrInvalidConfig, config.Steps)
	}
	if !(config.InitialTemperature > 0) || math.IsInf(config.InitialTemperature, 0) {
		return fmt.Errorf("%w: initial_temperature must be positive", ErrInvalidConfig)
	}
	if !(config.CoolingRate > 0 && config.CoolingRate < 1) {
		return fmt.Errorf("%w: cooling_rate must be in (0, 1) (got %v)", ErrInvalidConfig, config.CoolingRate)
	}
	if !(config.MaxTransfer > 0 && config.MaxTransfer <= 1) {
		return fmt.Errorf("%w: max_transfer must be in (0, 1] (got %v)", ErrInvalidConfig, config.MaxTransfer)
	}
	if config.Chains < 1 {
		return fmt.Errorf("%w: chains must be >= 1 (got %d)", ErrInvalidConfig, config.Chains)
	}
	return nil
}

// =============================================================================
// Results
// =============================================================================

// ChainResult outcome of one annealing chain
type ChainResult struct {
	Chain      int       `json:"chain"`
	Seed       int64     `json:"seed"`
	Weights    []float64 `json:"weights"`
	BestEnergy float64   `json:"best_energy"`
	Trace      []float64 `json:"trace"` // best energy after each step, non-increasing
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
}

// AnnealResult global best over all chains
type AnnealResult struct {
	Weights      []float64     `json:"weights"`
	Energy       float64       `json:"energy"`
	BestChain    int           `json:"best_chain"`
	Chains       []ChainResult `json:"chains"`
	EnergyMean   float64       `json:"energy_mean"`   // across chain bests
	EnergyStdDev float64       `json:"energy_stddev"` // across chain bests
	Lambda       float64       `json:"lambda"`
}

// =============================================================================
// Annealer
// =============================================================================

// Annealer searches the probability simplex for the weight vector that
// minimises Energy. Not safe for concurrent use: build one per call.
type Annealer struct {
	config AnnealConfig
	rng    *rand.Rand
	logger *logger.Logger
}

// NewAnnealer creates an annealer. Seed 0 seeds from the clock.
func NewAnnealer(config AnnealConfig, log *logger.Logger) *Annealer {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Annealer{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
		logger: log,
	}
}

// WithSource replaces the master random source
func (a *Annealer) WithSource(src rand.Source) *Annealer {
	a.rng = rand.New(src)
	return a
}

// Optimize returns the lowest-energy weight vector found across all chains.
// N = 0 yields an empty result and N = 1 yields [1.0] without annealing.
func (a *Annealer) Optimize(ctx context.Context, mu []float64, sigma mat.Symmetric, lambda float64) (*AnnealResult, error) {
	if err := ValidateAnnealConfig(a.config); err != nil {
		return nil, err
	}
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || lambda < 0 {
		return nil, fmt.Errorf("%w: lambda must be a finite non-negative number (got %v)", ErrInvalidConfig, lambda)
	}

	n := len(mu)
	switch {
	case n == 0:
		return &AnnealResult{Weights: []float64{}, Chains: []ChainResult{}, Lambda: lambda}, nil
	case sigma == nil || sigma.SymmetricDim() != n:
		return nil, fmt.Errorf("%w: %d means", ErrShapeMismatch, n)
	case n == 1:
		w := []float64{1.0}
		return &AnnealResult{
			Weights: w,
			Energy:  Energy(w, mu, sigma, lambda),
			Chains:  []ChainResult{},
			Lambda:  lambda,
		}, nil
	}

	chains := make([]ChainResult, a.config.Chains)

	// chain seeds drawn up front: the result depends only on the master seed
	g, gctx := errgroup.WithContext(ctx)
	for c := range chains {
		c, seed := c, a.rng.Int63()
		g.Go(func() error {
			result, err := a.runChain(gctx, seed, mu, sigma, lambda)
			if err != nil {
				return err
			}
			result.Chain = c
			chains[c] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("annealing: %w", err)
	}

	best := 0
	energies := make(stats.Float64Data, len(chains))
	for i, ch := range chains {
		energies[i] = ch.BestEnergy
		if ch.BestEnergy < chains[best].BestEnergy {
			best = i
		}
	}

	mean, _ := stats.Mean(energies)
	stdDev, _ := stats.StandardDeviation(energies)

	result := &AnnealResult{
		Weights:      append([]float64(nil), chains[best].Weights...),
		Energy:       chains[best].BestEnergy,
		BestChain:    best,
		Chains:       chains,
		EnergyMean:   mean,
		EnergyStdDev: stdDev,
		Lambda:       lambda,
	}

	a.logger.WithFields(map[string]interface{}{
		"assets":        n,
		"chains":        len(chains),
		"steps":         a.config.Steps,
		"lambda":        lambda,
		"best_chain":    best,
		"best_energy":   result.Energy,
		"energy_stddev": stdDev,
	}).Debug("Annealing completed")

	return result, nil
}

// runChain one sequential annealing chain starting from uniform weights
func (a *Annealer) runChain(ctx context.Context, seed int64, mu []float64, sigma mat.Symmetric, lambda float64) (ChainResult, error) {
	rng := rand.New(rand.NewSource(seed))
	n := len(mu)

	current := Uniform(n)
	currentEnergy := Energy(current, mu, sigma, lambda)
	best := append([]float64(nil), current...)
	bestEnergy := currentEnergy

	candidate := make([]float64, n)
	temperature := a.config.InitialTemperature

	result := ChainResult{
		Seed:  seed,
		Trace: make([]float64, 0, a.config.Steps),
	}

	for step := 0; step < a.config.Steps; step++ {
		if step%256 == 0 {
			if err := ctx.Err(); err != nil {
				return result, err
			}
		}

		from := rng.Intn(n)
		to := rng.Intn(n - 1)
		if to >= from {
			to++
		}
		transfer := (rng.Float64()*2 - 1) * a.config.MaxTransfer

		copy(candidate, current)
		candidate[from] -= transfer
		candidate[to] += transfer

		if candidate[from] < 0 || candidate[to] < 0 {
			result.Rejected++
		} else {
			Normalize(candidate)
			candidateEnergy := Energy(candidate, mu, sigma, lambda)
			delta := candidateEnergy - currentEnergy

			if accept(delta, temperature, rng) {
				current, candidate = candidate, current
				currentEnergy = candidateEnergy
				result.Accepted++

				if currentEnergy < bestEnergy {
					copy(best, current)
					bestEnergy = currentEnergy
				}
			} else {
				result.Rejected++
			}
		}

		temperature *= a.config.CoolingRate
		result.Trace = append(result.Trace, bestEnergy)
	}

	result.Weights = best
	result.BestEnergy = bestEnergy
	return result, nil
}

// accept is the Metropolis rule. Non-positive deltas are always taken, which also
// covers a temperature that has cooled to zero.
func accept(delta, temperature float64, rng *rand.Rand) bool {
	if delta <= 0 {
		return true
	}
	if temperature <= 0 {
		return false
	}
	return rng.Float64() < math.Exp(-delta/temperature)
}
