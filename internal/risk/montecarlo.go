package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/aegis-allocator/internal/contracts"
)

// ctxCheckEvery rows between cancellation checks inside a batch
const ctxCheckEvery = 256

// ScenarioSimulator turns one noisy observation per asset into (μ, Σ)
// by repeated stochastic sampling.
// Not safe for concurrent use: build one per call.
type ScenarioSimulator struct {
	config MonteCarloConfig
	seed   int64
	rng    *rand.Rand
}

// NewScenarioSimulator creates a simulator. Seed 0 seeds from the clock.
func NewScenarioSimulator(config MonteCarloConfig) *ScenarioSimulator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &ScenarioSimulator{
		config: config,
		seed:   seed,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// WithSource replaces the master random source
func (s *ScenarioSimulator) WithSource(src rand.Source) *ScenarioSimulator {
	s.rng = rand.New(src)
	return s
}

// Estimate runs R scenarios and returns the sample mean vector and
// unbiased sample covariance matrix of the simulated returns.
//
// Per run and asset: vol = |chg/100| + floor, drift = chg/100 * damping,
// return = drift + vol * z with z ~ N(0,1) drawn by Box-Muller.
func (s *ScenarioSimulator) Estimate(ctx context.Context, snapshot *contracts.MarketSnapshot) (*ReturnEstimate, error) {
	if err := ValidateConfig(s.config); err != nil {
		return nil, err
	}

	n := snapshot.Len()
	runs := s.config.NumRuns
	est := &ReturnEstimate{
		Symbols: snapshot.Symbols(),
		Mean:    make([]float64, n),
		Runs:    runs,
		Seed:    s.seed,
	}
	if n == 0 {
		return est, nil
	}

	drift := make([]float64, n)
	vol := make([]float64, n)
	for i, a := range snapshot.Assets {
		change := a.ChangePercent / 100
		vol[i] = math.Abs(change) + s.config.VolFloor
		drift[i] = change * s.config.DriftDamping
	}

	samples := mat.NewDense(runs, n, nil)

	workers := s.config.Workers
	if workers > runs {
		workers = runs
	}
	batch := (runs + workers - 1) / workers

	// batch seeds are drawn up front so the output depends only on the master seed
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < runs; lo += batch {
		lo, hi := lo, min(lo+batch, runs)
		rng := rand.New(rand.NewSource(s.rng.Int63()))

		g.Go(func() error {
			for r := lo; r < hi; r++ {
				if (r-lo)%ctxCheckEvery == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				row := samples.RawRowView(r)
				for i := 0; i < n; i++ {
					row[i] = drift[i] + vol[i]*standardNormal(rng)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scenario simulation: %w", err)
	}

	col := make([]float64, runs)
	for j := 0; j < n; j++ {
		mat.Col(col, j, samples)
		est.Mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, samples, nil)

	est.Covariance = cov
	est.Samples = samples
	return est, nil
}

// standardNormal draws z ~ N(0,1) via Box-Muller from two uniforms
func standardNormal(rng *rand.Rand) float64 {
	u1 := 1 - rng.Float64() // (0, 1], keeps the log finite
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
