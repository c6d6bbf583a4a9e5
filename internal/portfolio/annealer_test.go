package portfolio

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/aegis-allocator/pkg/logger"
)

func testAnnealConfig(seed int64) AnnealConfig {
	cfg := DefaultAnnealConfig()
	cfg.Steps = 2000
	cfg.Chains = 4
	cfg.Seed = seed
	return cfg
}

func twoAssetProblem() ([]float64, *mat.SymDense) {
	mu := []float64{0.02, 0.005}
	sigma := mat.NewSymDense(2, []float64{
		0.04, 0,
		0, 0.001,
	})
	return mu, sigma
}

func fourAssetProblem() ([]float64, *mat.SymDense) {
	mu := []float64{0.010, 0.004, -0.002, 0.007}
	sigma := mat.NewSymDense(4, []float64{
		0.0100, 0.0010, 0.0000, 0.0005,
		0.0010, 0.0040, 0.0002, 0.0000,
		0.0000, 0.0002, 0.0020, 0.0001,
		0.0005, 0.0000, 0.0001, 0.0060,
	})
	return mu, sigma
}

func assertSimplex(t *testing.T, w []float64) {
	t.Helper()
	var sum float64
	for i, v := range w {
		assert.GreaterOrEqual(t, v, 0.0, "weight %d negative", i)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func variance(w []float64, sigma mat.Symmetric) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, sigma, v)
}

// =============================================================================
// Normalize
// =============================================================================

func TestNormalize(t *testing.T) {
	w := Normalize([]float64{2, 1, 1})
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0.25}, w, 1e-15)

	normalised := []float64{0.5, 0.25, 0.25}
	assert.Equal(t, []float64{0.5, 0.25, 0.25}, Normalize(normalised))

	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, Normalize([]float64{0, 0, 0, 0}))
	assert.Equal(t, []float64{0.5, 0.5}, Normalize([]float64{-1, 0.5}))
	assert.Empty(t, Normalize([]float64{}))
}

func TestNormalize_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 100; trial++ {
		w := make([]float64, 1+rng.Intn(10))
		for i := range w {
			w[i] = rng.Float64()
		}

		once := append([]float64(nil), Normalize(w)...)
		twice := Normalize(append([]float64(nil), once...))
		assert.InDeltaSlice(t, once, twice, 1e-15)
	}
}

// =============================================================================
// Energy
// =============================================================================

func TestEnergy(t *testing.T) {
	mu, sigma := twoAssetProblem()

	// w = [0.5, 0.5]: ret = 0.0125, var = 0.25*0.04 + 0.25*0.001 = 0.01025
	e := Energy([]float64{0.5, 0.5}, mu, sigma, 1.0)
	assert.InDelta(t, -(0.0125 - 0.01025), e, 1e-15)

	// zero variance stays defined
	zero := mat.NewSymDense(2, nil)
	assert.InDelta(t, -0.0125, Energy([]float64{0.5, 0.5}, mu, zero, 1.0), 1e-15)
}

func TestEnergy_Clamped(t *testing.T) {
	huge := mat.NewSymDense(1, []float64{math.MaxFloat64})
	assert.Equal(t, MaxEnergyMagnitude, Energy([]float64{1}, []float64{0}, huge, 1.0))

	assert.Equal(t, -MaxEnergyMagnitude, Energy([]float64{1}, []float64{1e300}, mat.NewSymDense(1, nil), 1.0))

	nan := mat.NewSymDense(1, []float64{math.NaN()})
	assert.Equal(t, MaxEnergyMagnitude, Energy([]float64{1}, []float64{0}, nan, 1.0))
}

// =============================================================================
// Annealer
// =============================================================================

func TestAnnealer_WeightsOnSimplex(t *testing.T) {
	mu, sigma := fourAssetProblem()

	for seed := int64(1); seed <= 5; seed++ {
		result, err := NewAnnealer(testAnnealConfig(seed), logger.Nop()).Optimize(context.Background(), mu, sigma, 0.5)
		require.NoError(t, err)

		assertSimplex(t, result.Weights)
		for _, ch := range result.Chains {
			assertSimplex(t, ch.Weights)
		}
	}
}

func TestAnnealer_TraceNonIncreasing(t *testing.T) {
	mu, sigma := fourAssetProblem()

	result, err := NewAnnealer(testAnnealConfig(8), logger.Nop()).Optimize(context.Background(), mu, sigma, 0.3)
	require.NoError(t, err)
	require.Len(t, result.Chains, 4)

	for _, ch := range result.Chains {
		require.Len(t, ch.Trace, 2000)
		for k := 1; k < len(ch.Trace); k++ {
			assert.LessOrEqual(t, ch.Trace[k], ch.Trace[k-1], "chain %d step %d", ch.Chain, k)
		}
		assert.Equal(t, ch.BestEnergy, ch.Trace[len(ch.Trace)-1])
		assert.Equal(t, 2000, ch.Accepted+ch.Rejected)
	}
}

func TestAnnealer_GlobalBestAcrossChains(t *testing.T) {
	mu, sigma := fourAssetProblem()

	result, err := NewAnnealer(testAnnealConfig(13), logger.Nop()).Optimize(context.Background(), mu, sigma, 0.5)
	require.NoError(t, err)

	for _, ch := range result.Chains {
		assert.LessOrEqual(t, result.Energy, ch.BestEnergy)
	}
	assert.Equal(t, result.Chains[result.BestChain].Weights, result.Weights)
	assert.GreaterOrEqual(t, result.EnergyStdDev, 0.0)
	assert.InDelta(t, Energy(result.Weights, mu, sigma, 0.5), result.Energy, 1e-12)
}

func TestAnnealer_Deterministic(t *testing.T) {
	mu, sigma := fourAssetProblem()

	a, err := NewAnnealer(testAnnealConfig(77), logger.Nop()).Optimize(context.Background(), mu, sigma, 0.5)
	require.NoError(t, err)
	b, err := NewAnnealer(testAnnealConfig(77), logger.Nop()).Optimize(context.Background(), mu, sigma, 0.5)
	require.NoError(t, err)

	assert.Equal(t, a.Weights, b.Weights)
	assert.Equal(t, a.Energy, b.Energy)

	c, err := NewAnnealer(testAnnealConfig(0), logger.Nop()).WithSource(rand.NewSource(77)).Optimize(context.Background(), mu, sigma, 0.5)
	require.NoError(t, err)
	assert.Equal(t, a.Weights, c.Weights)
}

func TestAnnealer_RiskAversionMonotonic(t *testing.T) {
	mu, sigma := twoAssetProblem()

	var cautious, aggressive float64
	const trials = 10
	for seed := int64(1); seed <= trials; seed++ {
		cfg := testAnnealConfig(seed)
		cfg.Chains = 1

		low, err := NewAnnealer(cfg, nil).Optimize(context.Background(), mu, sigma, 0.1)
		require.NoError(t, err)
		high, err := NewAnnealer(cfg, nil).Optimize(context.Background(), mu, sigma, 1.0)
		require.NoError(t, err)

		aggressive += variance(low.Weights, sigma)
		cautious += variance(high.Weights, sigma)
	}

	assert.LessOrEqual(t, cautious/trials, aggressive/trials)
}

func TestAnnealer_ConvergesNearAnalyticOptimum(t *testing.T) {
	mu, sigma := twoAssetProblem()

	// λ=1: dE/da = 0.082a − 0.017 = 0 → a ≈ 0.207
	result, err := NewAnnealer(testAnnealConfig(5), nil).Optimize(context.Background(), mu, sigma, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.207, result.Weights[0], 0.08)

	// λ=0.1: E strictly decreasing in a → corner solution on A
	result, err = NewAnnealer(testAnnealConfig(5), nil).Optimize(context.Background(), mu, sigma, 0.1)
	require.NoError(t, err)
	assert.Greater(t, result.Weights[0], 0.8)
}

func TestAnnealer_EmptyAndSingleAsset(t *testing.T) {
	a := NewAnnealer(testAnnealConfig(1), nil)

	empty, err := a.Optimize(context.Background(), []float64{}, nil, 0.5)
	require.NoError(t, err)
	assert.Empty(t, empty.Weights)

	single, err := a.Optimize(context.Background(), []float64{0.01}, mat.NewSymDense(1, []float64{0.0004}), 0.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0}, single.Weights)
	assert.Empty(t, single.Chains)
}

func TestAnnealer_ZeroSteps(t *testing.T) {
	mu, sigma := fourAssetProblem()
	cfg := testAnnealConfig(1)
	cfg.Steps = 0

	result, err := NewAnnealer(cfg, nil).Optimize(context.Background(), mu, sigma, 0.5)
	require.NoError(t, err)
	assert.Equal(t, Uniform(4), result.Weights)
}

func TestAnnealer_Errors(t *testing.T) {
	mu, sigma := fourAssetProblem()

	_, err := NewAnnealer(testAnnealConfig(1), nil).Optimize(context.Background(), mu[:3], sigma, 0.5)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewAnnealer(testAnnealConfig(1), nil).Optimize(context.Background(), mu, sigma, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bad := testAnnealConfig(1)
	bad.CoolingRate = 1
	_, err = NewAnnealer(bad, nil).Optimize(context.Background(), mu, sigma, 0.5)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewAnnealer(testAnnealConfig(1), nil).Optimize(ctx, mu, sigma, 0.5)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAccept(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	assert.True(t, accept(-1, 10, rng))
	assert.True(t, accept(0, 10, rng))

	// cooled to zero: flat moves still taken, uphill never
	assert.True(t, accept(0, 0, rng))
	assert.True(t, accept(-0.5, 0, rng))
	assert.False(t, accept(1e-12, 0, rng))

	// exp(-1e6) underflows to 0
	assert.False(t, accept(1, 1e-6, rng))
}

func TestAnnealer_CooledPastUnderflow(t *testing.T) {
	cfg := DefaultAnnealConfig()
	cfg.Steps = 16000
	cfg.Chains = 1
	cfg.Seed = 5

	mu := []float64{0.01, 0.01}
	sigma := mat.NewSymDense(2, []float64{0.02, 0, 0, 0.02})

	result, err := NewAnnealer(cfg, logger.Nop()).Optimize(context.Background(), mu, sigma, 0.5)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.Weights[0]+result.Weights[1], 1e-9)
	assert.False(t, math.IsNaN(result.Energy))
}

func TestValidateAnnealConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*AnnealConfig)
		wantErr bool
	}{
		{"default", func(c *AnnealConfig) {}, false},
		{"zero steps allowed", func(c *AnnealConfig) { c.Steps = 0 }, false},
		{"negative steps", func(c *AnnealConfig) { c.Steps = -1 }, true},
		{"zero temperature", func(c *AnnealConfig) { c.InitialTemperature = 0 }, true},
		{"cooling rate zero", func(c *AnnealConfig) { c.CoolingRate = 0 }, true},
		{"transfer too large", func(c *AnnealConfig) { c.MaxTransfer = 1.5 }, true},
		{"no chains", func(c *AnnealConfig) { c.Chains = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAnnealConfig()
			tt.modify(&cfg)
			err := ValidateAnnealConfig(cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
