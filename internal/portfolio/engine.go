package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/internal/risk"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

var _ contracts.Allocator = (*Engine)(nil)

// annealSeedSalt decorrelates the annealer stream from the simulator stream
const annealSeedSalt int64 = 0x5DEECE66D

// Engine is the in-process quantitative allocator:
// Scenario Simulator → Weight Optimizer → Constructor.
// Safe for concurrent use; every call builds its own simulator and annealer.
type Engine struct {
	simulation risk.MonteCarloConfig
	annealing  AnnealConfig
	plan       PlanConfig
	logger     *logger.Logger
}

// NewEngine creates a local quantitative engine
func NewEngine(simulation risk.MonteCarloConfig, annealing AnnealConfig, plan PlanConfig, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		simulation: simulation,
		annealing:  annealing,
		plan:       plan,
		logger:     log.Component("quant-engine"),
	}
}

// Optimize runs the full quantitative pipeline for one request.
// An empty snapshot yields an empty plan without error.
func (e *Engine) Optimize(ctx context.Context, req contracts.OptimizationRequest) (*contracts.AllocationPlan, error) {
	start := time.Now()

	if err := req.ValidateParams(); err != nil {
		return nil, err
	}

	snapshot := req.Snapshot()
	if snapshot.Len() == 0 {
		e.logger.Warn("Empty market snapshot, returning empty plan")
		return emptyPlan(req), nil
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}

	simulation, annealing := e.simulation, e.annealing
	simulation.Seed, annealing.Seed = separateSeeds(simulation.Seed, annealing.Seed)

	est, err := risk.NewScenarioSimulator(simulation).Estimate(ctx, snapshot)
	if err != nil {
		return nil, fmt.Errorf("estimate returns: %w", err)
	}

	result, err := NewAnnealer(annealing, e.logger).Optimize(ctx, est.Mean, est.Covariance, req.RiskAversion())
	if err != nil {
		return nil, fmt.Errorf("optimize weights: %w", err)
	}

	plan, err := NewConstructor(e.plan, e.logger).Build(req, est, result)
	if err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}

	e.logger.WithFields(map[string]interface{}{
		"assets":         snapshot.Len(),
		"risk_tolerance": req.RiskTolerance,
		"lambda":         result.Lambda,
		"line_items":     plan.Count(),
		"duration_ms":    time.Since(start).Milliseconds(),
	}).Info("Local optimization completed")

	return plan, nil
}

func emptyPlan(req contracts.OptimizationRequest) *contracts.AllocationPlan {
	return &contracts.AllocationPlan{
		Allocation:           []contracts.AllocationLineItem{},
		RiskScore:            float64(req.RiskTolerance),
		TotalProjectedReturn: "0.00%",
		AgentSummary:         "No assets supplied; nothing to allocate.",
	}
}

// separateSeeds keeps the simulator and annealer on different random streams.
// Equal seeds (including both clock-seeded) would otherwise replay the same uniforms.
func separateSeeds(simSeed, annealSeed int64) (int64, int64) {
	if simSeed != annealSeed {
		return simSeed, annealSeed
	}
	if simSeed == 0 {
		simSeed = time.Now().UnixNano()
	}
	annealSeed = simSeed ^ annealSeedSalt
	if annealSeed == 0 {
		annealSeed = annealSeedSalt
	}
	return simSeed, annealSeed
}
