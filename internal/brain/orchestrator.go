package brain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

// Tier identifies which allocator produced a plan
type Tier string

const (
	TierRemote      Tier = "remote"
	TierLocal       Tier = "local"
	TierQualitative Tier = "qualitative"
)

// State of one allocation call
type State string

const (
	StateAwaitingSnapshot  State = "awaiting_snapshot"
	StateTryingRemote      State = "trying_remote"
	StateTryingLocal       State = "trying_local"
	StateTryingQualitative State = "trying_qualitative"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Config bounds each tier
type Config struct {
	RemoteTimeout      time.Duration // hard bound on the remote call
	LocalTimeout       time.Duration // 0 = caller's context only
	QualitativeTimeout time.Duration // 0 = caller's context only
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RemoteTimeout:      10 * time.Second,
		LocalTimeout:       30 * time.Second,
		QualitativeTimeout: 60 * time.Second,
	}
}

// Attempt one tier invocation
type Attempt struct {
	Tier     Tier          `json:"tier"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Outcome a successful allocation and how it was reached
type Outcome struct {
	RequestID string                    `json:"requestId"`
	Tier      Tier                      `json:"tier"`
	State     State                     `json:"state"`
	Attempts  []Attempt                 `json:"attempts"`
	Duration  time.Duration             `json:"duration"`
	Snapshot  *contracts.MarketSnapshot `json:"-"`
	Plan      *contracts.AllocationPlan `json:"plan"`
}

// Orchestrator runs the tiered fallback:
// Remote → Local → Qualitative
// ⭐ SSOT: tier ordering and failure policy live here only
//
// A nil tier is skipped. Remote and local failures are recovered; only the
// qualitative tier's failure is returned. There are no retries and no partial plans.
type Orchestrator struct {
	snapshots   contracts.SnapshotProvider
	remote      contracts.Allocator
	local       contracts.Allocator
	qualitative contracts.Reasoner
	config      Config
	logger      *logger.Logger
}

// NewOrchestrator creates a new orchestrator. Pass untyped nil for absent tiers.
func NewOrchestrator(
	snapshots contracts.SnapshotProvider,
	remote contracts.Allocator,
	local contracts.Allocator,
	qualitative contracts.Reasoner,
	config Config,
	log *logger.Logger,
) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{
		snapshots:   snapshots,
		remote:      remote,
		local:       local,
		qualitative: qualitative,
		config:      config,
		logger:      log.Component("orchestrator"),
	}
}

// Allocate acquires the current snapshot and runs the tiers
func (o *Orchestrator) Allocate(ctx context.Context, capital float64, riskTolerance int) (*Outcome, error) {
	if o.snapshots == nil {
		return nil, fmt.Errorf("%w: no snapshot provider configured", contracts.ErrInvalidRequest)
	}

	snapshot, err := o.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire market snapshot: %w", err)
	}

	return o.AllocateSnapshot(ctx, capital, riskTolerance, snapshot)
}

// AllocateSnapshot runs the tiers against a snapshot the caller already holds
func (o *Orchestrator) AllocateSnapshot(ctx context.Context, capital float64, riskTolerance int, snapshot *contracts.MarketSnapshot) (*Outcome, error) {
	start := time.Now()

	outcome := &Outcome{
		RequestID: uuid.New().String(),
		State:     StateAwaitingSnapshot,
		Attempts:  make([]Attempt, 0, 3),
		Snapshot:  snapshot,
	}
	log := o.logger.WithField("request_id", outcome.RequestID)

	req := contracts.NewOptimizationRequest(capital, riskTolerance, snapshot)
	if err := req.Validate(); err != nil {
		log.WithError(err).Warn("Rejected degenerate allocation request")
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"capital":        capital,
		"risk_tolerance": riskTolerance,
		"assets":         snapshot.Len(),
	}).Info("Starting allocation")

	var lastErr error

	// Tier 1: remote quantitative engine
	if o.remote != nil {
		outcome.State = StateTryingRemote
		plan, err := o.tryAllocator(ctx, outcome, log, TierRemote, o.remote, req, o.config.RemoteTimeout)
		if err == nil {
			return o.done(outcome, log, TierRemote, plan, start), nil
		}
		lastErr = err
	}

	// Tier 2: in-process engine
	if o.local != nil {
		outcome.State = StateTryingLocal
		plan, err := o.tryAllocator(ctx, outcome, log, TierLocal, o.local, req, o.config.LocalTimeout)
		if err == nil {
			return o.done(outcome, log, TierLocal, plan, start), nil
		}
		lastErr = err
	}

	// Tier 3: qualitative reasoning, last resort
	if o.qualitative != nil {
		outcome.State = StateTryingQualitative
		plan, err := o.tryReasoner(ctx, outcome, log, req, snapshot)
		if err == nil {
			return o.done(outcome, log, TierQualitative, plan, start), nil
		}
		lastErr = err
	}

	outcome.State = StateFailed
	if lastErr == nil {
		lastErr = errors.New("no allocation tier configured")
	}

	log.WithFields(map[string]interface{}{
		"attempts":    len(outcome.Attempts),
		"duration_ms": time.Since(start).Milliseconds(),
	}).WithError(lastErr).Error("All allocation tiers failed")

	return nil, fmt.Errorf("%w: %w", contracts.ErrAllTiersFailed, lastErr)
}

func (o *Orchestrator) tryAllocator(
	ctx context.Context,
	outcome *Outcome,
	log *logger.Logger,
	tier Tier,
	allocator contracts.Allocator,
	req contracts.OptimizationRequest,
	timeout time.Duration,
) (*contracts.AllocationPlan, error) {
	tierCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	plan, err := allocator.Optimize(tierCtx, req)
	if err == nil {
		err = plan.Validate()
	}
	o.record(outcome, tier, start, err)

	if err != nil {
		log.WithFields(map[string]interface{}{
			"tier":        string(tier),
			"duration_ms": time.Since(start).Milliseconds(),
		}).WithError(err).Warn("Allocation tier failed, falling back")
		return nil, err
	}
	return plan, nil
}

func (o *Orchestrator) tryReasoner(
	ctx context.Context,
	outcome *Outcome,
	log *logger.Logger,
	req contracts.OptimizationRequest,
	snapshot *contracts.MarketSnapshot,
) (*contracts.AllocationPlan, error) {
	tierCtx, cancel := withOptionalTimeout(ctx, o.config.QualitativeTimeout)
	defer cancel()

	start := time.Now()
	plan, err := o.qualitative.Reason(tierCtx, contracts.QualitativeRequest{
		Capital:           req.Capital,
		RiskTolerance:     req.RiskTolerance,
		CurrentMarketData: snapshot,
	})
	if err == nil {
		err = plan.Validate()
	}
	o.record(outcome, TierQualitative, start, err)

	if err != nil {
		log.WithField("tier", string(TierQualitative)).WithError(err).Error("Qualitative tier failed")
		return nil, err
	}
	return plan, nil
}

func (o *Orchestrator) record(outcome *Outcome, tier Tier, start time.Time, err error) {
	attempt := Attempt{Tier: tier, Duration: time.Since(start)}
	if err != nil {
		attempt.Error = err.Error()
	}
	outcome.Attempts = append(outcome.Attempts, attempt)
}

func (o *Orchestrator) done(outcome *Outcome, log *logger.Logger, tier Tier, plan *contracts.AllocationPlan, start time.Time) *Outcome {
	// upstream services may emit class order; callers always get descending percentages
	plan.SortByPercentage()

	outcome.State = StateDone
	outcome.Tier = tier
	outcome.Plan = plan
	outcome.Duration = time.Since(start)

	log.WithFields(map[string]interface{}{
		"tier":        string(tier),
		"attempts":    len(outcome.Attempts),
		"line_items":  plan.Count(),
		"duration_ms": outcome.Duration.Milliseconds(),
	}).Info("Allocation completed")

	return outcome
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
