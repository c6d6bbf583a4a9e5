package contracts

import "context"

// SnapshotProvider supplies the market snapshot for one allocation call
// ⭐ external collaborator; treated as a synchronous dependency
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*MarketSnapshot, error)
}

// Allocator is implemented by every tier of the orchestrator
// (remote quant service, in-process engine).
type Allocator interface {
	Optimize(ctx context.Context, req OptimizationRequest) (*AllocationPlan, error)
}

// QualitativeRequest is what the generative collaborator receives
type QualitativeRequest struct {
	Capital           float64         `json:"capital"`
	RiskTolerance     int             `json:"riskTolerance"`
	CurrentMarketData *MarketSnapshot `json:"currentMarketData"`
}

// Reasoner is the generative last-resort tier
type Reasoner interface {
	Reason(ctx context.Context, req QualitativeRequest) (*AllocationPlan, error)
}
