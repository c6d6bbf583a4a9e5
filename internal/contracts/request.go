package contracts

import (
	"fmt"
	"math"
)

const (
	MinRiskTolerance = 1
	MaxRiskTolerance = 10
)

// OptimizationRequest is constructed once per allocation call.
// ⭐ the JSON form is the wire body of POST /optimize
type OptimizationRequest struct {
	Capital       float64            `json:"capital"`
	RiskTolerance int                `json:"risk_tolerance"` // 1 (cautious) ~ 10 (aggressive)
	MarketData    []AssetObservation `json:"market_data"`
}

// NewOptimizationRequest builds a request from a snapshot
func NewOptimizationRequest(capital float64, riskTolerance int, snapshot *MarketSnapshot) OptimizationRequest {
	req := OptimizationRequest{Capital: capital, RiskTolerance: riskTolerance}
	if snapshot != nil {
		req.MarketData = snapshot.Assets
	}
	return req
}

// Snapshot views the market data as a MarketSnapshot
func (r *OptimizationRequest) Snapshot() *MarketSnapshot {
	return &MarketSnapshot{Assets: r.MarketData}
}

// RiskAversion maps tolerance to λ = (11 - tolerance) / 10.
// Tolerance 10 → 0.1, tolerance 1 → 1.0.
func (r *OptimizationRequest) RiskAversion() float64 {
	return RiskAversion(r.RiskTolerance)
}

// RiskAversion maps a risk tolerance to the risk-aversion scalar λ
func RiskAversion(riskTolerance int) float64 {
	return float64(11-riskTolerance) / 10
}

// ValidateParams checks capital and risk tolerance only
func (r *OptimizationRequest) ValidateParams() error {
	if !(r.Capital > 0) || math.IsInf(r.Capital, 0) {
		return fmt.Errorf("%w: capital must be positive, got %v", ErrInvalidRequest, r.Capital)
	}
	if r.RiskTolerance < MinRiskTolerance || r.RiskTolerance > MaxRiskTolerance {
		return fmt.Errorf("%w: risk tolerance must be in [%d, %d], got %d",
			ErrInvalidRequest, MinRiskTolerance, MaxRiskTolerance, r.RiskTolerance)
	}
	return nil
}

// Validate fails fast on degenerate input: bad parameters, an empty snapshot or
// malformed observations.
func (r *OptimizationRequest) Validate() error {
	if err := r.ValidateParams(); err != nil {
		return err
	}
	if len(r.MarketData) == 0 {
		return fmt.Errorf("%w: market snapshot has no assets", ErrInvalidRequest)
	}
	return r.Snapshot().Validate()
}
