package contracts

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// percentageSlack tolerates rounding in upstream plans (e.g. 33.34 + 33.33 + 33.34)
const percentageSlack = 0.5

// AllocationLineItem is one row of the final plan
type AllocationLineItem struct {
	AssetClass        string   `json:"assetClass"`
	Percentage        float64  `json:"percentage"` // 0 ~ 100
	Reasoning         string   `json:"reasoning"`
	RecommendedAssets []string `json:"recommendedAssets"`
}

// AllocationPlan is the immutable output handed back to the caller
// ⭐ SSOT: every tier (remote, local, qualitative) produces exactly this shape
type AllocationPlan struct {
	Allocation           []AllocationLineItem `json:"allocation"`
	RiskScore            float64              `json:"riskScore"`
	TotalProjectedReturn string               `json:"totalProjectedReturn"` // "X.XX%"
	AgentSummary         string               `json:"agentSummary"`
}

// TotalPercentage returns the sum of all line item percentages
func (p *AllocationPlan) TotalPercentage() float64 {
	total := 0.0
	for _, item := range p.Allocation {
		total += item.Percentage
	}
	return total
}

// Count returns the number of line items
func (p *AllocationPlan) Count() int {
	return len(p.Allocation)
}

// GetLineItem finds a line item by asset class
func (p *AllocationPlan) GetLineItem(assetClass string) (*AllocationLineItem, bool) {
	for i := range p.Allocation {
		if p.Allocation[i].AssetClass == assetClass {
			return &p.Allocation[i], true
		}
	}
	return nil, false
}

// SortByPercentage orders line items descending by percentage (stable on ties)
func (p *AllocationPlan) SortByPercentage() {
	sort.SliceStable(p.Allocation, func(i, j int) bool {
		return p.Allocation[i].Percentage > p.Allocation[j].Percentage
	})
}

// IsSorted reports whether line items are in descending percentage order
func (p *AllocationPlan) IsSorted() bool {
	return sort.SliceIsSorted(p.Allocation, func(i, j int) bool {
		return p.Allocation[i].Percentage > p.Allocation[j].Percentage
	})
}

// Validate is the shape check applied to every upstream plan
func (p *AllocationPlan) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrMalformedPlan)
	}
	if p.TotalProjectedReturn == "" {
		return fmt.Errorf("%w: totalProjectedReturn is empty", ErrMalformedPlan)
	}
	if math.IsNaN(p.RiskScore) || math.IsInf(p.RiskScore, 0) || p.RiskScore < 0 {
		return fmt.Errorf("%w: riskScore %v out of range", ErrMalformedPlan, p.RiskScore)
	}

	for i, item := range p.Allocation {
		if item.AssetClass == "" {
			return fmt.Errorf("%w: line item #%d has empty assetClass", ErrMalformedPlan, i)
		}
		if math.IsNaN(item.Percentage) || item.Percentage < 0 || item.Percentage > 100 {
			return fmt.Errorf("%w: %s percentage %v out of range", ErrMalformedPlan, item.AssetClass, item.Percentage)
		}
	}

	if total := p.TotalPercentage(); total > 100+percentageSlack {
		return fmt.Errorf("%w: percentages sum to %.2f", ErrMalformedPlan, total)
	}

	return nil
}

// wirePlan detects missing required keys, which a plain Unmarshal would zero-fill
type wirePlan struct {
	Allocation           *[]AllocationLineItem `json:"allocation"`
	RiskScore            *float64              `json:"riskScore"`
	TotalProjectedReturn *string               `json:"totalProjectedReturn"`
	AgentSummary         *string               `json:"agentSummary"`
}

// DecodePlan parses an upstream body into an AllocationPlan and validates its shape
func DecodePlan(data []byte) (*AllocationPlan, error) {
	var w wirePlan
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	switch {
	case w.Allocation == nil:
		return nil, fmt.Errorf("%w: missing allocation", ErrMalformedPlan)
	case w.RiskScore == nil:
		return nil, fmt.Errorf("%w: missing riskScore", ErrMalformedPlan)
	case w.TotalProjectedReturn == nil:
		return nil, fmt.Errorf("%w: missing totalProjectedReturn", ErrMalformedPlan)
	}

	plan := &AllocationPlan{
		Allocation:           *w.Allocation,
		RiskScore:            *w.RiskScore,
		TotalProjectedReturn: *w.TotalProjectedReturn,
	}
	if w.AgentSummary != nil {
		plan.AgentSummary = *w.AgentSummary
	}
	for i := range plan.Allocation {
		if plan.Allocation[i].RecommendedAssets == nil {
			plan.Allocation[i].RecommendedAssets = []string{}
		}
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}
