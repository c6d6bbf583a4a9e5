package portfolio

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/internal/risk"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

// unclassified groups assets without a Type when GroupByClass is on
const unclassified = "Unclassified"

// Constructor turns optimised weights into an AllocationPlan
// ⭐ SSOT: plan post-processing (materiality, ordering, annualisation) lives here only
type Constructor struct {
	config PlanConfig
	logger *logger.Logger
}

// NewConstructor creates a new plan constructor
func NewConstructor(config PlanConfig, log *logger.Logger) *Constructor {
	if log == nil {
		log = logger.Nop()
	}
	return &Constructor{
		config: config,
		logger: log,
	}
}

// position one retained asset
type position struct {
	symbol       string
	class        string
	weight       float64
	percentage   decimal.Decimal
	mean         float64
	volatility   float64
	contribution float64
}

// Build constructs the plan:
//  1. drop weights below the materiality threshold
//  2. contribution = w·μ
//  3. sort descending by weight
//  4. annualise the retained contribution (× PeriodsPerYear × 100)
func (c *Constructor) Build(req contracts.OptimizationRequest, est *risk.ReturnEstimate, result *AnnealResult) (*contracts.AllocationPlan, error) {
	if err := ValidatePlanConfig(c.config); err != nil {
		return nil, err
	}
	snapshot := req.Snapshot()
	if est.N() != len(result.Weights) || est.N() != snapshot.Len() {
		return nil, fmt.Errorf("%w: %d weights, %d estimates, %d assets",
			ErrShapeMismatch, len(result.Weights), est.N(), snapshot.Len())
	}

	positions := c.retain(snapshot, est, result.Weights)

	var totalContribution float64
	for _, p := range positions {
		totalContribution += p.contribution
	}

	plan := &contracts.AllocationPlan{
		RiskScore:            float64(req.RiskTolerance),
		TotalProjectedReturn: c.formatAnnualised(totalContribution),
	}

	if c.config.GroupByClass {
		plan.Allocation = groupLineItems(positions)
	} else {
		plan.Allocation = make([]contracts.AllocationLineItem, 0, len(positions))
		for _, p := range positions {
			plan.Allocation = append(plan.Allocation, contracts.AllocationLineItem{
				AssetClass:        p.symbol,
				Percentage:        p.percentage.InexactFloat64(),
				Reasoning:         positionReasoning(p),
				RecommendedAssets: []string{p.symbol},
			})
		}
	}

	profile, err := risk.Profile(est, result.Weights, c.config.VaRConfidence)
	if err != nil {
		return nil, err
	}
	plan.AgentSummary = c.summary(est, result, profile, len(positions))

	c.logger.WithFields(map[string]interface{}{
		"assets":           est.N(),
		"retained":         len(positions),
		"line_items":       plan.Count(),
		"total_percentage": plan.TotalPercentage(),
		"projected_return": plan.TotalProjectedReturn,
	}).Info("Allocation plan constructed")

	return plan, nil
}

// retain applies the materiality filter and orders by weight
func (c *Constructor) retain(snapshot *contracts.MarketSnapshot, est *risk.ReturnEstimate, weights []float64) []position {
	hundred := decimal.NewFromInt(100)
	minPercentage := decimal.NewFromFloat(c.config.MaterialityThreshold).Mul(hundred)
	positions := make([]position, 0, len(weights))

	for i, w := range weights {
		if w < c.config.MaterialityThreshold {
			continue
		}

		// truncation keeps the retained sum at or below 100
		pct := decimal.NewFromFloat(w).Mul(hundred).Truncate(2)
		if pct.LessThan(minPercentage) {
			continue
		}

		asset := snapshot.Assets[i]
		class := asset.Type
		if class == "" {
			class = unclassified
		}

		positions = append(positions, position{
			symbol:       asset.Symbol,
			class:        class,
			weight:       w,
			percentage:   pct,
			mean:         est.Mean[i],
			volatility:   est.Volatility(i),
			contribution: w * est.Mean[i],
		})
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].weight > positions[j].weight
	})

	return positions
}

// formatAnnualised renders a periodic return as "X.XX%"
func (c *Constructor) formatAnnualised(periodic float64) string {
	annual := decimal.NewFromFloat(periodic).
		Mul(decimal.NewFromInt(int64(c.config.PeriodsPerYear))).
		Mul(decimal.NewFromInt(100))
	return annual.StringFixed(2) + "%"
}

func (c *Constructor) summary(est *risk.ReturnEstimate, result *AnnealResult, profile risk.RiskProfile, retained int) string {
	if retained == 0 {
		return fmt.Sprintf("No asset reached the %.0f%% materiality threshold across %d simulated scenarios.",
			c.config.MaterialityThreshold*100, est.Runs)
	}

	chains := len(result.Chains)
	if chains == 0 {
		chains = 1
	}
	annualVol := profile.Volatility * math.Sqrt(float64(c.config.PeriodsPerYear)) * 100

	return fmt.Sprintf(
		"Mean-variance weights from %d annealing chain(s) over %d simulated scenarios (risk aversion λ=%.2f). "+
			"%d of %d assets retained. Annualised volatility %.2f%%, Sharpe %.2f, %.0f%% VaR %.2f%% per period.",
		chains, est.Runs, result.Lambda,
		retained, est.N(), annualVol, sharpeRatio(profile, c.config.PeriodsPerYear),
		profile.Tail.Confidence*100, profile.Tail.VaR*100,
	)
}

// sharpeRatio annualised return over annualised volatility, zero risk-free rate.
// Zero when the portfolio has no simulated volatility.
func sharpeRatio(profile risk.RiskProfile, periodsPerYear int) float64 {
	if !(profile.Volatility > 0) {
		return 0
	}
	periods := float64(periodsPerYear)
	return profile.ExpectedReturn * periods / (profile.Volatility * math.Sqrt(periods))
}

func positionReasoning(p position) string {
	return fmt.Sprintf("Drift %.2f%% with simulated volatility %.2f%%; contributes %.3f%% to the expected period return.",
		p.mean*100, p.volatility*100, p.contribution*100)
}

// groupLineItems aggregates positions by asset class into "SYM (xx.xx%)" baskets
func groupLineItems(positions []position) []contracts.AllocationLineItem {
	type group struct {
		percentage   decimal.Decimal
		contribution float64
		assets       []string
	}

	order := make([]string, 0)
	groups := make(map[string]*group)
	for _, p := range positions {
		g, ok := groups[p.class]
		if !ok {
			g = &group{percentage: decimal.Zero}
			groups[p.class] = g
			order = append(order, p.class)
		}
		g.percentage = g.percentage.Add(p.percentage)
		g.contribution += p.contribution
		g.assets = append(g.assets, fmt.Sprintf("%s (%s%%)", p.symbol, p.percentage.StringFixed(2)))
	}

	items := make([]contracts.AllocationLineItem, 0, len(order))
	for _, class := range order {
		g := groups[class]
		items = append(items, contracts.AllocationLineItem{
			AssetClass: class,
			Percentage: g.percentage.InexactFloat64(),
			Reasoning: fmt.Sprintf("%d %s position(s) contributing %.3f%% to the expected period return.",
				len(g.assets), strings.ToLower(class), g.contribution*100),
			RecommendedAssets: g.assets,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Percentage > items[j].Percentage
	})

	return items
}
