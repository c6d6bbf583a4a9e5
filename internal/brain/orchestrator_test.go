package brain

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/internal/external/marketdata"
	"github.com/wonny/aegis-allocator/internal/external/quantsvc"
	"github.com/wonny/aegis-allocator/pkg/httputil"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeAllocator struct {
	calls int32
	plan  *contracts.AllocationPlan
	err   error
	block bool // wait for ctx cancellation
}

func (f *fakeAllocator) Optimize(ctx context.Context, req contracts.OptimizationRequest) (*contracts.AllocationPlan, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.plan, f.err
}

type fakeReasoner struct {
	calls int32
	last  contracts.QualitativeRequest
	plan  *contracts.AllocationPlan
	err   error
}

func (f *fakeReasoner) Reason(ctx context.Context, req contracts.QualitativeRequest) (*contracts.AllocationPlan, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = req
	return f.plan, f.err
}

type failingProvider struct{}

func (failingProvider) Snapshot(ctx context.Context) (*contracts.MarketSnapshot, error) {
	return nil, marketdata.ErrSnapshotUnavailable
}

func plan(summary string) *contracts.AllocationPlan {
	return &contracts.AllocationPlan{
		Allocation: []contracts.AllocationLineItem{
			{AssetClass: "A", Percentage: 70, Reasoning: summary, RecommendedAssets: []string{"A"}},
			{AssetClass: "B", Percentage: 30, Reasoning: summary, RecommendedAssets: []string{"B"}},
		},
		RiskScore:            5,
		TotalProjectedReturn: "3.10%",
		AgentSummary:         summary,
	}
}

func snapshotProvider() contracts.SnapshotProvider {
	return marketdata.NewStaticProvider(&contracts.MarketSnapshot{Assets: []contracts.AssetObservation{
		{Symbol: "A", Price: 100, ChangePercent: 2},
		{Symbol: "B", Price: 50, ChangePercent: -1},
	}})
}

func testConfig() Config {
	return Config{RemoteTimeout: 500 * time.Millisecond}
}

// =============================================================================
// Fallback correctness
// =============================================================================

func TestAllocate_RemoteSuccessSkipsFallbacks(t *testing.T) {
	remote := &fakeAllocator{plan: plan("remote")}
	local := &fakeAllocator{plan: plan("local")}
	qualitative := &fakeReasoner{plan: plan("llm")}

	o := NewOrchestrator(snapshotProvider(), remote, local, qualitative, testConfig(), logger.Nop())
	outcome, err := o.Allocate(context.Background(), 10000, 5)
	require.NoError(t, err)

	assert.Equal(t, TierRemote, outcome.Tier)
	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, "remote", outcome.Plan.AgentSummary)
	assert.NotEmpty(t, outcome.RequestID)
	assert.Len(t, outcome.Attempts, 1)
	assert.Equal(t, int32(0), atomic.LoadInt32(&local.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&qualitative.calls))
}

func TestAllocate_RemoteErrorFallsToQualitativeOnce(t *testing.T) {
	remote := &fakeAllocator{err: errors.New("boom")}
	qualitative := &fakeReasoner{plan: plan("llm")}

	o := NewOrchestrator(snapshotProvider(), remote, nil, qualitative, testConfig(), logger.Nop())
	outcome, err := o.Allocate(context.Background(), 10000, 5)
	require.NoError(t, err)

	assert.Equal(t, TierQualitative, outcome.Tier)
	assert.Equal(t, "llm", outcome.Plan.AgentSummary)
	assert.Equal(t, int32(1), atomic.LoadInt32(&remote.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&qualitative.calls))

	require.Len(t, outcome.Attempts, 2)
	assert.Equal(t, TierRemote, outcome.Attempts[0].Tier)
	assert.Equal(t, "boom", outcome.Attempts[0].Error)
	assert.Empty(t, outcome.Attempts[1].Error)

	assert.Equal(t, 10000.0, qualitative.last.Capital)
	assert.Equal(t, 5, qualitative.last.RiskTolerance)
	assert.Equal(t, 2, qualitative.last.CurrentMarketData.Len())
}

func TestAllocate_LocalTierBetweenRemoteAndQualitative(t *testing.T) {
	remote := &fakeAllocator{err: errors.New("down")}
	local := &fakeAllocator{plan: plan("local")}
	qualitative := &fakeReasoner{plan: plan("llm")}

	o := NewOrchestrator(snapshotProvider(), remote, local, qualitative, testConfig(), logger.Nop())
	outcome, err := o.Allocate(context.Background(), 10000, 5)
	require.NoError(t, err)

	assert.Equal(t, TierLocal, outcome.Tier)
	assert.Equal(t, int32(1), atomic.LoadInt32(&local.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&qualitative.calls))
}

func TestAllocate_MalformedRemotePlanFallsBack(t *testing.T) {
	bad := plan("remote")
	bad.Allocation[0].Percentage = 150
	remote := &fakeAllocator{plan: bad}
	qualitative := &fakeReasoner{plan: plan("llm")}

	o := NewOrchestrator(snapshotProvider(), remote, nil, qualitative, testConfig(), logger.Nop())
	outcome, err := o.Allocate(context.Background(), 10000, 5)
	require.NoError(t, err)

	assert.Equal(t, TierQualitative, outcome.Tier)
	assert.Contains(t, outcome.Attempts[0].Error, "percentage")
}

func TestAllocate_QualitativeFailurePropagates(t *testing.T) {
	remote := &fakeAllocator{err: errors.New("down")}
	local := &fakeAllocator{err: errors.New("diverged")}
	qualitative := &fakeReasoner{err: errors.New("quota exceeded")}

	o := NewOrchestrator(snapshotProvider(), remote, local, qualitative, testConfig(), logger.Nop())
	outcome, err := o.Allocate(context.Background(), 10000, 5)

	assert.Nil(t, outcome)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrAllTiersFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestAllocate_MalformedQualitativePlanIsFailure(t *testing.T) {
	remote := &fakeAllocator{err: errors.New("down")}
	qualitative := &fakeReasoner{plan: &contracts.AllocationPlan{}}

	o := NewOrchestrator(snapshotProvider(), remote, nil, qualitative, testConfig(), logger.Nop())
	_, err := o.Allocate(context.Background(), 10000, 5)

	assert.ErrorIs(t, err, contracts.ErrAllTiersFailed)
	assert.ErrorIs(t, err, contracts.ErrMalformedPlan)
}

func TestAllocate_NoTiers(t *testing.T) {
	o := NewOrchestrator(snapshotProvider(), nil, nil, nil, testConfig(), logger.Nop())
	_, err := o.Allocate(context.Background(), 10000, 5)
	assert.ErrorIs(t, err, contracts.ErrAllTiersFailed)
}

// =============================================================================
// Validation & snapshot
// =============================================================================

func TestAllocate_DegenerateInputFailsFast(t *testing.T) {
	tests := []struct {
		name     string
		capital  float64
		risk     int
		snapshot *contracts.MarketSnapshot
	}{
		{"zero capital", 0, 5, &contracts.MarketSnapshot{Assets: []contracts.AssetObservation{{Symbol: "A", Price: 1}}}},
		{"risk too high", 100, 11, &contracts.MarketSnapshot{Assets: []contracts.AssetObservation{{Symbol: "A", Price: 1}}}},
		{"empty snapshot", 100, 5, &contracts.MarketSnapshot{}},
		{"non-positive price", 100, 5, &contracts.MarketSnapshot{Assets: []contracts.AssetObservation{{Symbol: "A", Price: 0}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeAllocator{plan: plan("remote")}
			qualitative := &fakeReasoner{plan: plan("llm")}

			o := NewOrchestrator(nil, remote, nil, qualitative, testConfig(), logger.Nop())
			_, err := o.AllocateSnapshot(context.Background(), tt.capital, tt.risk, tt.snapshot)

			assert.ErrorIs(t, err, contracts.ErrInvalidRequest)
			assert.Equal(t, int32(0), atomic.LoadInt32(&remote.calls))
			assert.Equal(t, int32(0), atomic.LoadInt32(&qualitative.calls))
		})
	}
}

func TestAllocate_SnapshotFailureIsFatal(t *testing.T) {
	qualitative := &fakeReasoner{plan: plan("llm")}

	o := NewOrchestrator(failingProvider{}, nil, nil, qualitative, testConfig(), logger.Nop())
	_, err := o.Allocate(context.Background(), 10000, 5)

	assert.ErrorIs(t, err, marketdata.ErrSnapshotUnavailable)
	assert.Equal(t, int32(0), atomic.LoadInt32(&qualitative.calls))
}

// =============================================================================
// Timeouts
// =============================================================================

func TestAllocate_RemoteTimeoutBounded(t *testing.T) {
	remote := &fakeAllocator{block: true}
	qualitative := &fakeReasoner{plan: plan("llm")}

	cfg := Config{RemoteTimeout: 50 * time.Millisecond}
	o := NewOrchestrator(snapshotProvider(), remote, nil, qualitative, cfg, logger.Nop())

	start := time.Now()
	outcome, err := o.Allocate(context.Background(), 10000, 5)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, TierQualitative, outcome.Tier)
	assert.Contains(t, outcome.Attempts[0].Error, context.DeadlineExceeded.Error())
}

func TestAllocate_ScenarioC_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	hc := httputil.NewWithTimeout(nil, logger.Nop(), time.Second).DisableRetry()
	remote := quantsvc.NewClient(url, 10, hc, logger.Nop())
	qualitative := &fakeReasoner{plan: plan("llm")}

	o := NewOrchestrator(snapshotProvider(), remote, nil, qualitative, testConfig(), logger.Nop())

	start := time.Now()
	outcome, err := o.Allocate(context.Background(), 10000, 5)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), testConfig().RemoteTimeout+time.Second)
	assert.Equal(t, TierQualitative, outcome.Tier)
	assert.Equal(t, int32(1), atomic.LoadInt32(&qualitative.calls))
}

// =============================================================================
// Plan ordering
// =============================================================================

func TestAllocate_RemotePlanSortedDescending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"allocation": [
				{"assetClass": "Stock", "percentage": 20, "reasoning": "r", "recommendedAssets": ["SPY (20.00%)"]},
				{"assetClass": "Crypto", "percentage": 60, "reasoning": "r", "recommendedAssets": ["BTC (60.00%)"]},
				{"assetClass": "Commodity", "percentage": 20, "reasoning": "r", "recommendedAssets": ["GLD (20.00%)"]}
			],
			"riskScore": 5,
			"totalProjectedReturn": "8.00%",
			"agentSummary": "class order"
		}`))
	}))
	defer server.Close()

	hc := httputil.NewWithTimeout(nil, logger.Nop(), time.Second).DisableRetry()
	remote := quantsvc.NewClient(server.URL, 10, hc, logger.Nop())

	o := NewOrchestrator(snapshotProvider(), remote, nil, &fakeReasoner{plan: plan("llm")}, testConfig(), logger.Nop())
	outcome, err := o.Allocate(context.Background(), 10000, 5)
	require.NoError(t, err)

	require.Equal(t, TierRemote, outcome.Tier)
	assert.True(t, outcome.Plan.IsSorted())
	assert.Equal(t, "Crypto", outcome.Plan.Allocation[0].AssetClass)
	// ties keep their upstream order
	assert.Equal(t, "Stock", outcome.Plan.Allocation[1].AssetClass)
	assert.Equal(t, "Commodity", outcome.Plan.Allocation[2].AssetClass)
}

func TestAllocate_LocalPlanSortedDescending(t *testing.T) {
	unsorted := plan("local")
	unsorted.Allocation[0].Percentage, unsorted.Allocation[1].Percentage = 30, 70

	local := &fakeAllocator{plan: unsorted}
	o := NewOrchestrator(snapshotProvider(), nil, local, nil, testConfig(), logger.Nop())

	outcome, err := o.Allocate(context.Background(), 10000, 5)
	require.NoError(t, err)

	assert.Equal(t, TierLocal, outcome.Tier)
	assert.True(t, outcome.Plan.IsSorted())
	assert.Equal(t, "B", outcome.Plan.Allocation[0].AssetClass)
}
