package commands

import (
	"fmt"

	"github.com/wonny/aegis-allocator/internal/brain"
	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/internal/external/llm"
	"github.com/wonny/aegis-allocator/internal/external/marketdata"
	"github.com/wonny/aegis-allocator/internal/external/quantsvc"
	"github.com/wonny/aegis-allocator/internal/portfolio"
	"github.com/wonny/aegis-allocator/internal/scheduler"
	"github.com/wonny/aegis-allocator/internal/scheduler/jobs"
	"github.com/wonny/aegis-allocator/internal/tuning"
	"github.com/wonny/aegis-allocator/pkg/config"
	"github.com/wonny/aegis-allocator/pkg/httputil"
	"github.com/wonny/aegis-allocator/pkg/logger"
	"github.com/wonny/aegis-allocator/pkg/redis"
)

// runtime shared dependencies built once per command
type runtime struct {
	cfg        *config.Config
	log        *logger.Logger
	tuning     tuning.Config
	tuningHash string
	closers    []func()
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	t := tuning.FromEnv(cfg)
	path := tuningFile
	if path == "" {
		path = cfg.TuningFile
	}
	if path != "" {
		loaded, _, err := tuning.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load tuning: %w", err)
		}
		t = *loaded
	}

	hash, err := tuning.Hash(&t)
	if err != nil {
		return nil, fmt.Errorf("hash tuning: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"profile":     t.Meta.ProfileID,
		"tuning_hash": hash[:12],
		"runs":        t.Simulation.NumRuns,
		"steps":       t.Annealing.Steps,
		"chains":      t.Annealing.Chains,
	}).Debug("Tuning loaded")

	return &runtime{cfg: cfg, log: log, tuning: t, tuningHash: hash}, nil
}

// Close releases connections opened while wiring
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// engine the in-process quantitative engine
func (r *runtime) engine() *portfolio.Engine {
	return portfolio.NewEngine(r.tuning.Simulation, r.tuning.Annealing, r.tuning.Plan, r.log)
}

// remoteTier returns nil when ENGINE_URL is unset
func (r *runtime) remoteTier() (contracts.Allocator, error) {
	if r.cfg.Engine.URL == "" {
		return nil, nil
	}

	hc := httputil.NewWithTimeout(r.cfg, r.log, r.cfg.Engine.Timeout).DisableRetry()

	if r.cfg.Redis.Enabled {
		rc, err := redis.New(r.cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		r.closers = append(r.closers, func() { _ = rc.Close() })
		hc.WithRateLimiter(redis.NewRateLimiter(rc, "aegis-allocator"), redis.QuantEngineRateLimit)
	}

	return quantsvc.NewClient(r.cfg.Engine.URL, r.cfg.Engine.RateLimit, hc, r.log), nil
}

// localTier returns nil when LOCAL_TIER_ENABLED=false
func (r *runtime) localTier() contracts.Allocator {
	if !r.cfg.Engine.LocalTierEnabled {
		return nil
	}
	return r.engine()
}

// qualitativeTier returns nil when OPENAI_API_KEY is unset
func (r *runtime) qualitativeTier() contracts.Reasoner {
	if r.cfg.LLM.APIKey == "" {
		return nil
	}
	return llm.NewReasoner(r.cfg.LLM, r.log)
}

// snapshotProvider prefers an explicit file, then MARKET_DATA_URL.
// Returns nil when neither is configured.
func (r *runtime) snapshotProvider(path string) contracts.SnapshotProvider {
	switch {
	case path != "":
		return marketdata.NewFileProvider(path)
	case r.cfg.MarketDataURL != "":
		hc := httputil.New(r.cfg, r.log).WithRetry(2, r.cfg.Engine.Timeout/4)
		source := marketdata.NewHTTPProvider(r.cfg.MarketDataURL, hc, r.log)
		if r.cfg.SnapshotCache.TTL <= 0 {
			return source
		}
		return marketdata.NewCachedProvider(source, r.cfg.SnapshotCache.TTL, r.cfg.SnapshotCache.MaxStale, r.log)
	}
	return nil
}

// refreshScheduler keeps a cached provider warm in the background.
// Returns nil when the provider is not cached or no schedule is set.
func (r *runtime) refreshScheduler(provider contracts.SnapshotProvider) (*scheduler.Scheduler, error) {
	cached, ok := provider.(*marketdata.CachedProvider)
	if !ok || r.cfg.SnapshotCache.RefreshSchedule == "" {
		return nil, nil
	}

	s := scheduler.New(r.log)
	job := jobs.NewSnapshotRefreshJob(cached, r.cfg.SnapshotCache.RefreshSchedule, r.log)
	if err := s.AddJob(job); err != nil {
		return nil, err
	}
	return s, nil
}

// orchestrator wires every configured tier
func (r *runtime) orchestrator(provider contracts.SnapshotProvider) (*brain.Orchestrator, error) {
	remote, err := r.remoteTier()
	if err != nil {
		return nil, err
	}

	o := brain.NewOrchestrator(
		provider,
		remote,
		r.localTier(),
		r.qualitativeTier(),
		r.tuning.Orchestrator(),
		r.log,
	)

	r.log.WithFields(map[string]interface{}{
		"remote":      remote != nil,
		"local":       r.cfg.Engine.LocalTierEnabled,
		"qualitative": r.cfg.LLM.APIKey != "",
	}).Debug("Orchestrator wired")

	return o, nil
}
