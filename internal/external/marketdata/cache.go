package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wonny/aegis-allocator/internal/contracts"
	"github.com/wonny/aegis-allocator/pkg/logger"
)

// CachedProvider keeps the last good snapshot of a slower source
// ⭐ SSOT: snapshot caching happens here only
//
// Fresh entries (age <= ttl) are served without touching the source. Once stale,
// the next call refreshes; if the refresh fails, the old snapshot is still served
// while its age is within maxStale. Concurrent refreshes are coalesced.
type CachedProvider struct {
	source   contracts.SnapshotProvider
	ttl      time.Duration
	maxStale time.Duration
	logger   *logger.Logger
	now      func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	snapshot  *contracts.MarketSnapshot
	fetchedAt time.Time
	stats     CacheStats
}

// CacheStats cache counters
type CacheStats struct {
	Hits       int       `json:"hits"`
	Misses     int       `json:"misses"`
	StaleHits  int       `json:"stale_hits"`
	Refreshes  int       `json:"refreshes"`
	Rejected   int       `json:"rejected"`
	Failures   int       `json:"failures"`
	FetchedAt  time.Time `json:"fetched_at"`
	AssetCount int       `json:"asset_count"`
}

// NewCachedProvider wraps source. maxStale < ttl is raised to ttl.
func NewCachedProvider(source contracts.SnapshotProvider, ttl, maxStale time.Duration, log *logger.Logger) *CachedProvider {
	if maxStale < ttl {
		maxStale = ttl
	}
	return &CachedProvider{
		source:   source,
		ttl:      ttl,
		maxStale: maxStale,
		logger:   log.Component("snapshot-cache"),
		now:      time.Now,
	}
}

// Snapshot returns the cached snapshot, refreshing it first when stale
func (c *CachedProvider) Snapshot(ctx context.Context) (*contracts.MarketSnapshot, error) {
	c.mu.Lock()
	if c.snapshot != nil && c.now().Sub(c.fetchedAt) <= c.ttl {
		c.stats.Hits++
		out := copySnapshot(c.snapshot)
		c.mu.Unlock()
		return out, nil
	}
	c.stats.Misses++
	c.mu.Unlock()

	if _, err := c.Refresh(ctx); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()

		age := c.now().Sub(c.fetchedAt)
		if c.snapshot == nil || age > c.maxStale {
			return nil, err
		}

		c.stats.StaleHits++
		c.logger.WithFields(map[string]interface{}{
			"age":   age.String(),
			"error": err.Error(),
		}).Warn("Refresh failed, serving stale snapshot")
		return copySnapshot(c.snapshot), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, fmt.Errorf("%w: cache cleared during refresh", ErrSnapshotUnavailable)
	}
	// a rejected refresh leaves the old entry in place; it still ages out
	if age := c.now().Sub(c.fetchedAt); age > c.maxStale {
		return nil, fmt.Errorf("%w: source only offers snapshots older than the cached one (age %s)",
			ErrSnapshotUnavailable, age)
	}
	return copySnapshot(c.snapshot), nil
}

// Refresh fetches from the source and stores the result.
// A snapshot older than the cached one (by AsOf) is rejected and reported as false.
func (c *CachedProvider) Refresh(ctx context.Context) (bool, error) {
	v, err, _ := c.group.Do("snapshot", func() (interface{}, error) {
		fresh, err := c.source.Snapshot(ctx)
		if err != nil {
			c.mu.Lock()
			c.stats.Failures++
			c.mu.Unlock()
			return false, err
		}
		if fresh == nil {
			return false, fmt.Errorf("%w: source returned no snapshot", ErrSnapshotUnavailable)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.snapshot != nil && fresh.AsOf.Before(c.snapshot.AsOf) {
			c.stats.Rejected++
			c.logger.WithFields(map[string]interface{}{
				"new_as_of": fresh.AsOf,
				"old_as_of": c.snapshot.AsOf,
			}).Debug("Rejected older snapshot")
			return false, nil
		}

		c.snapshot = copySnapshot(fresh)
		c.fetchedAt = c.now()
		c.stats.Refreshes++

		c.logger.WithFields(map[string]interface{}{
			"assets": fresh.Len(),
			"as_of":  fresh.AsOf,
		}).Debug("Snapshot cache refreshed")
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Stats returns a copy of the counters
func (c *CachedProvider) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.FetchedAt = c.fetchedAt
	stats.AssetCount = c.snapshot.Len()
	return stats
}

// Clear drops the cached snapshot
func (c *CachedProvider) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = nil
	c.fetchedAt = time.Time{}
}

func copySnapshot(s *contracts.MarketSnapshot) *contracts.MarketSnapshot {
	out := &contracts.MarketSnapshot{AsOf: s.AsOf}
	out.Assets = append([]contracts.AssetObservation(nil), s.Assets...)
	return out
}
