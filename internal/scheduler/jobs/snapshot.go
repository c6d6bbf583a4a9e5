package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-allocator/pkg/logger"
)

// SnapshotRefresher is satisfied by marketdata.CachedProvider
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// SnapshotRefreshJob keeps the market snapshot cache warm between requests
type SnapshotRefreshJob struct {
	cache    SnapshotRefresher
	schedule string
	logger   *logger.Logger
}

// NewSnapshotRefreshJob creates the refresh job
func NewSnapshotRefreshJob(cache SnapshotRefresher, schedule string, log *logger.Logger) *SnapshotRefreshJob {
	return &SnapshotRefreshJob{
		cache:    cache,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *SnapshotRefreshJob) Name() string {
	return "snapshot_refresh"
}

// Schedule returns the cron expression
func (j *SnapshotRefreshJob) Schedule() string {
	return j.schedule
}

// Run fetches a fresh snapshot into the cache
func (j *SnapshotRefreshJob) Run(ctx context.Context) error {
	accepted, err := j.cache.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"job":      j.Name(),
		"accepted": accepted,
	}).Debug("Snapshot refresh finished")

	return nil
}
