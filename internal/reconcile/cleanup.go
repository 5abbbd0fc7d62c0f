package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scottylabs/kennel/internal/config"
	"github.com/scottylabs/kennel/internal/core/logger"
	"github.com/scottylabs/kennel/internal/store"
)

// TeardownQueue is the outbound side the expiry job enqueues onto.
type TeardownQueue interface {
	Enqueue(deploymentID int64)
}

// RunExpiryJob ticks every CleanupJobInterval, marking deployments idle
// for more than ExpiryDays (outside prod/staging) TearingDown and
// enqueueing their teardown. Blocks until ctx is cancelled.
func RunExpiryJob(ctx context.Context, s store.Store, teardown TeardownQueue, log logger.Logger) {
	ticker := time.NewTicker(config.CleanupJobInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expireOnce(ctx, s, teardown, log)
		}
	}
}

func expireOnce(ctx context.Context, s store.Store, teardown TeardownQueue, log logger.Logger) {
	expired, err := s.Deployments().FindExpired(ctx, config.ExpiryDays, config.ExpiryExcludedEnvironments)
	if err != nil {
		log.Error("expiry job: failed to list expired deployments", logger.Err(err))
		return
	}

	for _, d := range expired {
		d.Status = store.DeploymentTearingDown
		if err := s.Deployments().Update(ctx, d); err != nil {
			log.Error("expiry job: failed to mark tearing down", logger.DeploymentID(d.ID), logger.Err(err))
			continue
		}
		teardown.Enqueue(d.ID)
	}
}

// RunLogRetentionJob ticks every LogCleanupInterval, pruning finished
// builds older than LogRetentionDays: their log directory is removed
// before the Store row (the DB cascades to BuildResult).
func RunLogRetentionJob(ctx context.Context, s store.Store, log logger.Logger) {
	ticker := time.NewTicker(config.LogCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			retainOnce(ctx, s, log)
		}
	}
}

func retainOnce(ctx context.Context, s store.Store, log logger.Logger) {
	old, err := s.Builds().FindOldFinished(ctx, config.LogRetentionDays)
	if err != nil {
		log.Error("log retention job: failed to list old builds", logger.Err(err))
		return
	}

	for _, b := range old {
		logDir := filepath.Join(config.LogsDir, fmt.Sprintf("%d", b.ID))
		if err := os.RemoveAll(logDir); err != nil {
			log.Warn("log retention job: failed to remove log directory", logger.BuildID(b.ID), logger.Err(err))
		}
		if err := s.Builds().Delete(ctx, b.ID); err != nil {
			log.Error("log retention job: failed to delete build row", logger.BuildID(b.ID), logger.Err(err))
		}
	}
}
