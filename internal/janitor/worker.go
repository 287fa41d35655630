// Package janitor periodically removes cached search answers that were
// computed against an older memory snapshot.
package janitor

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// Pruner represents cleanup behavior needed by the worker.
type Pruner interface {
	SnapshotAt(ctx context.Context, userID string) (time.Time, error)
	PruneSearches(ctx context.Context, userID string, snapshot time.Time) (int64, error)
}

// Start runs a periodic cache cleanup until ctx is cancelled.
func Start(ctx context.Context, logger *log.Logger, interval time.Duration, userID string, pruner Pruner) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := pruner.SnapshotAt(ctx, userID)
			if err != nil {
				logger.Warn("snapshot lookup failed", "error", err)
				continue
			}
			n, err := pruner.PruneSearches(ctx, userID, snapshot)
			if err != nil {
				logger.Warn("search cache cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("removed stale cached searches", "count", n)
			}
		}
	}
}
