package logging

import (
	"context"
	"log/slog"
	"time"
)

// StartCleanup runs a daily goroutine that deletes sync_logs older than the
// retention window. days is read on every tick so settings changes apply.
func StartCleanup(store Store, days func() int, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				Cleanup(context.Background(), store, days(), time.Now())
			case <-done:
				return
			}
		}
	}()
}

// Cleanup deletes rows older than days before now. Non-positive days keep everything.
func Cleanup(ctx context.Context, store Store, days int, now time.Time) int64 {
	if days <= 0 {
		return 0
	}
	cutoff := now.AddDate(0, 0, -days)
	deleted, err := store.DeleteBefore(ctx, cutoff)
	if err != nil {
		slog.Error("log cleanup failed", "error", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("log cleanup completed", "deleted", deleted, "retention_days", days)
	}
	return deleted
}
