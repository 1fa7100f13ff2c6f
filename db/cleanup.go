package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult describes one retention pass.
type CleanupResult struct {
	Deleted  int64
	Duration time.Duration
}

// Cleanup deletes enhancement records older than retentionDays and vacuums
// the file. A retention of zero removes everything created before now.
func (d *Database) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	start := time.Now()
	var result CleanupResult

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	conn, err := d.conn()
	if err != nil {
		return result, err
	}

	res, err := conn.ExecContext(ctx,
		"DELETE FROM enhancement_history WHERE created_at < datetime('now', ?)",
		fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return result, fmt.Errorf("failed to delete expired enhancements: %w", err)
	}
	result.Deleted, err = res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := ctx.Err(); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
		result.Duration = time.Since(start)
		return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig configures StartCleanupScheduler.
type CleanupSchedulerConfig struct {
	RetentionDays int
	Interval      time.Duration
	// OnCleanup is called after every pass (optional).
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig keeps 30 days and runs daily.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      24 * time.Hour,
	}
}

// StartCleanupScheduler runs a pass immediately and then every interval
// until ctx is cancelled. The returned channel closes when the goroutine
// exits.
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig) <-chan struct{} {
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupSchedulerConfig().Interval
	}
	done := make(chan struct{})

	go func() {
		defer close(done)

		run := func() {
			result, err := d.Cleanup(ctx, config.RetentionDays)
			if config.OnCleanup != nil {
				config.OnCleanup(result, err)
			}
		}
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
	return done
}
