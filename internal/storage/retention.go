package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner deletes sensor records stamped before cutoff
type Pruner interface {
	DeleteBefore(cutoff time.Time) (int64, error)
}

// RetentionCleaner keeps the sensor history to a rolling window. The device
// status row is outside its reach.
type RetentionCleaner struct {
	store     Pruner
	logger    zerolog.Logger
	retention time.Duration
	period    time.Duration
	now       func() time.Time

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}

	mu    sync.RWMutex
	stats RetentionCleanerStats
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	Retention     time.Duration
	CleanupPeriod time.Duration
}

// DefaultRetentionCleanerConfig keeps 30 days and prunes hourly
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		Retention:     30 * 24 * time.Hour,
		CleanupPeriod: time.Hour,
	}
}

// RetentionCleanerStats describes what the cleaner has done so far
type RetentionCleanerStats struct {
	Retention       time.Duration `json:"retention"`
	Runs            int64         `json:"runs"`
	Failures        int64         `json:"failures"`
	TotalDeleted    int64         `json:"total_deleted"`
	LastDeleteCount int64         `json:"last_delete_count"`
	LastCutoff      time.Time     `json:"last_cutoff,omitempty"`
	LastRun         time.Time     `json:"last_run,omitempty"`
}

// NewRetentionCleaner starts pruning in the background, beginning immediately.
// Zero or negative settings fall back to the defaults.
func NewRetentionCleaner(store Pruner, config RetentionCleanerConfig, logger zerolog.Logger) *RetentionCleaner {
	return newRetentionCleaner(store, config, logger, time.Now)
}

func newRetentionCleaner(store Pruner, config RetentionCleanerConfig, logger zerolog.Logger, now func() time.Time) *RetentionCleaner {
	logger = logger.With().Str("component", "retention").Logger()
	defaults := DefaultRetentionCleanerConfig()

	if config.Retention <= 0 {
		logger.Warn().Dur("retention", config.Retention).Msg("Invalid retention, using default")
		config.Retention = defaults.Retention
	}
	if config.CleanupPeriod <= 0 {
		logger.Warn().Dur("cleanup_period", config.CleanupPeriod).Msg("Invalid cleanup period, using default")
		config.CleanupPeriod = defaults.CleanupPeriod
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &RetentionCleaner{
		store:     store,
		logger:    logger,
		retention: config.Retention,
		period:    config.CleanupPeriod,
		now:       now,
		cancel:    cancel,
		done:      make(chan struct{}),
		stats:     RetentionCleanerStats{Retention: config.Retention},
	}

	go c.loop(ctx)

	logger.Info().
		Dur("retention", c.retention).
		Dur("cleanup_period", c.period).
		Msg("RetentionCleaner started")

	return c
}

func (c *RetentionCleaner) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		c.RunNow()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunNow prunes once and returns the number of records removed
func (c *RetentionCleaner) RunNow() int64 {
	cutoff := c.now().UTC().Add(-c.retention)
	deleted, err := c.store.DeleteBefore(cutoff)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Runs++
	c.stats.LastRun = c.now()
	c.stats.LastCutoff = cutoff
	if err != nil {
		c.stats.Failures++
		c.logger.Error().Err(err).Time("cutoff", cutoff).Msg("Retention cleanup failed")
		return 0
	}
	c.stats.TotalDeleted += deleted
	c.stats.LastDeleteCount = deleted

	if deleted > 0 {
		c.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Pruned old sensor data")
	}
	return deleted
}

// Stop halts the background loop. Safe to call twice.
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		<-c.done
		c.logger.Info().Msg("RetentionCleaner stopped")
	})
}

// Stats returns a snapshot of the cleaner's counters
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
