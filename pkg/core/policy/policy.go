// Package policy implements the hybrid's threshold controller (spec.md
// §4.5): the should-migrate decision (size/queue/time triggers) and the
// optional adaptive-threshold feedback loop.
package policy

import (
	"sync"
	"time"

	"hybridx/pkg/monitor"
)

// Controller evaluates spec.md §4.5's three triggers and, if enabled,
// adapts MigrationThreshold based on the observed insert/lookup mix.
// MigrationThreshold is read and written under mu since the optional
// adaptive tick runs on its own goroutine concurrently with inserts
// evaluating ShouldMigrate.
type Controller struct {
	mu                 sync.RWMutex
	migrationThreshold float64

	batchSize    int
	minBatch     int
	maxStaleness time.Duration

	lastFlushTime time.Time
	now           func() time.Time
}

// New returns a Controller seeded with the given configuration values.
func New(migrationThreshold float64, batchSize, minBatch int, maxStaleness time.Duration) *Controller {
	return &Controller{
		migrationThreshold: migrationThreshold,
		batchSize:          batchSize,
		minBatch:           minBatch,
		maxStaleness:       maxStaleness,
		lastFlushTime:      time.Now(),
		now:                time.Now,
	}
}

// Threshold returns the current migration_threshold ratio.
func (c *Controller) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.migrationThreshold
}

// ShouldMigrate evaluates the three triggers of spec.md §4.5:
//   - size trigger: |S| > threshold * (|S|+|L|)
//   - queue trigger: |Q| >= batch_size
//   - time trigger: now-lastFlush > max_staleness AND |Q| > min_batch
func (c *Controller) ShouldMigrate(stagingSize, stableSize, queueLen int) bool {
	total := stagingSize + stableSize
	c.mu.RLock()
	threshold := c.migrationThreshold
	lastFlush := c.lastFlushTime
	c.mu.RUnlock()

	if total > 0 && float64(stagingSize) > threshold*float64(total) {
		return true
	}
	if queueLen >= c.batchSize {
		return true
	}
	if c.now().Sub(lastFlush) > c.maxStaleness && queueLen > c.minBatch {
		return true
	}
	return false
}

// MarkFlushed resets the time trigger's clock; call this once a
// migration batch has started (successfully or not — the clock tracks
// attempts, matching spec.md's "last_flush_time").
func (c *Controller) MarkFlushed() {
	c.mu.Lock()
	c.lastFlushTime = c.now()
	c.mu.Unlock()
}

// AdaptTick applies the three-way update rule of spec.md §4.5's table
// and resets stats. Intended to be called roughly every 100ms by a
// background ticker when AdaptiveThreshold is enabled.
func (c *Controller) AdaptTick(stats *monitor.WorkloadStats) {
	ratio := stats.InsertRatio()
	stats.Reset()

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case ratio > 0.7:
		c.migrationThreshold = min(0.30, c.migrationThreshold*1.02)
	case ratio < 0.3:
		c.migrationThreshold = max(0.005, c.migrationThreshold*0.98)
	default:
		c.migrationThreshold = max(0.01, c.migrationThreshold*0.99)
	}
}
