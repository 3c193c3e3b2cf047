// Package monitor holds the hybrid's cumulative workload counters, used
// by the policy controller to decide when to migrate and, if adaptive
// thresholding is enabled, how to adjust the size-ratio trigger.
package monitor

import (
	"sync/atomic"
)

// WorkloadStats is the {inserts, lookups, migrations} triple of spec.md
// §3. All fields are accessed atomically; a snapshot is resettable by the
// policy controller after each adaptive tick (§4.5).
type WorkloadStats struct {
	Inserts    uint64
	Lookups    uint64
	Migrations uint64
}

// NewWorkloadStats returns a zeroed WorkloadStats.
func NewWorkloadStats() *WorkloadStats {
	return &WorkloadStats{}
}

// RecordInsert counts one Insert call.
func (ws *WorkloadStats) RecordInsert() {
	atomic.AddUint64(&ws.Inserts, 1)
}

// RecordLookup counts one Lookup call.
func (ws *WorkloadStats) RecordLookup() {
	atomic.AddUint64(&ws.Lookups, 1)
}

// RecordMigration counts one completed migration batch.
func (ws *WorkloadStats) RecordMigration() {
	atomic.AddUint64(&ws.Migrations, 1)
}

// InsertRatio returns inserts/(inserts+lookups), the figure §4.5's
// adaptive-threshold table keys its update rule on. Returns 0 when both
// counters are zero.
func (ws *WorkloadStats) InsertRatio() float64 {
	inserts := atomic.LoadUint64(&ws.Inserts)
	lookups := atomic.LoadUint64(&ws.Lookups)
	total := inserts + lookups
	if total == 0 {
		return 0
	}
	return float64(inserts) / float64(total)
}

// TotalInserts, TotalLookups, TotalMigrations expose snapshot reads of
// the counters. Inserts and Lookups are zeroed by Reset; Migrations is
// not.
func (ws *WorkloadStats) TotalInserts() uint64    { return atomic.LoadUint64(&ws.Inserts) }
func (ws *WorkloadStats) TotalLookups() uint64    { return atomic.LoadUint64(&ws.Lookups) }
func (ws *WorkloadStats) TotalMigrations() uint64 { return atomic.LoadUint64(&ws.Migrations) }

// Reset zeroes the insert/lookup counters used by the adaptive-threshold
// feedback loop (§4.5: "Stats are reset after each tick"). Migrations is
// a cumulative total and is never reset.
func (ws *WorkloadStats) Reset() {
	atomic.StoreUint64(&ws.Inserts, 0)
	atomic.StoreUint64(&ws.Lookups, 0)
}
