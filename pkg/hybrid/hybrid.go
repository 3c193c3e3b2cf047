// Package hybrid implements the public façade of spec.md §4.6 (C6): the
// ordered key→value index that routes reads and writes between a
// write-optimized staging sub-index and a read-optimized stable
// sub-index, migrating entries between them in the background as access
// patterns evolve.
//
// Grounded on the teacher's pkg/core.HybridStore: Build/Get/Put routing,
// the bloom pre-filter, and the backgroundPersist ticker/closeCh/wg.Wait
// shutdown pattern are all the same shape, generalized from an
// LSM-tree-plus-learned-index persistent store to an in-memory
// staging/stable router with no sharding, no WAL, and no on-disk
// SSTables — persistence is explicitly out of scope (spec.md §1).
package hybrid

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hybridx/pkg/bloom"
	"hybridx/pkg/common"
	"hybridx/pkg/config"
	"hybridx/pkg/core/migration"
	"hybridx/pkg/core/policy"
	"hybridx/pkg/core/tracker"
	"hybridx/pkg/monitor"
	"hybridx/pkg/stable"
	"hybridx/pkg/stage"
)

type state int32

const (
	stateUninitialized state = iota
	stateBuilt
	stateDestructing
)

// backgroundTick is the cadence of the façade's single background loop
// (aging sweep + adaptive-threshold tick), matching the 100ms period
// spec.md §4.5 names for the adaptive controller and the teacher's own
// backgroundPersist ticker.
const backgroundTick = 100 * time.Millisecond

// Hybrid is the ordered key→value index of spec.md. The zero value is
// not usable; construct with New.
type Hybrid struct {
	cfg *config.Config

	staging *stage.BTree
	stable  *stable.Learned

	tracker *tracker.Tracker
	engine  *migration.Engine
	ctrl    *policy.Controller
	stats   *monitor.WorkloadStats
	filter  *bloom.Filter

	// rangeMu excludes RangeCount from the migration engine's
	// promote/evict critical section (spec.md §5); it never excludes
	// Lookup.
	rangeMu sync.RWMutex

	// controlMu guards the should_migrate check on Insert's hot path; a
	// failed try-lock simply skips the check for this call (spec.md §5).
	controlMu sync.Mutex

	insertCount atomic.Uint64
	state       atomic.Int32

	closeCh chan struct{}
	bgWG    sync.WaitGroup
}

// New constructs a Hybrid from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config) *Hybrid {
	if cfg == nil {
		cfg = config.Default()
	}

	stats := monitor.NewWorkloadStats()
	trk := tracker.New(cfg.TrackerCapacity, cfg.ConsecutiveWindow, cfg.PromotionCooldown,
		cfg.AgingHorizon, cfg.HotConsecutiveThreshold, cfg.HotAbsoluteThreshold)
	ctrl := policy.New(cfg.MigrationThreshold, cfg.BatchSize, cfg.MinBatch, cfg.MaxStaleness)

	h := &Hybrid{
		cfg:     cfg,
		staging: stage.New(),
		stable:  stable.New(),
		tracker: trk,
		ctrl:    ctrl,
		stats:   stats,
		filter:  bloom.New(uint(cfg.TrackerCapacity), 0.01),
		closeCh: make(chan struct{}),
	}
	h.engine = migration.New(h.staging, h.stable, trk, stats, &h.rangeMu, cfg.AsyncFlush)
	if cfg.AsyncFlush {
		h.engine.StartBackgroundWorker()
	}

	h.bgWG.Add(1)
	go h.backgroundLoop()

	h.state.Store(int32(stateUninitialized))
	return h
}

func (h *Hybrid) backgroundLoop() {
	defer h.bgWG.Done()

	ticker := time.NewTicker(backgroundTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.tracker.Age()
			if h.cfg.AdaptiveThreshold {
				h.ctrl.AdaptTick(h.stats)
			}
		case <-h.closeCh:
			return
		}
	}
}

// Build bulk-loads entries into the stable sub-index (spec.md §4.6).
// Duplicate keys within entries resolve last-writer-wins by input
// order, not by key order. parallelism contiguous chunks of the input
// are deduplicated concurrently via golang.org/x/sync/errgroup before a
// single sequential sort and stable-sub-index build; chunk results are
// merged in original chunk order so later input still wins ties, the
// same guarantee a purely sequential pass would give.
func (h *Hybrid) Build(entries []common.Entry, parallelism int) (time.Duration, error) {
	start := time.Now()

	if parallelism < 1 {
		parallelism = 1
	}
	chunks := partition(entries, parallelism)

	localMaps := make([]map[common.KeyType]common.ValueType, len(chunks))
	g, _ := errgroup.WithContext(context.Background())
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			m := make(map[common.KeyType]common.ValueType, len(chunk))
			for _, e := range chunk {
				m[e.Key] = e.Value
			}
			localMaps[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return time.Since(start), err
	}

	merged := make(map[common.KeyType]common.ValueType)
	for _, m := range localMaps {
		for k, v := range m {
			merged[k] = v
		}
	}

	sorted := make([]common.Entry, 0, len(merged))
	for k, v := range merged {
		sorted = append(sorted, common.Entry{Key: k, Value: v})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	if err := h.stable.BuildBulk(sorted); err != nil {
		return time.Since(start), fmt.Errorf("hybrid: build stable: %w", err)
	}
	if err := h.staging.BuildBulk(nil); err != nil {
		return time.Since(start), fmt.Errorf("hybrid: reset staging: %w", err)
	}

	newFilter := bloom.New(uint(len(sorted))+1, 0.01)
	for _, e := range sorted {
		newFilter.Add(e.Key)
	}
	h.filter = newFilter

	h.state.Store(int32(stateBuilt))
	return time.Since(start), nil
}

func partition(entries []common.Entry, parallelism int) [][]common.Entry {
	if len(entries) == 0 {
		return [][]common.Entry{{}}
	}
	if parallelism > len(entries) {
		parallelism = len(entries)
	}
	chunkSize := (len(entries) + parallelism - 1) / parallelism
	chunks := make([][]common.Entry, 0, parallelism)
	for start := 0; start < len(entries); start += chunkSize {
		end := start + chunkSize
		if end > len(entries) {
			end = len(entries)
		}
		chunks = append(chunks, entries[start:end])
	}
	return chunks
}

// Lookup implements the routing rule of spec.md §4.6: consult stable
// first (authoritative), then staging. A staging hit notes the access
// and, if the key is now classified hot, enqueues it for migration.
func (h *Hybrid) Lookup(key common.KeyType) (common.ValueType, bool) {
	h.stats.RecordLookup()

	if h.filter != nil && !h.filter.MightContain(key) {
		return 0, false
	}

	if v, ok := h.stable.Lookup(key); ok {
		h.tracker.Note(key, common.HitStable)
		return v, true
	}

	if v, ok := h.staging.Lookup(key); ok {
		hot := h.tracker.Note(key, common.HitStaging)
		if hot {
			h.engine.Enqueue(key)
		}
		return v, true
	}

	return 0, false
}

// Insert implements spec.md §4.6: note the access (spec.md §4.2's
// note(key, INSERT) — repeated inserts of the same key count toward the
// absolute-count hot threshold exactly like repeated Lookups), then
// route to stable if the key already resides there (it is
// authoritative; re-inserting into staging would create a duplicate
// staging never sees evicted) or the note just classified it hot,
// otherwise to staging. A key routed to staging is also pushed onto the
// migration queue, so a size- or time-triggered migration has something
// to drain even under a Lookup-free, insert-only workload. Every
// check_period-th insert evaluates the migration policy under a
// try-lock; a contended try-lock simply skips the check for this call
// (spec.md §5).
func (h *Hybrid) Insert(key common.KeyType, value common.ValueType) error {
	h.stats.RecordInsert()
	if h.filter != nil {
		h.filter.Add(key)
	}

	entry := common.Entry{Key: key, Value: value}
	_, resident := h.stable.Lookup(key)
	hot := h.tracker.Note(key, common.InsertKind)

	var err error
	if resident || hot {
		h.rangeMu.Lock()
		err = h.stable.Insert(entry)
		if err == nil && !resident {
			// A key that just turned hot may still have an older copy in
			// staging; drop it so the key lives in stable only.
			h.staging.Remove(key)
		}
		h.rangeMu.Unlock()
	} else {
		err = h.staging.Insert(entry)
		if err == nil {
			h.engine.Enqueue(key)
		}
	}
	if err != nil {
		return err
	}

	n := h.insertCount.Add(1)
	if n%uint64(h.cfg.CheckPeriod) == 0 {
		if h.controlMu.TryLock() {
			migrate := h.ctrl.ShouldMigrate(h.staging.Size(), h.stable.Size(), h.engine.QueueLen())
			h.controlMu.Unlock()
			if migrate {
				h.ctrl.MarkFlushed()
				h.engine.StartMigration()
			}
		}
	}

	return nil
}

// RangeCount returns |{K in staging ∪ stable : lo <= K <= hi}|. The read
// lock on rangeMu excludes the migration engine's promote/evict
// critical section, which is the only window invariant (1) could
// otherwise be briefly ambiguous during (spec.md §5).
func (h *Hybrid) RangeCount(lo, hi common.KeyType) int {
	h.rangeMu.RLock()
	defer h.rangeMu.RUnlock()
	return h.stable.RangeCount(lo, hi) + h.staging.RangeCount(lo, hi)
}

// Size returns |S| + |L|. Takes rangeMu.RLock() for the same reason
// RangeCount does: the migration engine's promote/evict critical
// section transiently holds a promoted key in both sub-indexes at once,
// and Size must not observe that window (spec.md §3, invariant 1).
func (h *Hybrid) Size() int {
	h.rangeMu.RLock()
	defer h.rangeMu.RUnlock()
	return h.staging.Size() + h.stable.Size()
}

// Name identifies this implementation for logging.
func (h *Hybrid) Name() string { return "HybridStagingStable" }

// Variant identifies this instance's configuration for logging.
func (h *Hybrid) Variant() string {
	return fmt.Sprintf("btree+rmi/threshold=%.3f/async=%v/adaptive=%v",
		h.ctrl.Threshold(), h.cfg.AsyncFlush, h.cfg.AdaptiveThreshold)
}

// Stats exposes a snapshot of the workload counters, for callers that
// want to observe the insert/lookup/migration mix without reaching into
// internals. With AdaptiveThreshold enabled, inserts and lookups count
// only since the last adaptive tick reset them; migrations is never
// reset.
func (h *Hybrid) Stats() (inserts, lookups, migrations uint64) {
	return h.stats.TotalInserts(), h.stats.TotalLookups(), h.stats.TotalMigrations()
}

// Diagnostics returns a sampled snapshot of the stable sub-index's
// prediction error, for operators inspecting index health.
func (h *Hybrid) Diagnostics() []stable.DiagnosticPoint {
	return h.stable.ExportDiagnostics()
}

// LookupSource instruments which sub-index answered key, for tests that
// verify promotion monotonicity (spec.md §8, P3) without otherwise
// affecting Lookup's behavior or tracker state.
func (h *Hybrid) LookupSource(key common.KeyType) (source string, ok bool) {
	if _, ok := h.stable.Lookup(key); ok {
		return "stable", true
	}
	if _, ok := h.staging.Lookup(key); ok {
		return "staging", true
	}
	return "", false
}

// Migrate starts one migration batch, for tests and operators that want
// to force a batch rather than waiting on the policy controller. With
// async_flush off the batch runs on the calling thread and is complete
// when Migrate returns; with async_flush on it wakes the background
// worker and returns without waiting for the batch. It respects the
// single-flight guard like any other StartMigration call.
func (h *Hybrid) Migrate() {
	h.engine.StartMigration()
}

// Close drains pending background work and releases resources
// (spec.md §4.6 state machine, Destructing). The background
// aging/adaptive loop and the migration engine's worker (if any) are
// both joined, never detached.
func (h *Hybrid) Close() {
	h.state.Store(int32(stateDestructing))
	close(h.closeCh)
	h.bgWG.Wait()
	h.engine.Close()
}
