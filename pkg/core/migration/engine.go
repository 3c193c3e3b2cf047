// Package migration implements the hybrid's migration engine (spec.md
// §4.4): the batched drain/resolve/sort/promote/evict/mark protocol that
// moves hot keys from staging to stable, either on the calling thread or
// on a single background worker parked on a condition variable.
//
// Grounded on the teacher's hybrid_store.go backgroundPersist goroutine
// (closeCh/wg.Wait() shutdown pattern), generalized from a ticker-driven
// periodic flush to an on-demand, condition-variable-driven batch runner
// — migration is triggered by the policy controller, not by a fixed
// clock.
package migration

import (
	"sort"
	"sync"
	"sync/atomic"

	"hybridx/pkg/common"
	"hybridx/pkg/core"
	"hybridx/pkg/core/queue"
	"hybridx/pkg/core/tracker"
	"hybridx/pkg/monitor"
)

// Engine runs the migration protocol against a staging and a stable
// sub-index. There is at most one migration in flight per Engine; a
// second StartMigration call while one is running is a no-op (spec.md
// §4.4, "Concurrency").
type Engine struct {
	staging core.SubIndex
	stable  core.SubIndex
	tracker *tracker.Tracker
	stats   *monitor.WorkloadStats

	// rangeMu is the "migration mutex" of spec.md §5: its write lock
	// excludes RangeCount from the promote/evict critical section (the
	// batch is sorted before the lock is taken), but never excludes
	// Lookup.
	rangeMu *sync.RWMutex

	qmu sync.Mutex // control mutex for q, spec.md §9
	q   *queue.Queue

	migrating atomic.Bool

	async      bool
	condMu     sync.Mutex
	cond       *sync.Cond
	pending    bool
	stopWorker bool
	workerWG   sync.WaitGroup
	started    bool
}

// New returns an Engine over staging/stable, sharing trk and stats with
// the façade, and excluding rangeMu during its critical section. async
// selects the background-worker path (spec.md §6, "async_flush").
func New(staging, stable core.SubIndex, trk *tracker.Tracker, stats *monitor.WorkloadStats, rangeMu *sync.RWMutex, async bool) *Engine {
	e := &Engine{
		staging: staging,
		stable:  stable,
		tracker: trk,
		stats:   stats,
		rangeMu: rangeMu,
		q:       queue.New(),
		async:   async,
	}
	e.cond = sync.NewCond(&e.condMu)
	return e
}

// Enqueue pushes key onto the migration queue (spec.md §4.3).
func (e *Engine) Enqueue(key common.KeyType) {
	e.qmu.Lock()
	e.q.PushBack(key)
	e.qmu.Unlock()
}

// QueueLen reports the current queue length, used by the policy
// controller's queue trigger (spec.md §4.5).
func (e *Engine) QueueLen() int {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	return e.q.Len()
}

// InFlight reports whether a migration batch is currently running.
func (e *Engine) InFlight() bool {
	return e.migrating.Load()
}

// StartBackgroundWorker launches the single long-lived worker goroutine
// used when async is true. It is idempotent; calling it when async is
// false or when already started is a no-op. The worker is joined on
// Close, never detached (spec.md §9, "Background worker lifetime").
func (e *Engine) StartBackgroundWorker() {
	if !e.async || e.started {
		return
	}
	e.started = true
	e.workerWG.Add(1)
	go e.workerLoop()
}

// Close signals the background worker to stop and waits for it to exit.
// Any in-flight batch is allowed to complete first (spec.md §4.4,
// "Synchronous vs asynchronous"; §5, "Cancellation").
func (e *Engine) Close() {
	if !e.started {
		return
	}
	e.condMu.Lock()
	e.stopWorker = true
	e.cond.Signal()
	e.condMu.Unlock()
	e.workerWG.Wait()
}

func (e *Engine) workerLoop() {
	defer e.workerWG.Done()

	e.condMu.Lock()
	for {
		for !e.pending && !e.stopWorker {
			e.cond.Wait()
		}
		if e.stopWorker && !e.pending {
			e.condMu.Unlock()
			return
		}
		e.pending = false
		e.condMu.Unlock()

		e.runBatch()
		e.migrating.Store(false)

		e.condMu.Lock()
	}
}

// StartMigration begins a migration batch, synchronously on the calling
// thread if async is false, or by waking the background worker if true.
// A second call while one batch is already in flight is a silent no-op
// (spec.md §4.4).
func (e *Engine) StartMigration() {
	if !e.migrating.CompareAndSwap(false, true) {
		return
	}

	if e.async {
		e.condMu.Lock()
		e.pending = true
		e.cond.Signal()
		e.condMu.Unlock()
		return
	}

	defer e.migrating.Store(false)
	e.runBatch()
}

// runBatch is the six-step protocol of spec.md §4.4: drain, resolve,
// sort, promote, evict, mark.
func (e *Engine) runBatch() {
	e.qmu.Lock()
	drained := e.q.Drain()
	e.qmu.Unlock()

	if len(drained) == 0 {
		return
	}

	resolved := e.resolve(drained)
	if len(resolved) == 0 {
		return
	}

	sort.Slice(resolved, func(i, j int) bool { return resolved[i].Key < resolved[j].Key })

	e.rangeMu.Lock()
	promoted := e.promote(resolved)
	for _, key := range promoted {
		e.staging.Remove(key)
	}
	e.rangeMu.Unlock()

	if len(promoted) == 0 {
		return
	}
	for _, key := range promoted {
		e.tracker.MarkPromoted(key)
	}
	e.stats.RecordMigration()
}

// snapshotter is implemented by a staging sub-index that can hand back
// all of its entries at once. resolve uses it, when available, to
// settle an entire drained batch against one read of staging's contents
// instead of one tree descent per candidate key.
type snapshotter interface {
	Snapshot() []common.Entry
}

// resolve performs step 2 of spec.md §4.4: re-check each drained
// candidate against staging, dropping any that already migrated or no
// longer exist, and pairing survivors with their current value.
func (e *Engine) resolve(drained []common.KeyType) []common.Entry {
	resolved := make([]common.Entry, 0, len(drained))

	if snap, ok := e.staging.(snapshotter); ok {
		current := make(map[common.KeyType]common.ValueType, len(drained))
		for _, entry := range snap.Snapshot() {
			current[entry.Key] = entry.Value
		}
		for _, key := range drained {
			if v, ok := current[key]; ok {
				resolved = append(resolved, common.Entry{Key: key, Value: v})
			}
		}
		return resolved
	}

	for _, key := range drained {
		v, ok := e.staging.Lookup(key)
		if !ok {
			continue // already migrated or no longer present
		}
		resolved = append(resolved, common.Entry{Key: key, Value: v})
	}
	return resolved
}

// entryLister is implemented by a stable sub-index that can hand back
// its current contents for a merge-rebuild. Sub-indexes that can't
// (or that promote never rebuilds, like staging) simply don't satisfy
// it, and promote falls back to per-key Insert.
type entryLister interface {
	Entries() []common.Entry
}

// promote performs step 4 of spec.md §4.4, at the exact threshold
// SPEC_FULL.md documents: an empty stable is built directly from the
// batch; a batch at least as large as a non-empty stable's current size
// rebuilds via BuildBulk over a merge of stable's existing entries and
// the batch when stable implements entryLister; otherwise the batch is
// applied with a per-key Insert.
// Rebuilding via merge keeps a batch that doubles (or more than
// doubles) stable's size from paying one Insert's worth of refit per
// key. On failure for a key, its hot flag is rolled back and it is
// excluded from the returned slice, so the caller leaves it in staging
// for a later batch to retry (spec.md §4.4, "Failure semantics of step
// 4"). Called with rangeMu held.
func (e *Engine) promote(resolved []common.Entry) []common.KeyType {
	promoted := make([]common.KeyType, 0, len(resolved))

	stableSize := e.stable.Size()
	lister, canList := e.stable.(entryLister)
	if stableSize == 0 || (canList && len(resolved) >= stableSize) {
		merged := resolved
		if stableSize > 0 {
			merged = mergeSortedUnique(lister.Entries(), resolved)
		}
		if err := e.stable.BuildBulk(merged); err != nil {
			for _, entry := range resolved {
				e.tracker.RollbackPromotion(entry.Key)
			}
			return nil
		}
		for _, entry := range resolved {
			promoted = append(promoted, entry.Key)
		}
		return promoted
	}

	for _, entry := range resolved {
		if err := e.stable.Insert(entry); err != nil {
			e.tracker.RollbackPromotion(entry.Key)
			continue
		}
		promoted = append(promoted, entry.Key)
	}
	return promoted
}

// mergeSortedUnique merges two ascending, duplicate-free-by-key slices
// into one. A key present in both takes its value from b — promote
// calls this with a's already-stable and b's freshly resolved from
// staging, and a key can only reach promote's batch by still being
// present in staging, so b always holds the newer value.
func mergeSortedUnique(a, b []common.Entry) []common.Entry {
	merged := make([]common.Entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Key < b[j].Key:
			merged = append(merged, a[i])
			i++
		case a[i].Key > b[j].Key:
			merged = append(merged, b[j])
			j++
		default:
			merged = append(merged, b[j])
			i++
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}
