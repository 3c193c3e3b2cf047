// Package stable implements the hybrid's stable sub-index: a sorted
// array searched through a two-layer recursive model (pkg/model), plus a
// small correction scan to cover the model's bounded prediction error.
// Point lookup is fast once trained; building it in bulk (sort + train)
// is cheap, but a single incremental Insert is comparatively expensive —
// it must shift the backing array and refit a bucket model, which is the
// cost asymmetry that makes staging the right home for bursty writes.
//
// Grounded on the teacher's pkg/core/learned.LearnedIndex + pkg/model,
// generalized from a byte-slice-valued, persist-to-disk index (Save/
// Load) to the hybrid's common.Entry with no persistence (spec.md's
// non-goals exclude it) and with a real single-key Insert rather than
// only batch Append.
package stable

import (
	"sort"
	"sync"

	"hybridx/pkg/common"
	"hybridx/pkg/core"
	"hybridx/pkg/model"
)

// fanout is the RMI's bucket count. 64 trades off bucket-training cost
// against per-bucket correction-scan width for the key counts the stable
// sub-index is expected to hold (migration batches up to a few thousand
// keys at a time, folded into a sub-index that may already hold many
// more).
const fanout = 64

// correctionScanWidth is the error-bound window below which the
// correction scan does a plain linear walk instead of a binary search;
// matches the teacher's choice of 16.
const correctionScanWidth = 16

// Learned is a core.SubIndex backed by a sorted slice and an RMI.
type Learned struct {
	mu      sync.RWMutex
	records []common.Entry
	rmi     *model.RMIModel
	minErr  int
	maxErr  int
}

// New returns an empty stable sub-index.
func New() *Learned {
	return &Learned{rmi: model.NewRMIModel(fanout)}
}

var _ core.SubIndex = (*Learned)(nil)

// BuildBulk sorts entries, trains a fresh RMI over them, and measures
// the model's worst-case under/over-prediction so Lookup/RangeCount know
// how wide a correction window to scan.
func (l *Learned) BuildBulk(entries []common.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sorted := make([]common.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	keys := make([]common.KeyType, len(sorted))
	for i, e := range sorted {
		keys[i] = e.Key
	}

	rmi := model.NewRMIModel(fanout)
	rmi.Train(keys)

	minErr, maxErr := 0, 0
	for i, key := range keys {
		err := i - rmi.Predict(key)
		if err < minErr {
			minErr = err
		}
		if err > maxErr {
			maxErr = err
		}
	}

	l.records = sorted
	l.rmi = rmi
	l.minErr = minErr
	l.maxErr = maxErr
	return nil
}

// boundsFor returns the [low, high] correction window for a predicted
// position, clamped to the backing slice.
func (l *Learned) boundsFor(predicted int) (int, int) {
	low, high := predicted+l.minErr, predicted+l.maxErr
	if low < 0 {
		low = 0
	}
	if high >= len(l.records) {
		high = len(l.records) - 1
	}
	return low, high
}

// Lookup predicts key's position and scans the resulting error-bound
// window for an exact match.
func (l *Learned) Lookup(key common.KeyType) (common.ValueType, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.records) == 0 {
		return 0, false
	}

	low, high := l.boundsFor(l.rmi.Predict(key))
	if low > high {
		return 0, false
	}

	if high-low < correctionScanWidth {
		for i := low; i <= high; i++ {
			if l.records[i].Key == key {
				return l.records[i].Value, true
			}
			if l.records[i].Key > key {
				return 0, false
			}
		}
		return 0, false
	}

	window := l.records[low : high+1]
	idx := sort.Search(len(window), func(i int) bool { return window[i].Key >= key })
	if idx < len(window) && window[idx].Key == key {
		return window[idx].Value, true
	}
	return 0, false
}

// RangeCount predicts lo's position, walks backward/forward to the true
// lower bound, then counts forward until exceeding hi.
func (l *Learned) RangeCount(lo, hi common.KeyType) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.records) == 0 {
		return 0
	}

	start := l.rmi.Predict(lo) + l.minErr
	if start < 0 {
		start = 0
	}
	if start >= len(l.records) {
		start = len(l.records) - 1
	}
	for start > 0 && l.records[start].Key >= lo {
		start--
	}
	for start < len(l.records) && l.records[start].Key < lo {
		start++
	}

	count := 0
	for i := start; i < len(l.records); i++ {
		if l.records[i].Key > hi {
			break
		}
		if l.records[i].Key >= lo {
			count++
		}
	}
	return count
}

// Insert adds or overwrites a single entry. Unlike BuildBulk, this is a
// real incremental mutation: it shifts the backing slice (or replaces
// in place on a duplicate key) and updates the RMI bucket the key falls
// into, which is measurably more expensive than a staging B-tree insert
// — the asymmetry spec.md §1 describes as "expensive to mutate
// incrementally".
func (l *Learned) Insert(entry common.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := sort.Search(len(l.records), func(i int) bool { return l.records[i].Key >= entry.Key })
	if idx < len(l.records) && l.records[idx].Key == entry.Key {
		l.records[idx].Value = entry.Value
		return nil
	}

	l.records = append(l.records, common.Entry{})
	copy(l.records[idx+1:], l.records[idx:])
	l.records[idx] = entry

	l.rmi.Update(entry.Key, idx)
	l.recomputeErrorBoundsLocked()
	return nil
}

// recomputeErrorBoundsLocked rescans every record's predicted position
// against the RMI and recomputes minErr/maxErr from scratch. A single
// Update call can move globalMin/globalMax, which shifts bucketOf's
// bucket assignment — and so the predicted position — for keys other
// than the one just inserted, not only the new entry. Widening the
// bounds from just the new key's error is not enough to keep the
// correction window valid for every previously-inserted key, so a full
// rescan runs on every mutation instead. This is the expensive half of
// the cost asymmetry spec.md's design describes for the stable
// sub-index: a single incremental insert costs an O(n) rescan, not O(1).
// Called with mu held.
func (l *Learned) recomputeErrorBoundsLocked() {
	minErr, maxErr := 0, 0
	for i, rec := range l.records {
		err := i - l.rmi.Predict(rec.Key)
		if err < minErr {
			minErr = err
		}
		if err > maxErr {
			maxErr = err
		}
	}
	l.minErr = minErr
	l.maxErr = maxErr
}

// ErrorBounds returns the current [minErr, maxErr] correction window
// the learned index uses to bound Lookup/RangeCount's scan width.
func (l *Learned) ErrorBounds() (minErr, maxErr int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minErr, l.maxErr
}

// DiagnosticPoint is one sampled (key, true position, predicted
// position, error) observation, used to inspect model health.
type DiagnosticPoint struct {
	Key          common.KeyType
	RealPos      int
	PredictedPos int
	Error        int
}

// ExportDiagnostics samples the backing slice (at most 5000 points,
// evenly strided for larger indexes) and reports the model's prediction
// error at each sampled point.
//
// Grounded on the teacher's pkg/core/learned.LearnedIndex.ExportDiagnostics
// (same stride-sampling construction), generalized from int64 keys to
// common.KeyType.
func (l *Learned) ExportDiagnostics() []DiagnosticPoint {
	l.mu.RLock()
	defer l.mu.RUnlock()

	step := 1
	if len(l.records) > 5000 {
		step = (len(l.records) + 4999) / 5000
	}

	out := make([]DiagnosticPoint, 0, len(l.records)/step+1)
	for i := 0; i < len(l.records); i += step {
		rec := l.records[i]
		pred := l.rmi.Predict(rec.Key)
		out = append(out, DiagnosticPoint{
			Key:          rec.Key,
			RealPos:      i,
			PredictedPos: pred,
			Error:        i - pred,
		})
	}
	return out
}

// Entries returns a copy of the backing sorted slice, for the migration
// engine's merge-rebuild promotion path (a batch at least as large as
// the current stable size rebuilds via BuildBulk rather than per-key
// Insert).
func (l *Learned) Entries() []common.Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]common.Entry, len(l.records))
	copy(out, l.records)
	return out
}

// Remove is a documented no-op: the hybrid's monotone-promotion
// invariant (spec.md §3, invariant 3) means a key only ever moves into
// the stable sub-index, never out of it, so migration never calls this.
func (l *Learned) Remove(common.KeyType) bool {
	return false
}

// Size returns the number of entries held.
func (l *Learned) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
