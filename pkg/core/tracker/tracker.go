// Package tracker implements the hybrid's access tracker (spec.md §4.2):
// a bounded, per-key record of how often and how recently a key has been
// touched, used by the façade to classify keys as hot and feed the
// migration queue.
//
// Grounded on the teacher's pkg/monitor (atomic counters) and the
// concurrency design note in spec.md §9 ("use atomics for access_count
// and consecutive_count; take the control mutex only for map-level
// mutation").
package tracker

import (
	"sync"
	"time"

	"hybridx/pkg/common"
)

// KeyStat is the per-key record of spec.md §3.
type KeyStat struct {
	AccessCount       uint32
	ConsecutiveCount  uint32
	LastAccessTime    time.Time
	LastPromotionTime time.Time
	IsHot             bool
}

// Tracker is the bounded map of KeyStat, capacity M (spec.md invariant
// 5, "bounded tracker"). All map-structural mutation (insert, eviction,
// aging sweep) happens under mu; field updates to an existing KeyStat
// happen under the same lock since KeyStat itself holds no atomics —
// the map is expected to be small enough, and the hot path short enough,
// that this is not a bottleneck for the single-writer model the hybrid
// assumes (spec.md §5).
type Tracker struct {
	mu       sync.Mutex
	stats    map[common.KeyType]*KeyStat
	capacity int

	consecutiveWindow time.Duration
	hotConsecutive    int
	hotAbsolute       int
	promotionCooldown time.Duration
	agingHorizon      time.Duration

	now func() time.Time
}

// New returns an empty Tracker bounded at capacity entries.
func New(capacity int, consecutiveWindow, promotionCooldown, agingHorizon time.Duration, hotConsecutive, hotAbsolute int) *Tracker {
	return &Tracker{
		stats:             make(map[common.KeyType]*KeyStat),
		capacity:          capacity,
		consecutiveWindow: consecutiveWindow,
		hotConsecutive:    hotConsecutive,
		hotAbsolute:       hotAbsolute,
		promotionCooldown: promotionCooldown,
		agingHorizon:      agingHorizon,
		now:               time.Now,
	}
}

// Note records one access of kind for key, creates a KeyStat for it if
// absent (evicting the coldest entry first if at capacity), and reports
// whether the key is now classified hot (spec.md §4.2). The tracker only
// reports hotness; it never enforces it — that is the façade's job.
func (t *Tracker) Note(key common.KeyType, kind common.AccessKind) (hot bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	stat := t.stats[key]
	if stat == nil {
		if len(t.stats) >= t.capacity {
			t.evictColdestLocked()
		}
		stat = &KeyStat{}
		t.stats[key] = stat
	}

	if !stat.LastAccessTime.IsZero() && now.Sub(stat.LastAccessTime) < t.consecutiveWindow {
		stat.ConsecutiveCount++
	} else {
		stat.ConsecutiveCount = 1
	}
	stat.AccessCount++
	stat.LastAccessTime = now

	if stat.ConsecutiveCount >= uint32(t.hotConsecutive) {
		stat.IsHot = true
	} else if stat.AccessCount >= uint32(t.hotAbsolute) && now.Sub(stat.LastPromotionTime) > t.promotionCooldown {
		stat.IsHot = true
	}

	return stat.IsHot
}

// evictColdestLocked removes the entry with the smallest AccessCount,
// ties broken by the oldest LastAccessTime (spec.md §4.2). Called with
// mu held.
func (t *Tracker) evictColdestLocked() {
	var coldestKey common.KeyType
	var coldest *KeyStat
	first := true

	for k, s := range t.stats {
		if first {
			coldestKey, coldest, first = k, s, false
			continue
		}
		if s.AccessCount < coldest.AccessCount ||
			(s.AccessCount == coldest.AccessCount && s.LastAccessTime.Before(coldest.LastAccessTime)) {
			coldestKey, coldest = k, s
		}
	}
	if !first {
		delete(t.stats, coldestKey)
	}
}

// Age removes entries whose LastAccessTime is older than the configured
// aging horizon (spec.md §4.2). The hybrid façade's background loop
// calls it on every tick.
func (t *Tracker) Age() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for k, s := range t.stats {
		if now.Sub(s.LastAccessTime) > t.agingHorizon {
			delete(t.stats, k)
		}
	}
}

// MarkPromoted sets IsHot and refreshes LastPromotionTime for key, used
// by the migration engine's "Mark" step (spec.md §4.4 step 6).
func (t *Tracker) MarkPromoted(key common.KeyType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stat := t.stats[key]
	if stat == nil {
		if len(t.stats) >= t.capacity {
			t.evictColdestLocked()
		}
		stat = &KeyStat{}
		t.stats[key] = stat
	}
	stat.IsHot = true
	stat.LastPromotionTime = t.now()
}

// RollbackPromotion undoes MarkPromoted for a key whose migration failed
// (spec.md §4.4, "Failure semantics of step 4").
func (t *Tracker) RollbackPromotion(key common.KeyType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stat := t.stats[key]; stat != nil {
		stat.IsHot = false
	}
}

// IsHot reports whether key is currently classified hot, without
// recording a new access.
func (t *Tracker) IsHot(key common.KeyType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	stat := t.stats[key]
	return stat != nil && stat.IsHot
}

// Len returns |KeyStat|, for verifying the bounded-tracker invariant.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stats)
}
