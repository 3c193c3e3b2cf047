// Package stage implements the hybrid's staging sub-index: an in-memory
// ordered B-tree chosen for cheap incremental insert and delete at the
// cost of a somewhat deeper point lookup than the stable sub-index.
//
// Grounded on the teacher's pkg/core/memory.MemTable, which wraps
// github.com/google/btree the same way; generalized here from a
// byte-slice-valued memtable to the hybrid's common.Entry, and extended
// with Remove and RangeCount so it satisfies core.SubIndex.
package stage

import (
	"sync"

	"github.com/google/btree"

	"hybridx/pkg/common"
	"hybridx/pkg/core"
)

// item is the btree.Item wrapper around an Entry, ordered by key.
type item struct {
	common.Entry
}

func (i item) Less(than btree.Item) bool {
	return i.Key < than.(item).Key
}

// BTree is a core.SubIndex backed by github.com/google/btree. Reads and
// writes are protected by a single RWMutex; the hybrid façade is the only
// intended writer, but Lookup/RangeCount are safe for concurrent readers.
type BTree struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// degree is the B-tree's branching factor. 32 matches the teacher's
// memtable default and is a reasonable balance of node-scan cost vs.
// tree depth for the key counts this sub-index is expected to hold
// before migration drains it.
const degree = 32

// New returns an empty staging sub-index.
func New() *BTree {
	return &BTree{tree: btree.New(degree)}
}

var _ core.SubIndex = (*BTree)(nil)

// BuildBulk replaces the tree's contents with entries. Hybrid.Build
// calls it with no entries, which empties staging.
func (b *BTree) BuildBulk(entries []common.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tree = btree.New(degree)
	for _, e := range entries {
		b.tree.ReplaceOrInsert(item{e})
	}
	return nil
}

// Lookup returns the value for key, if present.
func (b *BTree) Lookup(key common.KeyType) (common.ValueType, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	found := b.tree.Get(item{common.Entry{Key: key}})
	if found == nil {
		return 0, false
	}
	return found.(item).Value, true
}

// RangeCount counts keys in [lo, hi] by ascending from lo and stopping
// once the walk passes hi.
func (b *BTree) RangeCount(lo, hi common.KeyType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	b.tree.AscendGreaterOrEqual(item{common.Entry{Key: lo}}, func(i btree.Item) bool {
		if i.(item).Key > hi {
			return false
		}
		count++
		return true
	})
	return count
}

// Insert adds or overwrites entry. O(log n).
func (b *BTree) Insert(entry common.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tree.ReplaceOrInsert(item{entry})
	return nil
}

// Remove deletes key if present. Required by the migration engine's
// eviction step (§4.4 of spec.md); Open Question 1 of spec.md is
// resolved here as choice (a) — staging supports removal, so the hybrid
// never needs an eviction filter.
func (b *BTree) Remove(key common.KeyType) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := b.tree.Delete(item{common.Entry{Key: key}})
	return removed != nil
}

// Size returns the number of entries currently staged.
func (b *BTree) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Len()
}

// Snapshot returns a sorted copy of all entries, used by the migration
// engine's resolve step when it needs values rather than mere membership.
func (b *BTree) Snapshot() []common.Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]common.Entry, 0, b.tree.Len())
	b.tree.Ascend(func(i btree.Item) bool {
		out = append(out, i.(item).Entry)
		return true
	})
	return out
}
