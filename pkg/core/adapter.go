// Package core defines the contract the hybrid façade uses to talk to its
// two sub-indexes without knowing their concrete algorithms (spec.md §4.1
// / §6, "Sub-index adapter contract"). Concrete adapters live in sibling
// packages (pkg/stage, pkg/stable); core itself has no dependency on them,
// so the façade can be generic over whichever pair it is given — spec.md
// P5 ("Adapter-independence").
package core

import (
	"fmt"

	"hybridx/pkg/common"
)

// SubIndex is the uniform contract both the staging and the stable
// sub-index satisfy. It is deliberately small: the hybrid never needs
// anything from a collaborator beyond these six operations.
type SubIndex interface {
	// BuildBulk replaces the sub-index's contents with sorted, unique
	// entries. Implementations may assume entries are already sorted
	// ascending by key and free of duplicates; the caller (the hybrid
	// façade) is responsible for that invariant.
	BuildBulk(entries []common.Entry) error

	// Lookup returns the value for key and true, or the zero value and
	// false if key is absent (the NOT_FOUND sentinel of spec.md §6,
	// expressed the idiomatic Go way).
	Lookup(key common.KeyType) (common.ValueType, bool)

	// RangeCount returns the number of keys in [lo, hi].
	RangeCount(lo, hi common.KeyType) int

	// Insert adds or overwrites entry. Idempotent on duplicate keys.
	Insert(entry common.Entry) error

	// Remove deletes key if present and reports whether it was found.
	// A sub-index that never needs removal (the stable sub-index, under
	// the monotone-promotion invariant) may implement this as a no-op
	// that always returns false.
	Remove(key common.KeyType) bool

	// Size returns the number of entries currently held.
	Size() int
}

// CapacityError is returned by a sub-index when it refuses to grow
// (spec.md §7). Build errors propagate to the caller; Insert/Lookup/
// RangeCount errors from sub-indexes also propagate, but migration
// never surfaces this — a failed promotion rolls back the key's hot
// flag and leaves the key in staging.
type CapacityError struct {
	SubIndex string
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: at capacity (%d)", e.SubIndex, e.Capacity)
}
