// Package queue implements the hybrid's migration queue (spec.md §4.3):
// an ordered, duplicate-free sequence of candidate keys awaiting
// promotion from staging to stable.
package queue

import "hybridx/pkg/common"

// Queue is a set-deduplicated, insertion-ordered sequence of keys.
// Callers hold their own mutex around every method (the migration
// engine uses its qmu) — Queue itself does no locking.
type Queue struct {
	order []common.KeyType
	seen  map[common.KeyType]struct{}
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{seen: make(map[common.KeyType]struct{})}
}

// PushBack appends key, rejecting it silently if already present.
func (q *Queue) PushBack(key common.KeyType) {
	if _, ok := q.seen[key]; ok {
		return
	}
	q.seen[key] = struct{}{}
	q.order = append(q.order, key)
}

// Contains reports whether key is currently queued.
func (q *Queue) Contains(key common.KeyType) bool {
	_, ok := q.seen[key]
	return ok
}

// Len returns the number of queued keys.
func (q *Queue) Len() int {
	return len(q.order)
}

// Drain atomically hands back the queue's contents in insertion order
// and clears the queue (spec.md §4.4 step 1, "Drain").
func (q *Queue) Drain() []common.KeyType {
	drained := q.order
	q.order = nil
	q.seen = make(map[common.KeyType]struct{})
	return drained
}

// Clear empties the queue without returning its contents.
func (q *Queue) Clear() {
	q.order = nil
	q.seen = make(map[common.KeyType]struct{})
}
