// Package model implements the two-layer recursive model index ("RMI")
// used inside the stable sub-index: a first-layer radix bucketing step
// followed by a per-bucket linear regression. Grounded on the teacher's
// pkg/model (same two-layer design), generalized from int64 keys to the
// hybrid's common.KeyType and with RMIModel.Update as the hook the
// stable sub-index uses for incremental (and deliberately more
// expensive than staging's) per-key insertion.
package model

import "hybridx/pkg/common"

// Model is satisfied by anything that maps a key to a predicted position
// in a sorted array of entries.
type Model interface {
	Train(keys []common.KeyType)
	Predict(key common.KeyType) int
}
