package model

import "hybridx/pkg/common"

// bucketModel is a least-squares regression Key -> Position: the RMI's
// layer 2, one instance per bucket. Update performs an online
// single-point incremental refit rather than a full retrain, which is
// what makes a single insert into the stable sub-index comparatively
// more expensive than a staging insert: every Insert recomputes
// slope/intercept from the running sums.
type bucketModel struct {
	slope     float64
	intercept float64
	n         float64
	sumX      float64
	sumY      float64
	sumXY     float64
	sumXX     float64
}

func newBucketModel() *bucketModel {
	return &bucketModel{}
}

func (bm *bucketModel) trainWithPos(keys []common.KeyType, positions []int) {
	bm.n = float64(len(keys))
	bm.sumX, bm.sumY, bm.sumXY, bm.sumXX = 0, 0, 0, 0

	for i, key := range keys {
		x := float64(key)
		y := float64(positions[i])

		bm.sumX += x
		bm.sumY += y
		bm.sumXY += x * y
		bm.sumXX += x * x
	}
	bm.solve()
}

func (bm *bucketModel) update(key common.KeyType, pos int) {
	x := float64(key)
	y := float64(pos)

	bm.n++
	bm.sumX += x
	bm.sumY += y
	bm.sumXY += x * y
	bm.sumXX += x * x

	bm.solve()
}

func (bm *bucketModel) solve() {
	denominator := bm.n*bm.sumXX - bm.sumX*bm.sumX
	if denominator == 0 {
		bm.slope = 0
		bm.intercept = 0
	} else {
		bm.slope = (bm.n*bm.sumXY - bm.sumX*bm.sumY) / denominator
		bm.intercept = (bm.sumY - bm.slope*bm.sumX) / bm.n
	}
}

func (bm *bucketModel) predict(key common.KeyType) int {
	return int(bm.slope*float64(key) + bm.intercept)
}

// RMIModel is a two-layer recursive model index.
// Layer 1: radix bucketing — a cheap linear mapping into one of fanout
// buckets. Layer 2: a bucketModel per bucket, trained on that bucket's
// keys and their global positions.
type RMIModel struct {
	globalMin common.KeyType
	globalMax common.KeyType
	fanout    int
	buckets   []*bucketModel
	hasData   bool
}

// NewRMIModel returns an untrained model with the given bucket fanout.
func NewRMIModel(fanout int) *RMIModel {
	return &RMIModel{
		fanout:  fanout,
		buckets: make([]*bucketModel, fanout),
	}
}

func (rmi *RMIModel) bucketOf(key common.KeyType, keyRange float64) int {
	idx := int(float64(key-rmi.globalMin) / keyRange * float64(rmi.fanout))
	if idx >= rmi.fanout {
		idx = rmi.fanout - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Train fits layer 1's bucket boundaries from keys' min/max, then fits
// each bucket's layer-2 bucketModel against the keys that land in it and
// their position in the (already-sorted) keys slice.
func (rmi *RMIModel) Train(keys []common.KeyType) {
	if len(keys) == 0 {
		return
	}

	rmi.globalMin = keys[0]
	rmi.globalMax = keys[len(keys)-1]
	rmi.hasData = true

	keyRange := float64(rmi.globalMax - rmi.globalMin)
	if keyRange == 0 {
		keyRange = 1
	}

	bucketKeys := make([][]common.KeyType, rmi.fanout)
	bucketPoss := make([][]int, rmi.fanout)

	for i, key := range keys {
		idx := rmi.bucketOf(key, keyRange)
		bucketKeys[idx] = append(bucketKeys[idx], key)
		bucketPoss[idx] = append(bucketPoss[idx], i)
	}

	for i := 0; i < rmi.fanout; i++ {
		rmi.buckets[i] = newBucketModel()
		rmi.buckets[i].trainWithPos(bucketKeys[i], bucketPoss[i])
	}
}

// Update incrementally refits the bucket key falls into to reflect a
// newly inserted (key, pos) pair. A key outside [globalMin, globalMax]
// widens those bounds, which shifts layer 1's bucket boundaries for
// every key, but no other bucket is refit. This is cheaper than a full Train, but still an order of
// magnitude more work than a staging B-tree insert — which is exactly
// the cost asymmetry the hybrid is built to exploit.
func (rmi *RMIModel) Update(key common.KeyType, pos int) {
	if !rmi.hasData {
		// First-ever point: establish trivial bounds so bucketOf doesn't
		// divide by a meaningless range.
		rmi.globalMin, rmi.globalMax = key, key
		rmi.hasData = true
	}
	if key < rmi.globalMin {
		rmi.globalMin = key
	}
	if key > rmi.globalMax {
		rmi.globalMax = key
	}

	keyRange := float64(rmi.globalMax - rmi.globalMin)
	if keyRange == 0 {
		keyRange = 1
	}

	idx := rmi.bucketOf(key, keyRange)
	if rmi.buckets[idx] == nil {
		rmi.buckets[idx] = newBucketModel()
	}
	rmi.buckets[idx].update(key, pos)
}

// Predict returns the predicted position of key in the backing sorted
// array.
func (rmi *RMIModel) Predict(key common.KeyType) int {
	keyRange := float64(rmi.globalMax - rmi.globalMin)
	if keyRange == 0 {
		if rmi.buckets[0] != nil {
			return rmi.buckets[0].predict(key)
		}
		return 0
	}

	idx := rmi.bucketOf(key, keyRange)
	if rmi.buckets[idx] == nil {
		return 0
	}
	return rmi.buckets[idx].predict(key)
}
