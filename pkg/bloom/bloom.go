// Package bloom implements a small fixed-size Bloom filter the hybrid
// façade uses as a cheap pre-check before touching either sub-index on a
// Lookup miss.
//
// Grounded on the teacher's pkg/core/structure.BloomFilter (same
// double-hashing construction), generalized from a per-shard filter
// gating a memtable+SSTable chain to one filter spanning the whole
// hybrid's keyspace (staging ∪ stable), since this spec has no sharding.
package bloom

import (
	"hash/fnv"
	"math"
	"sync"

	"hybridx/pkg/common"
)

// Filter is a concurrency-safe Bloom filter over common.KeyType.
type Filter struct {
	mu     sync.RWMutex
	bitset []bool
	k      uint
	m      uint
}

// New sizes a filter for n expected entries at false-positive rate p.
func New(n uint, p float64) *Filter {
	if n == 0 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}

	m := uint(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	k := uint(math.Ceil((float64(m) / float64(n)) * math.Ln2))
	if k == 0 {
		k = 1
	}

	return &Filter{
		bitset: make([]bool, m),
		k:      k,
		m:      m,
	}
}

// Add marks key as present.
func (f *Filter) Add(key common.KeyType) {
	f.mu.Lock()
	defer f.mu.Unlock()

	h1, h2 := hash1(key), hash2(key)
	for i := uint(0); i < f.k; i++ {
		pos := (h1 + uint32(i)*h2) % uint32(f.m)
		f.bitset[pos] = true
	}
}

// MightContain reports whether key may be present. A false result is
// certain; a true result may be a false positive.
func (f *Filter) MightContain(key common.KeyType) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	h1, h2 := hash1(key), hash2(key)
	for i := uint(0); i < f.k; i++ {
		pos := (h1 + uint32(i)*h2) % uint32(f.m)
		if !f.bitset[pos] {
			return false
		}
	}
	return true
}

func hash1(key common.KeyType) uint32 {
	h := fnv.New32a()
	b := [8]byte{
		byte(key), byte(key >> 8), byte(key >> 16), byte(key >> 24),
		byte(key >> 32), byte(key >> 40), byte(key >> 48), byte(key >> 56),
	}
	h.Write(b[:])
	return h.Sum32()
}

func hash2(key common.KeyType) uint32 {
	return uint32(key ^ (key >> 32))
}
