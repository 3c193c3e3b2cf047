// hybriddemo exercises the hybrid index directly as a library, with no
// client/server hop — unlike the teacher's cmd/example and cmd/benchmark,
// which talk to a running server over TCP/HTTP, this repo has no network
// surface (spec.md §1 scope is the index itself).
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"hybridx/pkg/common"
	"hybridx/pkg/config"
	"hybridx/pkg/hybrid"
)

func main() {
	configPath := flag.String("config", "", "path to a hybrid.yaml config file (optional)")
	buildN := flag.Int("build-n", 10000, "number of keys to bulk-load in the initial Build")
	insertN := flag.Int("insert-n", 5000, "number of additional keys to Insert after Build")
	parallelism := flag.Int("parallelism", 4, "Build parallelism")
	seed := flag.Int64("seed", 1, "PRNG seed for the demo workload")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	h := hybrid.New(cfg)
	defer h.Close()

	rnd := rand.New(rand.NewSource(*seed))

	entries := make([]common.Entry, *buildN)
	for i := range entries {
		k := common.KeyType(i + 1)
		entries[i] = common.Entry{Key: k, Value: k * 10}
	}

	dur, err := h.Build(entries, *parallelism)
	if err != nil {
		log.Fatalf("build: %v", err)
	}
	fmt.Printf("Build(%d entries, parallelism=%d) took %v\n", len(entries), *parallelism, dur)
	fmt.Printf("Size after build: %d\n", h.Size())

	for i := 0; i < *insertN; i++ {
		k := common.KeyType(*buildN + i + 1)
		if err := h.Insert(k, k*10); err != nil {
			log.Fatalf("insert(%d): %v", k, err)
		}
	}
	fmt.Printf("Size after %d inserts: %d\n", *insertN, h.Size())

	hot := common.KeyType(rnd.Intn(*buildN) + 1)
	for i := 0; i < 5; i++ {
		if v, ok := h.Lookup(hot); ok {
			fmt.Printf("Lookup(%d) = %d (source check-in %d)\n", hot, v, i)
		}
	}
	h.Migrate()
	if source, ok := h.LookupSource(hot); ok {
		fmt.Printf("key %d now answered by: %s\n", hot, source)
	}

	lo, hi := common.KeyType(1), common.KeyType(*buildN)
	start := time.Now()
	count := h.RangeCount(lo, hi)
	fmt.Printf("RangeCount(%d, %d) = %d (took %v)\n", lo, hi, count, time.Since(start))

	inserts, lookups, migrations := h.Stats()
	fmt.Printf("workload_stats: inserts=%d lookups=%d migrations=%d\n", inserts, lookups, migrations)
	fmt.Printf("%s / %s\n", h.Name(), h.Variant())

	diag := h.Diagnostics()
	if len(diag) > 0 {
		sample := diag[len(diag)/2]
		fmt.Printf("diagnostics: %d sampled points, midpoint key=%d real_pos=%d predicted_pos=%d error=%d\n",
			len(diag), sample.Key, sample.RealPos, sample.PredictedPos, sample.Error)
	}
}
