package policy

import (
	"testing"
	"time"

	"hybridx/pkg/monitor"
)

func TestSizeTrigger(t *testing.T) {
	c := New(0.10, 1000, 50, time.Hour)
	if c.ShouldMigrate(5, 95, 0) {
		t.Fatal("5/100 = 0.05 should not exceed 0.10 threshold")
	}
	if !c.ShouldMigrate(15, 85, 0) {
		t.Fatal("15/100 = 0.15 should exceed 0.10 threshold")
	}
}

func TestQueueTrigger(t *testing.T) {
	c := New(0.99, 10, 50, time.Hour)
	if !c.ShouldMigrate(0, 100, 10) {
		t.Fatal("queue length reaching batch_size should trigger migration")
	}
}

func TestTimeTrigger(t *testing.T) {
	c := New(0.99, 10000, 5, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if !c.ShouldMigrate(0, 100, 6) {
		t.Fatal("stale queue above min_batch should trigger migration")
	}
	if c.ShouldMigrate(0, 100, 3) {
		t.Fatal("stale queue at or below min_batch should not trigger")
	}
}

func TestAdaptTickIncreasesThresholdOnWriteHeavyWorkload(t *testing.T) {
	c := New(0.10, 1000, 50, time.Hour)
	stats := monitor.NewWorkloadStats()
	for i := 0; i < 9; i++ {
		stats.RecordInsert()
	}
	stats.RecordLookup()

	c.AdaptTick(stats)

	if got := c.Threshold(); got <= 0.10 {
		t.Fatalf("expected threshold to increase on write-heavy workload, got %v", got)
	}
	if stats.TotalInserts() != 0 {
		t.Fatal("expected stats reset after adapt tick")
	}
}

func TestAdaptTickDecreasesThresholdOnReadHeavyWorkload(t *testing.T) {
	c := New(0.10, 1000, 50, time.Hour)
	stats := monitor.NewWorkloadStats()
	stats.RecordInsert()
	for i := 0; i < 9; i++ {
		stats.RecordLookup()
	}

	c.AdaptTick(stats)

	if got := c.Threshold(); got >= 0.10 {
		t.Fatalf("expected threshold to decrease on read-heavy workload, got %v", got)
	}
}
