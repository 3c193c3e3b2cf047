package tracker

import (
	"testing"
	"time"
)

func TestNoteConsecutiveClassification(t *testing.T) {
	tr := New(100, 50*time.Millisecond, time.Second, 250*time.Millisecond, 2, 5)

	if hot := tr.Note(7, 0); hot {
		t.Fatal("first access should not be hot")
	}
	if hot := tr.Note(7, 0); !hot {
		t.Fatal("second consecutive access within window should classify hot")
	}
}

func TestNoteAbsoluteThresholdAfterCooldown(t *testing.T) {
	tr := New(100, time.Nanosecond, 0, 250*time.Millisecond, 100, 3)

	// consecutiveWindow is tiny so consecutive resets every call; only
	// the absolute-count + cooldown path can classify hot here.
	tr.Note(42, 0)
	tr.Note(42, 0)
	if hot := tr.Note(42, 0); !hot {
		t.Fatal("expected hot after reaching absolute threshold with zero cooldown")
	}
}

func TestBoundedCapacityEvictsColdest(t *testing.T) {
	tr := New(2, 50*time.Millisecond, time.Second, time.Hour, 100, 100)

	tr.Note(1, 0)
	tr.Note(1, 0) // key 1 now has AccessCount=2
	tr.Note(2, 0) // key 2 has AccessCount=1, colder
	if tr.Len() != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", tr.Len())
	}

	tr.Note(3, 0) // forces eviction of the coldest (key 2)
	if tr.Len() != 2 {
		t.Fatalf("expected tracker to stay bounded at capacity, got %d", tr.Len())
	}
	if _, ok := tr.stats[2]; ok {
		t.Fatal("expected coldest key 2 to be evicted")
	}
	if _, ok := tr.stats[1]; !ok {
		t.Fatal("expected warmer key 1 to survive eviction")
	}
}

func TestAgeRemovesStaleEntries(t *testing.T) {
	tr := New(100, 50*time.Millisecond, time.Second, 10*time.Millisecond, 2, 5)
	tr.Note(1, 0)
	time.Sleep(20 * time.Millisecond)
	tr.Age()
	if tr.Len() != 0 {
		t.Fatalf("expected aged-out entry to be removed, got len=%d", tr.Len())
	}
}

func TestMarkAndRollbackPromotion(t *testing.T) {
	tr := New(100, 50*time.Millisecond, time.Second, time.Hour, 2, 5)
	tr.MarkPromoted(9)
	if !tr.IsHot(9) {
		t.Fatal("expected key to be hot after MarkPromoted")
	}
	tr.RollbackPromotion(9)
	if tr.IsHot(9) {
		t.Fatal("expected key to no longer be hot after RollbackPromotion")
	}
}
