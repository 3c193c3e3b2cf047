package stable

import (
	"testing"

	"hybridx/pkg/common"
)

func buildEntries(n int) []common.Entry {
	es := make([]common.Entry, n)
	for i := 0; i < n; i++ {
		es[i] = common.Entry{Key: uint64(i * 2), Value: uint64(i*2) + 1}
	}
	return es
}

func TestLearnedBuildBulkAndLookup(t *testing.T) {
	l := New()
	if err := l.BuildBulk(buildEntries(500)); err != nil {
		t.Fatalf("BuildBulk: %v", err)
	}
	if l.Size() != 500 {
		t.Fatalf("Size: got %d, want 500", l.Size())
	}
	for i := 0; i < 500; i += 37 {
		k := uint64(i * 2)
		v, ok := l.Lookup(k)
		if !ok || v != k+1 {
			t.Fatalf("Lookup(%d) = (%d, %v), want (%d, true)", k, v, ok, k+1)
		}
	}
	if _, ok := l.Lookup(1); ok {
		t.Fatalf("Lookup(1) expected miss on odd key")
	}
}

func TestLearnedInsertThenLookup(t *testing.T) {
	l := New()
	if err := l.BuildBulk(buildEntries(100)); err != nil {
		t.Fatalf("BuildBulk: %v", err)
	}
	if err := l.Insert(common.Entry{Key: 5, Value: 555}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	v, ok := l.Lookup(5)
	if !ok || v != 555 {
		t.Fatalf("Lookup(5) = (%d, %v), want (555, true)", v, ok)
	}
	if l.Size() != 101 {
		t.Fatalf("Size after insert: got %d, want 101", l.Size())
	}
}

func TestLearnedInsertOverwrite(t *testing.T) {
	l := New()
	if err := l.BuildBulk(buildEntries(10)); err != nil {
		t.Fatalf("BuildBulk: %v", err)
	}
	if err := l.Insert(common.Entry{Key: 4, Value: 9999}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	v, ok := l.Lookup(4)
	if !ok || v != 9999 {
		t.Fatalf("Lookup(4) = (%d, %v), want (9999, true)", v, ok)
	}
	if l.Size() != 10 {
		t.Fatalf("Size after overwrite insert: got %d, want 10", l.Size())
	}
}

func TestLearnedRangeCount(t *testing.T) {
	l := New()
	if err := l.BuildBulk(buildEntries(200)); err != nil {
		t.Fatalf("BuildBulk: %v", err)
	}
	got := l.RangeCount(10, 50)
	want := 0
	for i := 0; i < 200; i++ {
		k := uint64(i * 2)
		if k >= 10 && k <= 50 {
			want++
		}
	}
	if got != want {
		t.Fatalf("RangeCount(10,50): got %d, want %d", got, want)
	}
}

func TestLearnedRemoveIsNoOp(t *testing.T) {
	l := New()
	if err := l.BuildBulk(buildEntries(5)); err != nil {
		t.Fatalf("BuildBulk: %v", err)
	}
	if l.Remove(0) {
		t.Fatal("Remove should be a documented no-op returning false")
	}
	if _, ok := l.Lookup(0); !ok {
		t.Fatal("Remove must not actually delete from the stable sub-index")
	}
}
