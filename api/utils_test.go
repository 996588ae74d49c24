package api

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNextCreationTimeStrictlyIncreasing(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastCreation, 0)
	})
	atomic.StoreInt64(&lastCreation, 0)

	prev := nextCreationTime()
	for i := 0; i < 100; i++ {
		next := nextCreationTime()
		if !next.After(prev) {
			t.Fatalf("expected strictly increasing timestamps, got %v then %v", prev, next)
		}
		prev = next
	}
}

func TestNextCreationTimeAdvancesPastLast(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastCreation, 0)
	})

	base := time.Now().Add(time.Second).UnixNano()
	atomic.StoreInt64(&lastCreation, base)

	got := nextCreationTime()
	if got.UnixNano() != base+1 {
		t.Fatalf("expected timestamp %d, got %d", base+1, got.UnixNano())
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", got.Location())
	}
}
