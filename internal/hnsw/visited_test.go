package hnsw

import "testing"

func TestVisitedSetMarkAndCheck(t *testing.T) {
	v := &VisitedSet{}
	v.reset(10)

	if v.Check(3) {
		t.Fatalf("expected point 3 unvisited before Mark")
	}
	v.Mark(3)
	if !v.Check(3) {
		t.Fatalf("expected point 3 visited after Mark")
	}
	if v.Check(4) {
		t.Fatalf("expected point 4 to remain unvisited")
	}
}

func TestVisitedSetResetStartsFreshPass(t *testing.T) {
	v := &VisitedSet{}
	v.reset(5)
	v.Mark(2)

	v.reset(5)
	if v.Check(2) {
		t.Fatalf("expected reset to clear marks from the previous pass")
	}
}

func TestVisitedSetGrowsOnDemand(t *testing.T) {
	v := &VisitedSet{}
	v.reset(2)
	v.Mark(10)
	if !v.Check(10) {
		t.Fatalf("expected VisitedSet to grow to accommodate a point beyond its initial size")
	}
}

func TestVisitedPoolAcquireReleaseRoundTrip(t *testing.T) {
	pool := NewVisitedPool()

	v1 := pool.Acquire(100)
	v1.Mark(7)
	pool.Release(v1)

	v2 := pool.Acquire(100)
	if v2.Check(7) {
		t.Fatalf("expected reused VisitedSet to start each acquisition with a clean pass")
	}
}

func TestVisitedPoolDropsHandlesBeyondCapacity(t *testing.T) {
	pool := NewVisitedPool()
	capacity := cap(pool.slots)

	acquired := make([]*VisitedSet, 0, capacity+1)
	for i := 0; i <= capacity; i++ {
		acquired = append(acquired, pool.Acquire(4))
	}
	for _, v := range acquired {
		pool.Release(v)
	}
	// No assertion beyond "this does not block or panic": releases
	// beyond the channel's capacity must be dropped silently.
}
