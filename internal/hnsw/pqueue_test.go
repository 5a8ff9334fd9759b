package hnsw

import "testing"

func TestBoundedQueueEvictsWorstOnOverflow(t *testing.T) {
	q := NewBoundedQueue(3)
	q.PushScored(ScoredPoint{Id: 1, Score: 0.5})
	q.PushScored(ScoredPoint{Id: 2, Score: 0.9})
	q.PushScored(ScoredPoint{Id: 3, Score: 0.1})

	if !q.Full() {
		t.Fatalf("expected queue to be full at capacity")
	}

	q.PushScored(ScoredPoint{Id: 4, Score: 0.8})

	if q.Len() != 3 {
		t.Fatalf("expected length to stay at capacity, got %d", q.Len())
	}
	sorted := q.SortedSlice()
	for _, sp := range sorted {
		if sp.Id == 3 {
			t.Fatalf("expected worst entry (id=3, score=0.1) to be evicted, found %+v in %v", sp, sorted)
		}
	}
}

func TestBoundedQueueSortedSliceIsBestFirst(t *testing.T) {
	q := NewBoundedQueue(5)
	q.PushScored(ScoredPoint{Id: 1, Score: 0.2})
	q.PushScored(ScoredPoint{Id: 2, Score: 0.9})
	q.PushScored(ScoredPoint{Id: 3, Score: 0.5})

	sorted := q.SortedSlice()
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Score > sorted[i-1].Score {
			t.Fatalf("expected best-first order, got %v", sorted)
		}
	}
}

func TestBoundedQueuePopBestBreaksTiesByAscendingId(t *testing.T) {
	q := NewBoundedQueue(5)
	q.PushScored(ScoredPoint{Id: 5, Score: 1.0})
	q.PushScored(ScoredPoint{Id: 2, Score: 1.0})
	q.PushScored(ScoredPoint{Id: 9, Score: 1.0})

	best, ok := q.PopBest()
	if !ok || best.Id != 2 {
		t.Fatalf("expected tie-break to favor lowest id, got %+v", best)
	}
}

func TestBoundedQueueWorstScore(t *testing.T) {
	q := NewBoundedQueue(2)
	if _, ok := q.WorstScore(); ok {
		t.Fatalf("expected no worst score on empty queue")
	}
	q.PushScored(ScoredPoint{Id: 1, Score: 0.3})
	q.PushScored(ScoredPoint{Id: 2, Score: 0.7})
	worst, ok := q.WorstScore()
	if !ok || worst != 0.3 {
		t.Fatalf("expected worst score 0.3, got %v", worst)
	}
}
