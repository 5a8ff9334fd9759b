package hnsw

import (
	"container/heap"
	"sort"
)

// BoundedQueue is the fixed-length priority queue from the design: a
// capacity-bounded container of ScoredPoint ordered by score. It keeps
// the worst-scoring element at the root (a min-heap on Score) so that
// Push can evict the worst in O(log n) when at capacity, grounded on
// the teacher's candidateHeap in internal/index/hnsw/heap.go but
// generalized from "smallest distance wins" to "highest score wins"
// since every metric here is expressed as a similarity.
type BoundedQueue struct {
	items    []ScoredPoint
	capacity int
}

// NewBoundedQueue returns an empty queue that holds at most capacity
// points.
func NewBoundedQueue(capacity int) *BoundedQueue {
	q := &BoundedQueue{capacity: capacity}
	heap.Init(q)
	return q
}

// heap.Interface, operating on the worst-at-root ordering.
func (q *BoundedQueue) Len() int { return len(q.items) }
func (q *BoundedQueue) Less(i, j int) bool {
	return q.items[i].Score < q.items[j].Score
}
func (q *BoundedQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *BoundedQueue) Push(x any)    { q.items = append(q.items, x.(ScoredPoint)) }
func (q *BoundedQueue) Pop() any {
	old := q.items
	n := len(old)
	x := old[n-1]
	q.items = old[:n-1]
	return x
}

// PushScored adds sp if the queue has room, or if sp outscores the
// current worst element (which it then evicts). Length never exceeds
// capacity after this call.
func (q *BoundedQueue) PushScored(sp ScoredPoint) {
	if q.capacity <= 0 {
		return
	}
	if len(q.items) < q.capacity {
		heap.Push(q, sp)
		return
	}
	if len(q.items) > 0 && sp.Score > q.items[0].Score {
		q.items[0] = sp
		heap.Fix(q, 0)
	}
}

// WorstScore returns the score of the current worst (lowest-scoring)
// element, or ok=false if empty.
func (q *BoundedQueue) WorstScore() (float32, bool) {
	if len(q.items) == 0 {
		return 0, false
	}
	return q.items[0].Score, true
}

// Full reports whether the queue holds capacity elements.
func (q *BoundedQueue) Full() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

// PopBest removes and returns the single best (highest-scoring, ties
// broken by ascending id) element.
func (q *BoundedQueue) PopBest() (ScoredPoint, bool) {
	if len(q.items) == 0 {
		return ScoredPoint{}, false
	}
	bestIdx := 0
	for i := 1; i < len(q.items); i++ {
		if better(q.items[i], q.items[bestIdx]) {
			bestIdx = i
		}
	}
	best := q.items[bestIdx]
	heap.Remove(q, bestIdx)
	return best, true
}

// SortedSlice returns every element, best-first.
func (q *BoundedQueue) SortedSlice() []ScoredPoint {
	out := make([]ScoredPoint, len(q.items))
	copy(out, q.items)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}
