package hnsw

import (
	"fmt"
	"testing"

	"github.com/monishSR/vecdb/internal/metric"
)

// sliceVectorSource is a fixed in-memory VectorSource for tests.
type sliceVectorSource [][]float32

func (s sliceVectorSource) Get(id InternalId) ([]float32, error) {
	if int(id) >= len(s) {
		return nil, fmt.Errorf("hnsw test: unknown id %d", id)
	}
	return s[id], nil
}

// line1D builds n points on a 1-dimensional number line, each linked
// to its immediate left/right neighbor at level 0 — a minimal graph
// shaped so that greedy descent and beam search both have an obvious
// correct answer to check against.
func line1D(n int) (*Graph, sliceVectorSource) {
	g := NewGraph(n)
	vectors := make(sliceVectorSource, n)
	for i := 0; i < n; i++ {
		vectors[i] = []float32{float32(i)}
		var ns []InternalId
		if i > 0 {
			ns = append(ns, InternalId(i-1))
		}
		if i < n-1 {
			ns = append(ns, InternalId(i+1))
		}
		g.SetNeighbors(InternalId(i), 0, ns)
	}
	return g, vectors
}

func negDist(a, b []float32) float32 {
	d := a[0] - b[0]
	if d < 0 {
		d = -d
	}
	return -d
}

func TestGreedyDescendFindsLocalBestAtLevel0(t *testing.T) {
	g, vectors := line1D(10)
	query := []float32{7}

	got, err := greedyDescend(g, vectors, negDist, query, 0, 0, 0)
	if err != nil {
		t.Fatalf("greedyDescend error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected greedy descent to land on point 7, got %d", got)
	}
}

func TestSearchLayerFindsExactNeighborOnLine(t *testing.T) {
	g, vectors := line1D(20)
	pool := NewVisitedPool()
	visited := pool.Acquire(20)

	w, err := searchLayer(g, vectors, negDist, []float32{12}, []InternalId{0}, 0, 5, visited)
	if err != nil {
		t.Fatalf("searchLayer error: %v", err)
	}
	best, ok := w.PopBest()
	if !ok || best.Id != 12 {
		t.Fatalf("expected best match at point 12, got %+v", best)
	}
}

func TestSearchReturnsTopKSortedByScore(t *testing.T) {
	g, vectors := line1D(50)
	entry := EntryPoint{Id: 0, Level: 0}
	pool := NewVisitedPool()

	results, err := Search(g, vectors, negDist, pool, entry, []float32{30}, 3, 20)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Id != 30 {
		t.Fatalf("expected closest point 30 first, got %+v", results[0])
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("expected best-first order, got %v", results)
		}
	}
}

func TestSearchOnEmptyGraphReturnsNoResults(t *testing.T) {
	g := NewGraph(0)
	pool := NewVisitedPool()
	results, err := Search(g, sliceVectorSource{}, negDist, pool, EntryPoint{}, []float32{0}, 5, 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results on an empty graph, got %v", results)
	}
}

func TestSearchUsesCosineMetricEndToEnd(t *testing.T) {
	g := NewGraph(3)
	g.SetNeighbors(0, 0, []InternalId{1, 2})
	g.SetNeighbors(1, 0, []InternalId{0, 2})
	g.SetNeighbors(2, 0, []InternalId{0, 1})

	vectors := sliceVectorSource{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}
	m, ok := metric.Resolve(metric.Cosine)
	if !ok {
		t.Fatalf("expected Cosine metric to resolve")
	}
	pool := NewVisitedPool()
	results, err := Search(g, vectors, m.Similarity, pool, EntryPoint{Id: 0, Level: 0}, []float32{1, 0, 0}, 1, 10)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(results) != 1 || results[0].Id != 0 {
		t.Fatalf("expected point 0 to win under cosine similarity, got %v", results)
	}
}
