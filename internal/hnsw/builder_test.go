package hnsw

import (
	"math/rand"
	"testing"

	"github.com/monishSR/vecdb/internal/metric"
)

func randomVectors(n, dim int, seed int64) sliceVectorSource {
	rng := rand.New(rand.NewSource(seed))
	vectors := make(sliceVectorSource, n)
	for i := range vectors {
		v := make([]float32, dim)
		var sumSq float32
		for d := range v {
			v[d] = rng.Float32()*2 - 1
			sumSq += v[d] * v[d]
		}
		norm := float32(1)
		if sumSq > 0 {
			norm = sumSq
		}
		for d := range v {
			v[d] /= norm
		}
		vectors[i] = v
	}
	return vectors
}

func buildTestGraph(t *testing.T, n, dim, m, efConstruct int, serialPrefix int) (*Builder, *Graph) {
	t.Helper()
	vectors := randomVectors(n, dim, 42)
	dist, ok := metric.Resolve(metric.Cosine)
	if !ok {
		t.Fatalf("expected Cosine metric to resolve")
	}
	levels := AssignLevels(n, m, rand.New(rand.NewSource(7)))
	b := NewBuilder(n, m, efConstruct, 1, dist, vectors, levels)
	b.SerialPrefixOverride = serialPrefix
	if err := b.InsertAll(); err != nil {
		t.Fatalf("InsertAll error: %v", err)
	}
	return b, b.Finish()
}

func TestBuilderRespectsNeighborCardinality(t *testing.T) {
	m := 8
	_, g := buildTestGraph(t, 200, 16, m, 32, 50)

	for p := 0; p < g.PointCount; p++ {
		for lvl := 0; lvl <= g.MaxLevelOf(InternalId(p)); lvl++ {
			cap := m
			if lvl == 0 {
				cap = 2 * m
			}
			if n := len(g.Neighbors(InternalId(p), lvl)); n > cap {
				t.Fatalf("point %d level %d has %d neighbors, exceeds cap %d", p, lvl, n, cap)
			}
		}
	}
}

func TestBuilderEntryPointLevelMatchesGraphMax(t *testing.T) {
	b, g := buildTestGraph(t, 300, 8, 6, 24, 50)

	entry, ok := b.EntryPoint()
	if !ok {
		t.Fatalf("expected an entry point after build")
	}
	if entry.Level != g.GraphMaxLevel() {
		t.Fatalf("expected entry level %d to equal graph max level %d", entry.Level, g.GraphMaxLevel())
	}
}

func TestBuilderNoSelfLoops(t *testing.T) {
	_, g := buildTestGraph(t, 150, 8, 6, 24, 40)

	for p := 0; p < g.PointCount; p++ {
		for lvl := 0; lvl <= g.MaxLevelOf(InternalId(p)); lvl++ {
			for _, n := range g.Neighbors(InternalId(p), lvl) {
				if n == InternalId(p) {
					t.Fatalf("point %d links to itself at level %d", p, lvl)
				}
			}
		}
	}
}

func TestBuilderGraphIsConnectedAtLevelZero(t *testing.T) {
	_, g := buildTestGraph(t, 120, 8, 6, 24, 30)

	visited := make([]bool, g.PointCount)
	queue := []InternalId{0}
	visited[0] = true
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, n := range g.Neighbors(p, 0) {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	for p, v := range visited {
		if !v {
			t.Fatalf("point %d is unreachable from point 0 at level 0", p)
		}
	}
}

func TestBuilderParallelRemainderMatchesSerialCardinality(t *testing.T) {
	m := 6
	vectors := randomVectors(100, 8, 99)
	dist, _ := metric.Resolve(metric.Cosine)
	levels := AssignLevels(100, m, rand.New(rand.NewSource(3)))

	b := NewBuilder(100, m, 24, 4, dist, vectors, levels)
	b.SerialPrefixOverride = 10
	if err := b.InsertAll(); err != nil {
		t.Fatalf("InsertAll error: %v", err)
	}
	g := b.Finish()
	for p := 0; p < g.PointCount; p++ {
		for lvl := 0; lvl <= g.MaxLevelOf(InternalId(p)); lvl++ {
			cap := m
			if lvl == 0 {
				cap = 2 * m
			}
			if n := len(g.Neighbors(InternalId(p), lvl)); n > cap {
				t.Fatalf("point %d level %d has %d neighbors, exceeds cap %d", p, lvl, n, cap)
			}
		}
	}
}
