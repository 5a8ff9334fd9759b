package hnsw

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"

	"github.com/monishSR/vecdb/internal/metric"
)

// DefaultSerialPrefix is SINGLE_THREADED_HNSW_BUILD_THRESHOLD's release
// value: the first this-many points (in id order) are always inserted
// serially to avoid disconnected components, per §4.4. Tests may
// shrink it via Builder.SerialPrefixOverride instead of relying on a
// debug/release build split, which Go has no equivalent of.
const DefaultSerialPrefix = 256

type nodeState struct {
	mu        sync.RWMutex
	level     int
	neighbors [][]InternalId
}

func (n *nodeState) neighborsAt(level int) []InternalId {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if level > n.level {
		return nil
	}
	return n.neighbors[level]
}

func (n *nodeState) setNeighborsAt(level int, ns []InternalId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.neighbors[level] = ns
}

// readyBitmap tracks which points have finished insertion; a point is
// only a traversable neighbor once its own bit is set, and that bit is
// set strictly after all of its neighbor lists are written (§5).
type readyBitmap struct {
	mu   sync.RWMutex
	bits []bool
}

func newReadyBitmap(n int) *readyBitmap { return &readyBitmap{bits: make([]bool, n)} }

func (r *readyBitmap) Set(p InternalId) {
	r.mu.Lock()
	r.bits[p] = true
	r.mu.Unlock()
}

func (r *readyBitmap) Get(p InternalId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bits[p]
}

// Builder is the concurrent HNSW graph builder: owns the per-point
// adjacency lists exclusively until Finish converts them into an
// immutable Graph.
type Builder struct {
	metric             metric.Metric
	m, m0, efConstruct int
	maxIndexingThreads int

	vectors VectorSource
	nodes   []*nodeState
	levels  []uint8

	ready *readyBitmap
	entry *EntryPointPolicy
	pool  *VisitedPool

	// SerialPrefixOverride, if > 0, replaces DefaultSerialPrefix (for
	// tests that want a small graph to exercise the parallel path).
	SerialPrefixOverride int
}

// AssignLevels draws a max level for each of n points via the
// geometric-style decay in §4.4: level = round(-ln(u) * levelFactor),
// levelFactor = 1/ln(max(m,2)).
func AssignLevels(n, m int, rng *rand.Rand) []uint8 {
	base := float64(m)
	if base < 2 {
		base = 2
	}
	levelFactor := 1 / math.Log(base)

	levels := make([]uint8, n)
	for i := range levels {
		u := rng.Float64()
		if u <= 0 {
			u = 1e-12
		}
		lvl := int(math.Round(-math.Log(u) * levelFactor))
		if lvl > 255 {
			lvl = 255
		}
		levels[i] = uint8(lvl)
	}
	return levels
}

// NewBuilder constructs a builder for numVectors points, each already
// assigned a max level via AssignLevels (or supplied directly).
func NewBuilder(numVectors, m, efConstruct, maxIndexingThreads int, dist metric.Metric, vectors VectorSource, levels []uint8) *Builder {
	nodes := make([]*nodeState, numVectors)
	for i := range nodes {
		lvl := int(levels[i])
		nodes[i] = &nodeState{level: lvl, neighbors: make([][]InternalId, lvl+1)}
	}

	extrasCap := m
	if extrasCap < 1 {
		extrasCap = 1
	}

	return &Builder{
		metric:             dist,
		m:                  m,
		m0:                 2 * m,
		efConstruct:        efConstruct,
		maxIndexingThreads: maxIndexingThreads,
		vectors:            vectors,
		nodes:              nodes,
		levels:             levels,
		ready:              newReadyBitmap(numVectors),
		entry:              NewEntryPointPolicy(extrasCap),
		pool:               NewVisitedPool(),
	}
}

// ReadyNeighbors implements layerGraph, filtering out neighbors whose
// ready bit is not yet set (§4.4's traversal filter).
func (b *Builder) ReadyNeighbors(p InternalId, level int) []InternalId {
	raw := b.nodes[p].neighborsAt(level)
	out := make([]InternalId, 0, len(raw))
	for _, n := range raw {
		if b.ready.Get(n) {
			out = append(out, n)
		}
	}
	return out
}

// selectNeighborsHeuristic implements the Malkov/Yashunin pruning from
// §4.4.3c: candidates are already sorted best-first and scored against
// the point being linked (whichever that is at the call site); c is
// accepted only if it is not closer to any already-accepted neighbor
// than it is to that point.
func selectNeighborsHeuristic(sim SimilarityFunc, vectors VectorSource, candidates []ScoredPoint, levelM int) []InternalId {
	accepted := make([]ScoredPoint, 0, levelM)
outer:
	for _, c := range candidates {
		if len(accepted) >= levelM {
			break
		}
		cVec, err := vectors.Get(c.Id)
		if err != nil {
			continue
		}
		for _, s := range accepted {
			sVec, err := vectors.Get(s.Id)
			if err != nil {
				continue
			}
			if sim(cVec, sVec) > c.Score {
				continue outer
			}
		}
		accepted = append(accepted, c)
	}
	ids := make([]InternalId, len(accepted))
	for i, a := range accepted {
		ids[i] = a.Id
	}
	return ids
}

// backLink writes p into n's neighbor list at level, pruning n's list
// back down to levelM via the same heuristic, rescored against n, if
// it would otherwise overflow.
func (b *Builder) backLink(n, p InternalId, level, levelM int) {
	node := b.nodes[n]
	node.mu.Lock()
	defer node.mu.Unlock()

	if level > node.level {
		return
	}
	cur := node.neighbors[level]
	for _, x := range cur {
		if x == p {
			return
		}
	}
	merged := append(append([]InternalId{}, cur...), p)
	if len(merged) <= levelM {
		node.neighbors[level] = merged
		return
	}

	nVec, err := b.vectors.Get(n)
	if err != nil {
		node.neighbors[level] = merged[:levelM]
		return
	}
	scored := make([]ScoredPoint, 0, len(merged))
	for _, c := range merged {
		cVec, err := b.vectors.Get(c)
		if err != nil {
			continue
		}
		scored = append(scored, ScoredPoint{Id: c, Score: b.metric.Similarity(nVec, cVec)})
	}
	sort.Slice(scored, func(i, j int) bool { return better(scored[i], scored[j]) })
	node.neighbors[level] = selectNeighborsHeuristic(b.metric.Similarity, b.vectors, scored, levelM)
}

// Insert runs the full insertion protocol from §4.4 for point p.
func (b *Builder) Insert(p InternalId) error {
	level := int(b.levels[p])
	query, err := b.vectors.Get(p)
	if err != nil {
		return err
	}

	entry, hasEntry := b.entry.Peek()
	if !hasEntry {
		b.ready.Set(p)
		b.entry.NewPoint(p, level)
		return nil
	}

	current := entry.Id
	if entry.Level > level {
		current, err = greedyDescend(b, b.vectors, b.metric.Similarity, query, entry.Id, entry.Level, level+1)
		if err != nil {
			return err
		}
	}

	visited := b.pool.Acquire(len(b.nodes))
	defer b.pool.Release(visited)

	fromLevel := level
	if entry.Level < fromLevel {
		fromLevel = entry.Level
	}

	for lvl := fromLevel; lvl >= 0; lvl-- {
		levelM := b.m
		if lvl == 0 {
			levelM = b.m0
		}

		w, err := searchLayer(b, b.vectors, b.metric.Similarity, query, []InternalId{current}, lvl, b.efConstruct, visited)
		if err != nil {
			return err
		}

		for _, n := range b.nodes[p].neighborsAt(lvl) {
			if visited.Check(n) || !b.ready.Get(n) {
				continue
			}
			visited.Mark(n)
			nVec, err := b.vectors.Get(n)
			if err != nil {
				continue
			}
			w.PushScored(ScoredPoint{Id: n, Score: b.metric.Similarity(query, nVec)})
		}

		selected := selectNeighborsHeuristic(b.metric.Similarity, b.vectors, w.SortedSlice(), levelM)
		b.nodes[p].setNeighborsAt(lvl, selected)
		for _, nb := range selected {
			b.backLink(nb, p, lvl, levelM)
		}

		if best, ok := w.PopBest(); ok {
			current = best.Id
		}
	}

	b.ready.Set(p)
	b.entry.NewPoint(p, level)
	return nil
}

// serialPrefix returns SerialPrefixOverride if set, else DefaultSerialPrefix.
func (b *Builder) serialPrefix() int {
	if b.SerialPrefixOverride > 0 {
		return b.SerialPrefixOverride
	}
	return DefaultSerialPrefix
}

// InsertAll inserts every point in id order, serially for the first
// serialPrefix() points and then, if MaxIndexingThreads > 1, across a
// worker pool bounded by min(maxIndexingThreads, num_cpus, 16).
func (b *Builder) InsertAll() error {
	n := len(b.nodes)
	prefix := b.serialPrefix()
	if prefix > n {
		prefix = n
	}
	for i := 0; i < prefix; i++ {
		if err := b.Insert(InternalId(i)); err != nil {
			return err
		}
	}
	if prefix >= n {
		return nil
	}

	if b.maxIndexingThreads <= 1 {
		for i := prefix; i < n; i++ {
			if err := b.Insert(InternalId(i)); err != nil {
				return err
			}
		}
		return nil
	}

	threads := b.maxIndexingThreads
	if cpu := runtime.GOMAXPROCS(0); threads > cpu {
		threads = cpu
	}
	if threads > MaxVisitedPoolSize {
		threads = MaxVisitedPoolSize
	}

	sem := make(chan struct{}, threads)
	errs := make(chan error, n-prefix)
	var wg sync.WaitGroup
	for i := prefix; i < n; i++ {
		i := i
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := b.Insert(InternalId(i)); err != nil {
				select {
				case errs <- err:
				default:
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	if err, ok := <-errs; ok {
		return err
	}
	return nil
}

// EntryPoint returns the builder's current best entry point.
func (b *Builder) EntryPoint() (EntryPoint, bool) {
	return b.entry.GetEntryPoint()
}

// Finish converts the builder's mutable per-node state into an
// immutable Graph, consuming the builder per the design's ownership
// note (the builder should not be reused after this call).
func (b *Builder) Finish() *Graph {
	g := NewGraph(len(b.nodes))
	for p, n := range b.nodes {
		n.mu.RLock()
		g.SetMaxLevel(InternalId(p), n.level)
		for lvl := 0; lvl <= n.level; lvl++ {
			g.SetNeighbors(InternalId(p), lvl, append([]InternalId(nil), n.neighbors[lvl]...))
		}
		n.mu.RUnlock()
	}
	return g
}
