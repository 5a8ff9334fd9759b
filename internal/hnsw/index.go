package hnsw

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/monishSR/vecdb/internal/metric"
	"github.com/pkg/errors"
)

const (
	configFileName = "hnsw_config.json"
	graphFileName  = "graph.bin"
	linksFileName  = "links.bin"
)

// Index is the HNSW facade: a built (or loaded) graph plus its
// similarity function and entry point, ready to answer queries. Beyond
// the bulk Builder path, it also supports appending single points to
// an already-built graph live (§4.4's insertion protocol run directly
// against the graph rather than a Builder's staging state), so normal
// inserts need not pay for a full rebuild the way REINDEX does.
type Index struct {
	mu sync.RWMutex

	dir         string
	cfg         HnswGraphConfig
	metric      metric.Metric
	graph       *Graph
	entry       EntryPoint
	entryPolicy *EntryPointPolicy
	pool        *VisitedPool
	rng         *rand.Rand
}

// Open implements §4.9: if a graph already exists on disk it is
// loaded, otherwise a fresh one is built from vectors and persisted.
// numVectors is the total point count (dense internal ids [0, numVectors)).
func Open(dir string, cfg HnswConfig, dist metric.Distance, numVectors int, vectors VectorSource, seed int64) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "hnsw: create collection directory")
	}

	graphPath := filepath.Join(dir, graphFileName)
	if _, err := os.Stat(graphPath); err == nil {
		return load(dir, numVectors)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "hnsw: stat graph file")
	}

	return build(dir, cfg, dist, numVectors, vectors, seed)
}

func build(dir string, cfg HnswConfig, dist metric.Distance, numVectors int, vectors VectorSource, seed int64) (*Index, error) {
	graphCfg, err := NewGraphConfig(cfg, dist, numVectors)
	if err != nil {
		return nil, err
	}
	m, ok := metric.Resolve(dist)
	if !ok {
		return nil, errors.Errorf("hnsw: unknown distance %q", dist)
	}

	rng := rand.New(rand.NewSource(seed))

	var graph *Graph
	var entry EntryPoint
	var entryPolicy *EntryPointPolicy
	if numVectors > 0 {
		levels := AssignLevels(numVectors, graphCfg.M, rng)
		b := NewBuilder(numVectors, graphCfg.M, graphCfg.EfConstruct, graphCfg.MaxIndexingThreads, m, vectors, levels)
		if err := b.InsertAll(); err != nil {
			return nil, errors.Wrap(err, "hnsw: build graph")
		}
		entry, _ = b.EntryPoint()
		graph = b.Finish()
		entryPolicy = b.entry
	} else {
		graph = NewGraph(0)
		entryPolicy = NewEntryPointPolicy(extrasCapacity(graphCfg.M))
	}

	idx := &Index{dir: dir, cfg: graphCfg, metric: m, graph: graph, entry: entry, entryPolicy: entryPolicy, pool: NewVisitedPool(), rng: rng}
	if err := idx.Save(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Rebuild always constructs a fresh graph from vectors and persists it,
// overwriting whatever graph.bin/links.bin/hnsw_config.json already
// exist at dir — the effect REINDEX needs, as opposed to Open's
// load-if-present behavior.
func Rebuild(dir string, cfg HnswConfig, dist metric.Distance, numVectors int, vectors VectorSource, seed int64) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "hnsw: create collection directory")
	}
	return build(dir, cfg, dist, numVectors, vectors, seed)
}

func extrasCapacity(m int) int {
	if m < 1 {
		return 1
	}
	return m
}

func load(dir string, numVectors int) (*Index, error) {
	cfg, err := LoadGraphConfig(filepath.Join(dir, configFileName))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg, err = NewGraphConfig(HnswConfig{M: 16, EfConstruct: 100, MaxIndexingThreads: 1}, metric.Cosine, numVectors)
		if err != nil {
			return nil, err
		}
	}

	m, ok := metric.Resolve(cfg.Distance)
	if !ok {
		return nil, errors.Errorf("hnsw: unknown distance %q", cfg.Distance)
	}

	linksData, err := os.ReadFile(filepath.Join(dir, linksFileName))
	if err != nil {
		return nil, errors.Wrap(err, "hnsw: read links.bin")
	}
	graph, err := Deserialize(linksData)
	if err != nil {
		return nil, errors.Wrap(err, "hnsw: parse links.bin")
	}

	entry, err := readGraphScalarState(filepath.Join(dir, graphFileName))
	if err != nil {
		return nil, err
	}

	entryPolicy := NewEntryPointPolicy(extrasCapacity(cfg.M))
	if graph.PointCount > 0 {
		seeded := entry
		entryPolicy.best = &seeded
	}

	return &Index{
		dir: dir, cfg: cfg, metric: m, graph: graph,
		entry: entry, entryPolicy: entryPolicy,
		pool: NewVisitedPool(), rng: rand.New(rand.NewSource(1)),
	}, nil
}

// graph.bin holds the scalar state that links.bin's CSR format does
// not carry on its own: the registered query entry point. 16 bytes,
// little-endian: point_count (u64), entry_id (u32), entry_level (u32).
func writeGraphScalarState(path string, pointCount int, entry EntryPoint) error {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(pointCount))
	binary.LittleEndian.PutUint32(buf[8:12], entry.Id)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(entry.Level))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return errors.Wrap(err, "hnsw: write graph.bin")
	}
	return nil
}

func readGraphScalarState(path string) (EntryPoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EntryPoint{}, errors.Wrap(err, "hnsw: read graph.bin")
	}
	if len(data) < 16 {
		return EntryPoint{}, errors.New("hnsw: graph.bin truncated")
	}
	return EntryPoint{
		Id:    binary.LittleEndian.Uint32(data[8:12]),
		Level: int(binary.LittleEndian.Uint32(data[12:16])),
	}, nil
}

// Save persists the current graph, config and entry point to dir.
// Callers mutating the live graph (InsertPoint) must call this
// themselves to make the change crash-durable; a collection reconciles
// any gap against the record store on reopen (see internal/collection).
func (idx *Index) Save() error {
	if err := SaveGraphConfig(filepath.Join(idx.dir, configFileName), idx.cfg); err != nil {
		return err
	}
	if err := writeGraphScalarState(filepath.Join(idx.dir, graphFileName), idx.graph.PointCount, idx.entry); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(idx.dir, linksFileName), Serialize(idx.graph), 0o644); err != nil {
		return errors.Wrap(err, "hnsw: write links.bin")
	}
	return nil
}

// Search answers top-k queries against the loaded graph, using the
// persisted ef_construct as the default ef, per §4.9.
func (idx *Index) Search(vectors VectorSource, query []float32, top int) ([]ScoredPoint, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.graph.PointCount == 0 {
		return nil, nil
	}
	return Search(idx.graph, vectors, idx.metric.Similarity, idx.pool, idx.entry, query, top, idx.cfg.Ef)
}

// InsertPoint appends query as a new point to the live graph, running
// the same insertion protocol §4.4 describes for a Builder but directly
// against the already-built Graph: useful for a single INSERT, where
// rebuilding the whole graph (what REINDEX does) would be wasteful.
// Mutations are serialized; this is a single-writer structure, the same
// model the record store and WAL use.
func (idx *Index) InsertPoint(vectors VectorSource, query []float32) (InternalId, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	level := int(AssignLevels(1, idx.cfg.M, idx.rng)[0])
	p := idx.graph.AddPoint(level)
	idx.cfg.IndexedVectorCount = idx.graph.PointCount

	entry, hasEntry := idx.entryPolicy.Peek()
	if !hasEntry {
		idx.entryPolicy.NewPoint(p, level)
		idx.entry, _ = idx.entryPolicy.Peek()
		return p, nil
	}

	current := entry.Id
	if entry.Level > level {
		var err error
		current, err = greedyDescend(idx.graph, vectors, idx.metric.Similarity, query, entry.Id, entry.Level, level+1)
		if err != nil {
			return 0, err
		}
	}

	visited := idx.pool.Acquire(idx.graph.PointCount)
	defer idx.pool.Release(visited)

	fromLevel := level
	if entry.Level < fromLevel {
		fromLevel = entry.Level
	}

	for lvl := fromLevel; lvl >= 0; lvl-- {
		levelM := idx.cfg.M
		if lvl == 0 {
			levelM = idx.cfg.M0
		}

		w, err := searchLayer(idx.graph, vectors, idx.metric.Similarity, query, []InternalId{current}, lvl, idx.cfg.EfConstruct, visited)
		if err != nil {
			return 0, err
		}

		selected := selectNeighborsHeuristic(idx.metric.Similarity, vectors, w.SortedSlice(), levelM)
		idx.graph.SetNeighbors(p, lvl, selected)
		for _, nb := range selected {
			idx.backLinkLive(nb, p, lvl, levelM, vectors)
		}

		if best, ok := w.PopBest(); ok {
			current = best.Id
		}
	}

	idx.entryPolicy.NewPoint(p, level)
	idx.entry, _ = idx.entryPolicy.Peek()
	return p, nil
}

// backLinkLive is InsertPoint's counterpart to Builder.backLink,
// operating directly on the live Graph under idx.mu rather than a
// per-node lock (InsertPoint already holds the index exclusively).
func (idx *Index) backLinkLive(n, p InternalId, level, levelM int, vectors VectorSource) {
	if level > idx.graph.MaxLevelOf(n) {
		return
	}
	cur := idx.graph.Neighbors(n, level)
	for _, x := range cur {
		if x == p {
			return
		}
	}
	merged := append(append([]InternalId{}, cur...), p)
	if len(merged) <= levelM {
		idx.graph.SetNeighbors(n, level, merged)
		return
	}

	nVec, err := vectors.Get(n)
	if err != nil {
		idx.graph.SetNeighbors(n, level, merged[:levelM])
		return
	}
	scored := make([]ScoredPoint, 0, len(merged))
	for _, c := range merged {
		cVec, err := vectors.Get(c)
		if err != nil {
			continue
		}
		scored = append(scored, ScoredPoint{Id: c, Score: idx.metric.Similarity(nVec, cVec)})
	}
	sort.Slice(scored, func(i, j int) bool { return better(scored[i], scored[j]) })
	idx.graph.SetNeighbors(n, level, selectNeighborsHeuristic(idx.metric.Similarity, vectors, scored, levelM))
}

// EntryPoint returns the index's current query entry point.
func (idx *Index) EntryPoint() EntryPoint {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entry
}

// Graph exposes the underlying immutable graph (for reindex/rebuild callers).
func (idx *Index) Graph() *Graph {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.graph
}

// Config returns the persisted graph configuration.
func (idx *Index) Config() HnswGraphConfig { return idx.cfg }
