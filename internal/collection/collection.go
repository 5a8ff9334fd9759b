// Package collection binds one logical vector set together: a record
// store, a record index, an id tracker, an in-RAM vector store, an
// HNSW index and a WAL, all rooted at one directory. Per the design,
// Collection owns its record store, its index and its WAL handle
// outright; the HNSW index is built lazily (on first query, or forced
// by Reindex) so opening a collection never pays for a graph build it
// might not need.
package collection

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/monishSR/vecdb/internal/hnsw"
	"github.com/monishSR/vecdb/internal/idtracker"
	"github.com/monishSR/vecdb/internal/logging"
	"github.com/monishSR/vecdb/internal/metric"
	"github.com/monishSR/vecdb/internal/recordindex"
	"github.com/monishSR/vecdb/internal/recordindex/btree"
	"github.com/monishSR/vecdb/internal/recordstore"
	"github.com/monishSR/vecdb/internal/vectorstore"
	"github.com/monishSR/vecdb/internal/wal"
)

const (
	storageFileName = "vr_storage"
	indexFileName   = "vr_index"
	walFileName     = "vr_wal"
)

// DefaultHnswConfig is the graph configuration a freshly created
// collection builds with, matching the recall-floor property's m and
// ef_construct.
var DefaultHnswConfig = hnsw.HnswConfig{M: 16, EfConstruct: 100, MaxIndexingThreads: 4}

// DefaultDistance is the metric a collection's graph is built under
// when none is specified at creation time; the command surface only
// names CREATE <name>, with no distance argument, so this is the
// collection-wide default topology metric. SEARCHSIMILAR may still
// request any of the four metrics for a given query's own scoring.
const DefaultDistance = metric.Cosine

// RecordView is a point-id lookup or full-scan row.
type RecordView struct {
	Id      recordindex.RecordId
	Vector  []float32
	Payload string
}

// Match is one ANN hit, with the internal graph id already resolved
// back to its external RecordId.
type Match struct {
	Id    recordindex.RecordId
	Score float32
}

// VectorPayload is one row of a BULKINSERT.
type VectorPayload struct {
	Vector  []float32
	Payload string
}

// Collection is one vector set: record store, index, id tracker,
// vector store, HNSW index and WAL, all under one directory.
type Collection struct {
	mu sync.Mutex

	dir      string
	distance metric.Distance
	hnswCfg  hnsw.HnswConfig
	seed     int64

	records *recordstore.Store
	index   recordindex.Index
	ids     *idtracker.Tracker
	vectors *vectorstore.Store
	wal     *wal.Wal
	log     *slog.Logger

	hnswIdx *hnsw.Index
}

// Create initializes a brand new, empty collection at dir.
func Create(dir string) (*Collection, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "collection: create directory")
	}
	records, err := recordstore.Create(filepath.Join(dir, storageFileName))
	if err != nil {
		return nil, err
	}
	index, err := btree.Create(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, err
	}
	vectors, err := vectorstore.New(records, 0)
	if err != nil {
		return nil, err
	}
	openRes, err := wal.Load(filepath.Join(dir, walFileName))
	if err != nil {
		return nil, err
	}
	return &Collection{
		dir: dir, distance: DefaultDistance, hnswCfg: DefaultHnswConfig, seed: time.Now().UnixNano(),
		records: records, index: index, ids: idtracker.New(), vectors: vectors, wal: openRes.Wal,
		log: logging.Default,
	}, nil
}

// Open reopens an existing collection, replaying its record index and
// record store to reconstruct the in-memory id tracker and vector
// store, and reports the WAL's recovery state (the caller/executor
// drives rollback from it). The persisted HNSW graph itself is only
// loaded lazily, on first use, via ensureIndexBuilt.
func Open(dir string) (*Collection, *wal.OpenResult, error) {
	records, err := recordstore.Load(filepath.Join(dir, storageFileName))
	if err != nil {
		return nil, nil, err
	}
	index, loaded, err := btree.Load(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, nil, err
	}
	if !loaded {
		logging.Default.Warn("record index missing or unreadable, rebuilding from record store", "dir", dir)
		index, err = btree.Rebuild(filepath.Join(dir, indexFileName), records)
		if err != nil {
			return nil, nil, err
		}
	}
	vectors, err := vectorstore.New(records, 0)
	if err != nil {
		return nil, nil, err
	}

	ids := idtracker.New()
	for _, e := range index.Iter() {
		rec, found, err := records.Search(e.Offset)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			continue
		}
		internal := ids.Assign(e.Id)
		vectors.Put(internal, e.Offset, rec.Vector, rec.Payload)
	}

	openRes, err := wal.Load(filepath.Join(dir, walFileName))
	if err != nil {
		return nil, nil, err
	}

	col := &Collection{
		dir: dir, distance: DefaultDistance, hnswCfg: DefaultHnswConfig, seed: time.Now().UnixNano(),
		records: records, index: index, ids: ids, vectors: vectors, wal: openRes.Wal,
		log: logging.Default,
	}
	return col, openRes, nil
}

// Close releases every file handle the collection holds.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(c.wal.Close())
	if closer, ok := c.index.(interface{ Close() error }); ok {
		keep(closer.Close())
	}
	keep(c.records.Close())
	return firstErr
}

// Wal exposes the collection's own WAL handle, for the executor's
// append/commit/rollback choreography around each command.
func (c *Collection) Wal() *wal.Wal { return c.wal }

func (c *Collection) preprocess(v []float32) []float32 {
	m, _ := metric.Resolve(c.distance)
	return m.Preprocess(v)
}

// vectorSource wraps the vector store so the HNSW index always sees
// preprocessed vectors (e.g. L2-normalized for Cosine), matching what
// it was built and is queried with.
func (c *Collection) vectorSource() hnsw.VectorSource {
	m, _ := metric.Resolve(c.distance)
	return preprocessedSource{inner: c.vectors, preprocess: m.Preprocess}
}

type preprocessedSource struct {
	inner      hnsw.VectorSource
	preprocess func([]float32) []float32
}

func (s preprocessedSource) Get(id hnsw.InternalId) ([]float32, error) {
	v, err := s.inner.Get(id)
	if err != nil {
		return nil, err
	}
	return s.preprocess(v), nil
}

// ensureIndexBuilt loads or builds the HNSW graph on first use. A
// mismatch between the persisted indexed_vector_count and the current
// live count means a delete or update (or an external edit) happened since the
// graph was last saved without a matching Reindex; rather than risk
// internal-id misalignment, that case forces a fresh build.
func (c *Collection) ensureIndexBuilt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hnswIdx != nil {
		return nil
	}

	numVectors := c.ids.Len()
	source := c.vectorSource()
	idx, err := hnsw.Open(c.dir, c.hnswCfg, c.distance, numVectors, source, c.seed)
	if err != nil {
		return err
	}
	if idx.Config().IndexedVectorCount != numVectors {
		c.log.Warn("persisted graph vector count disagrees with live record count, forcing rebuild",
			"dir", c.dir, "persisted", idx.Config().IndexedVectorCount, "live", numVectors)
		idx, err = hnsw.Rebuild(c.dir, c.hnswCfg, c.distance, numVectors, source, c.seed)
		if err != nil {
			return err
		}
	}
	c.hnswIdx = idx
	return nil
}

// Insert appends vector/payload as a new record and, once an HNSW
// graph is already resident, links it into the live graph too.
func (c *Collection) Insert(vector []float32, payload string) (recordindex.RecordId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(vector, payload)
}

func (c *Collection) insertLocked(vector []float32, payload string) (recordindex.RecordId, error) {
	offset, _, err := c.records.Insert(vector, payload, recordstore.Raw)
	if err != nil {
		return 0, err
	}
	id := c.index.NextId()
	if err := c.index.Insert(id, offset); err != nil {
		return 0, err
	}
	internal := c.ids.Assign(id)
	c.vectors.Put(internal, offset, vector, payload)

	if c.hnswIdx != nil {
		if _, err := c.hnswIdx.InsertPoint(c.vectorSource(), c.preprocess(vector)); err != nil {
			return 0, err
		}
		if err := c.hnswIdx.Save(); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// BulkInsert appends every row in one batch (one LSN per row, one
// header rewrite for the whole batch), then links each into the live
// graph if one is already built.
func (c *Collection) BulkInsert(rows []VectorPayload) ([]recordindex.RecordId, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recs := make([]recordstore.Record, len(rows))
	for i, r := range rows {
		recs[i] = recordstore.Record{Vector: r.Vector, Payload: r.Payload}
	}
	offsets, err := c.records.BatchInsert(recs)
	if err != nil {
		return nil, err
	}

	ids := make([]recordindex.RecordId, len(rows))
	for i, r := range rows {
		id := c.index.NextId()
		if err := c.index.Insert(id, offsets[i]); err != nil {
			return nil, err
		}
		internal := c.ids.Assign(id)
		c.vectors.Put(internal, offsets[i], r.Vector, r.Payload)
		ids[i] = id

		if c.hnswIdx != nil {
			if _, err := c.hnswIdx.InsertPoint(c.vectorSource(), c.preprocess(r.Vector)); err != nil {
				return nil, err
			}
		}
	}
	if c.hnswIdx != nil {
		if err := c.hnswIdx.Save(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Update replaces id's vector/payload: the record store deletes the
// old bytes and appends new ones under their own LSNs, the id tracker
// points id at a freshly allocated InternalId and the old InternalId's
// reverse mapping is cleared so it no longer resolves back to id (the
// old vector stays resident, now unreachable, in the HNSW graph —
// deleting a vector from the graph itself is out of scope), its
// vectorstore entry is evicted, and the new vector is linked in if a
// graph is already built.
func (c *Collection) Update(id recordindex.RecordId, vector []float32, payload string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset, ok := c.index.Get(id)
	if !ok {
		return false, nil
	}
	outcome, err := c.records.Update(offset, vector, payload)
	if err != nil {
		return false, err
	}
	if !outcome.Updated {
		return false, nil
	}
	if err := c.index.Update(id, outcome.NewOffset); err != nil {
		return false, err
	}

	oldInternal, hadOld := c.ids.ToInternal(id)
	newInternal := idtracker.InternalId(c.ids.Len())
	c.ids.Reassign(id, newInternal)
	c.vectors.Put(newInternal, outcome.NewOffset, vector, payload)
	if hadOld {
		c.vectors.Remove(oldInternal)
	}

	if c.hnswIdx != nil {
		if _, err := c.hnswIdx.InsertPoint(c.vectorSource(), c.preprocess(vector)); err != nil {
			return false, err
		}
		if err := c.hnswIdx.Save(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Delete soft-deletes id: the record store tombstones its bytes, the
// record index forgets the id, and the vector store drops its cache
// entry so the (still graph-resident) InternalId fails to resolve at
// query time rather than scoring a deleted vector.
func (c *Collection) Delete(id recordindex.RecordId) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	offset, ok := c.index.Get(id)
	if !ok {
		return false, nil
	}
	res, err := c.records.Delete(offset, recordstore.Raw)
	if err != nil {
		return false, err
	}
	if res == recordstore.NotFound {
		return false, nil
	}
	if err := c.index.Delete(id); err != nil {
		return false, err
	}
	if internal, ok := c.ids.ToInternal(id); ok {
		c.vectors.Remove(internal)
	}
	c.ids.Forget(id)
	return true, nil
}

// Search looks up a single record by id.
func (c *Collection) Search(id recordindex.RecordId) (RecordView, bool, error) {
	c.mu.Lock()
	offset, ok := c.index.Get(id)
	c.mu.Unlock()
	if !ok {
		return RecordView{}, false, nil
	}
	rec, found, err := c.records.Search(offset)
	if err != nil || !found {
		return RecordView{}, false, err
	}
	return RecordView{Id: id, Vector: rec.Vector, Payload: rec.Payload}, true, nil
}

// SearchAll returns every live record, in ascending id order.
func (c *Collection) SearchAll() ([]RecordView, error) {
	c.mu.Lock()
	entries := c.index.Iter()
	c.mu.Unlock()

	out := make([]RecordView, 0, len(entries))
	for _, e := range entries {
		rec, found, err := c.records.Search(e.Offset)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, RecordView{Id: e.Id, Vector: rec.Vector, Payload: rec.Payload})
	}
	return out, nil
}

// SearchSimilar runs an ANN query against the HNSW graph (building it
// first if this is the first query since open), scoring with dist
// regardless of which metric the graph's topology was built under.
func (c *Collection) SearchSimilar(dist metric.Distance, query []float32, top int) ([]Match, error) {
	if err := c.ensureIndexBuilt(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := metric.Resolve(dist)
	if !ok {
		return nil, errors.Errorf("collection: unknown distance %q", dist)
	}
	q := m.Preprocess(query)
	source := preprocessedSource{inner: c.vectors, preprocess: m.Preprocess}
	pool := hnsw.NewVisitedPool()
	ef := c.hnswIdx.Config().Ef

	scored, err := hnsw.Search(c.hnswIdx.Graph(), source, m.Similarity, pool, c.hnswIdx.EntryPoint(), q, top, ef)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(scored))
	for _, sp := range scored {
		extID, ok := c.ids.ToExternal(sp.Id)
		if !ok {
			continue
		}
		matches = append(matches, Match{Id: extID, Score: sp.Score})
	}
	return matches, nil
}

// Reindex rebuilds the HNSW graph from scratch against the currently
// live records only, densely renumbering InternalIds in ascending
// RecordId order — the one operation that may shrink the graph back
// down after deletions.
func (c *Collection) Reindex() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	newIds := idtracker.New()
	newVectors, err := vectorstore.New(c.records, 0)
	if err != nil {
		return err
	}

	for _, e := range c.index.Iter() {
		rec, found, err := c.records.Search(e.Offset)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		internal := newIds.Assign(e.Id)
		newVectors.Put(internal, e.Offset, rec.Vector, rec.Payload)
	}

	m, _ := metric.Resolve(c.distance)
	source := preprocessedSource{inner: newVectors, preprocess: m.Preprocess}
	idx, err := hnsw.Rebuild(c.dir, c.hnswCfg, c.distance, newIds.Len(), source, c.seed)
	if err != nil {
		return err
	}

	c.ids = newIds
	c.vectors = newVectors
	c.hnswIdx = idx
	return nil
}

// TruncateWal rotates the collection's own WAL file, preserving its
// current_max_lsn.
func (c *Collection) TruncateWal() error {
	return c.wal.Truncate(c.wal.CurrentMaxLsn())
}
