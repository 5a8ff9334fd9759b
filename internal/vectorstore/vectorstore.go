// Package vectorstore is the in-RAM vector storage component: raw
// vectors accessed by dense InternalId. It is an LRU-cached decode
// layer in front of the record store, grounded on the teacher's
// vectorCache *lru.Cache[uint64, []float32] field in
// internal/storage/storage.go — a cache miss falls back to a disk
// read at the InternalId's recorded Offset rather than keeping every
// vector resident, since the record store remains the source of
// truth.
package vectorstore

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/monishSR/vecdb/internal/recordstore"
)

type InternalId = uint32

// ErrNotFound indicates the InternalId has no known offset.
var ErrNotFound = errors.New("vectorstore: internal id not found")

// entry pairs the decode-validated vector with the payload that came
// back alongside it, so a caller needing both (e.g. SEARCH) avoids a
// second disk seek.
type entry struct {
	vector  []float32
	payload string
}

// Store is the InternalId -> vector/payload cache fronting a record
// store. DefaultCapacity mirrors the teacher's default of 1000 when
// the caller passes <= 0.
const DefaultCapacity = 1000

type Store struct {
	mu      sync.RWMutex
	records *recordstore.Store
	offsets map[InternalId]recordstore.Offset
	cache   *lru.Cache[InternalId, entry]
}

// New builds a vector store fronting records, an already-open record
// store this component borrows (never owns the file handle).
func New(records *recordstore.Store, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[InternalId, entry](capacity)
	if err != nil {
		return nil, errors.Wrap(err, "vectorstore: create lru cache")
	}
	return &Store{
		records: records,
		offsets: make(map[InternalId]recordstore.Offset),
		cache:   cache,
	}, nil
}

// Put registers the offset a newly inserted (or reassigned) InternalId
// lives at and primes the cache with its decoded vector/payload, so
// the immediately following graph insertion need not hit disk.
func (s *Store) Put(id InternalId, offset recordstore.Offset, vector []float32, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[id] = offset
	vecCopy := make([]float32, len(vector))
	copy(vecCopy, vector)
	s.cache.Add(id, entry{vector: vecCopy, payload: payload})
}

// Get returns the vector for id, decoding from the record store on a
// cache miss. Returns ErrNotFound if id has no known offset, and the
// record store's own error (e.g. checksum mismatch) if the backing
// record fails to decode.
func (s *Store) Get(id InternalId) ([]float32, error) {
	vec, _, err := s.GetWithPayload(id)
	return vec, err
}

// GetWithPayload is like Get but also returns the record's payload.
func (s *Store) GetWithPayload(id InternalId) ([]float32, string, error) {
	if e, ok := s.cache.Get(id); ok {
		return e.vector, e.payload, nil
	}

	s.mu.RLock()
	offset, ok := s.offsets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}

	rec, found, err := s.records.Search(offset)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", ErrNotFound
	}

	s.cache.Add(id, entry{vector: rec.Vector, payload: rec.Payload})
	return rec.Vector, rec.Payload, nil
}

// Offset returns the known record-store offset for id.
func (s *Store) Offset(id InternalId) (recordstore.Offset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	off, ok := s.offsets[id]
	return off, ok
}

// Remove drops id's offset mapping and cache entry. The vector stays
// on disk as a tombstoned record; this only makes it unreachable
// through the in-RAM store.
func (s *Store) Remove(id InternalId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offsets, id)
	s.cache.Remove(id)
}

// Len returns the number of InternalIds with a known offset.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.offsets)
}
