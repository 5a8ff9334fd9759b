package hnsw

import "runtime"

// MaxVisitedPoolSize bounds the number of reusable visited-set buffers
// kept around; handles requested beyond this are allocated fresh and
// dropped rather than returned on release.
const MaxVisitedPoolSize = 16

// VisitedSet is a reusable "visited during this query" marker, a
// per-point generation counter plus the counter value that means
// "visited in the current pass" — avoids re-zeroing a fresh bitset on
// every search.
type VisitedSet struct {
	counters []uint32
	iter     uint32
}

func (v *VisitedSet) ensureSize(n int) {
	if n <= len(v.counters) {
		return
	}
	grown := make([]uint32, n)
	copy(grown, v.counters)
	v.counters = grown
}

// reset begins a new pass over n points, incrementing the generation
// counter (and clearing it back to a fresh zeroed buffer on overflow).
func (v *VisitedSet) reset(n int) {
	v.ensureSize(n)
	v.iter++
	if v.iter == 0 {
		for i := range v.counters {
			v.counters[i] = 0
		}
		v.iter = 1
	}
}

// Check reports whether p was marked during the current pass.
func (v *VisitedSet) Check(p InternalId) bool {
	return int(p) < len(v.counters) && v.counters[p] >= v.iter
}

// Mark records p as visited during the current pass.
func (v *VisitedSet) Mark(p InternalId) {
	v.ensureSize(int(p) + 1)
	v.counters[p] = v.iter
}

// VisitedPool hands out VisitedSets sized to the pool's cap so callers
// avoid allocating a fresh bitset per search. Handles beyond the cap
// are still served (freshly allocated) but dropped on Release instead
// of being pooled, per the design's "min(num_cpus, 16)" sizing note.
type VisitedPool struct {
	slots chan *VisitedSet
}

// NewVisitedPool sizes the pool to min(runtime.GOMAXPROCS(0), MaxVisitedPoolSize).
func NewVisitedPool() *VisitedPool {
	size := runtime.GOMAXPROCS(0)
	if size > MaxVisitedPoolSize {
		size = MaxVisitedPoolSize
	}
	if size < 1 {
		size = 1
	}
	return &VisitedPool{slots: make(chan *VisitedSet, size)}
}

// Acquire returns a VisitedSet ready for a pass over n points. The
// caller must call Release when done, including on error paths (the
// Go idiom for RAII here is defer).
func (p *VisitedPool) Acquire(n int) *VisitedSet {
	select {
	case v := <-p.slots:
		v.reset(n)
		return v
	default:
		v := &VisitedSet{}
		v.reset(n)
		return v
	}
}

// Release returns v to the pool, or drops it silently if the pool is
// already at capacity.
func (p *VisitedPool) Release(v *VisitedSet) {
	select {
	case p.slots <- v:
	default:
	}
}
