package hnsw

import "sync"

// EntryPoint names the point used as a query's start vertex.
type EntryPoint struct {
	Id    InternalId
	Level int
}

// EntryPointPolicy holds one "current best" entry point plus a bounded
// set of runner-up extras, per the design's §4.5 policy: extras exist
// so that, if the current best is ever superseded, a decent fallback
// with a high level is already on hand instead of scanning every point.
type EntryPointPolicy struct {
	mu     sync.Mutex
	best   *EntryPoint
	extras *BoundedQueue // scored by float32(level)
}

// NewEntryPointPolicy returns an empty policy whose extras heap holds
// at most extrasCapacity runner-ups.
func NewEntryPointPolicy(extrasCapacity int) *EntryPointPolicy {
	return &EntryPointPolicy{extras: NewBoundedQueue(extrasCapacity)}
}

// Peek returns the current best entry point without mutating policy
// state, or ok=false if the graph has no entry yet.
func (p *EntryPointPolicy) Peek() (EntryPoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.best == nil {
		return EntryPoint{}, false
	}
	return *p.best, true
}

// GetEntryPoint returns the best entry, falling back to the
// highest-level extra if no best has been installed.
func (p *EntryPointPolicy) GetEntryPoint() (EntryPoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.best != nil {
		return *p.best, true
	}
	sp, ok := p.extras.PopBest()
	if !ok {
		return EntryPoint{}, false
	}
	ep := EntryPoint{Id: sp.Id, Level: int(sp.Score)}
	p.best = &ep
	return ep, true
}

// NewPoint offers (id, level) as a candidate entry point, per §4.5:
// installs it if no entry exists; otherwise pushes it to extras if the
// current entry is at least as high, or swaps it in (demoting the old
// entry to extras) if it is strictly higher. Returns the prior entry,
// if any.
func (p *EntryPointPolicy) NewPoint(id InternalId, level int) (EntryPoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.best == nil {
		p.best = &EntryPoint{Id: id, Level: level}
		return EntryPoint{}, false
	}

	if p.best.Level >= level {
		p.extras.PushScored(ScoredPoint{Id: id, Score: float32(level)})
		return *p.best, true
	}

	old := *p.best
	p.best = &EntryPoint{Id: id, Level: level}
	p.extras.PushScored(ScoredPoint{Id: old.Id, Score: float32(old.Level)})
	return old, true
}
