// Package idtracker maintains the bijection between RecordId (the
// externally visible, stable id) and InternalId (the dense [0, N) id
// the HNSW graph and vector storage use internally). Deletion of a
// vector from the graph is out of scope — DELETE drops the RecordId's
// mapping with Forget, but its InternalId slot is never reused — so
// InternalId allocation is a simple monotonic counter, never a free
// list. UPDATE similarly leaves the replaced
// vector's old InternalId resident in the graph; extToInt is the
// authoritative direction, so once Reassign repoints a RecordId at a
// new InternalId, ToExternal on the superseded one reports not found.
package idtracker

import "sync"

type RecordId = uint32
type InternalId = uint32

// Tracker is the external <-> internal id bijection.
type Tracker struct {
	mu       sync.RWMutex
	extToInt map[RecordId]InternalId
	intToExt []RecordId
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{extToInt: make(map[RecordId]InternalId)}
}

// Assign allocates the next dense InternalId for external and records
// the bijection. external must not already be tracked.
func (t *Tracker) Assign(external RecordId) InternalId {
	t.mu.Lock()
	defer t.mu.Unlock()
	internal := InternalId(len(t.intToExt))
	t.intToExt = append(t.intToExt, external)
	t.extToInt[external] = internal
	return internal
}

// Reassign repoints external at a (possibly new) InternalId without
// allocating — used by UPDATE, which keeps the RecordId but creates a
// new InternalId for the replacement vector.
func (t *Tracker) Reassign(external RecordId, internal InternalId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.extToInt[external] = internal
	for internal >= InternalId(len(t.intToExt)) {
		t.intToExt = append(t.intToExt, 0)
	}
	t.intToExt[internal] = external
}

// ToInternal resolves external to its current InternalId.
func (t *Tracker) ToInternal(external RecordId) (InternalId, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.extToInt[external]
	return id, ok
}

// ToExternal resolves internal back to its RecordId. An InternalId
// superseded by Reassign (the old internal id of an updated record) is
// reported not found: its slot in intToExt still names the RecordId
// for bookkeeping, but extToInt no longer points back at it, and that
// is the authoritative direction.
func (t *Tracker) ToExternal(internal InternalId) (RecordId, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(internal) >= len(t.intToExt) {
		return 0, false
	}
	external := t.intToExt[internal]
	if current, ok := t.extToInt[external]; !ok || current != internal {
		return 0, false
	}
	return external, true
}

// Forget removes external from the bijection (used by DELETE, which
// retires a RecordId for good; REINDEX builds a fresh Tracker). It does not
// shrink intToExt, preserving density of ids below it.
func (t *Tracker) Forget(external RecordId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.extToInt, external)
}

// Len returns the number of InternalIds ever allocated.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.intToExt)
}
