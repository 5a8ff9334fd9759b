// Package recordindex defines the abstract RecordId -> Offset ordered
// map the design calls for. It deliberately stays an interface: a
// real B+Tree is out of scope (see spec.md §1), and "any implementation
// satisfying this contract" is acceptable.
package recordindex

import "github.com/monishSR/vecdb/internal/recordstore"

// RecordId is the externally visible, stable identifier for a record.
type RecordId = uint32

// Entry pairs a record id with its current offset in the record store.
type Entry struct {
	Id     RecordId
	Offset recordstore.Offset
}

// Index is an ordered map from RecordId to Offset, plus a
// monotonically increasing id generator. Implementations must be
// crash-safe when combined with the WAL: every mutation that reaches
// Insert/Update must already be journalled.
type Index interface {
	// NextId allocates and returns the next RecordId to assign.
	NextId() RecordId

	// Insert adds a new (id, offset) pair. id must not already exist.
	Insert(id RecordId, offset recordstore.Offset) error

	// Update repoints an existing id at a new offset (used by UPDATE,
	// which replaces a record's offset without changing its id).
	Update(id RecordId, newOffset recordstore.Offset) error

	// Get returns the offset for id, or ok=false if absent.
	Get(id RecordId) (offset recordstore.Offset, ok bool)

	// Delete removes id from the index (the record store handles
	// tombstoning the bytes; the index simply forgets the id so it is
	// no longer resolvable).
	Delete(id RecordId) error

	// Iter returns all live (id, offset) pairs sorted by ascending id.
	Iter() []Entry

	// Len returns the number of live ids.
	Len() int
}
