// Package btree is a concrete implementation of recordindex.Index.
// The design treats the record index as an abstract ordered map and
// accepts "any implementation satisfying the contract" (B+Tree, sorted
// file, LSM); this one keeps an in-memory map backed by a durable
// append log of (id, offset, deleted) entries, replayed on open. It is
// not a balanced tree on disk — the ordering guarantee the interface
// promises is provided by sorting the map's ids on each Iter call,
// which is sufficient for the single-node, single-writer
// model the design requires.
package btree

import (
	"encoding/binary"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/monishSR/vecdb/internal/recordindex"
	"github.com/monishSR/vecdb/internal/recordstore"
)

const (
	headerSize = 16 // count(u32) + reserved(u32) + checksum(u64)
	entrySize  = 4 + 8 + 1
)

// Tree is the durable RecordId -> Offset ordered map.
type Tree struct {
	mu          sync.RWMutex
	path        string
	file        *os.File
	entries     map[recordindex.RecordId]recordstore.Offset
	nextId      recordindex.RecordId
	loggedCount uint32 // number of entries in the append log (>= len(entries))
}

var _ recordindex.Index = (*Tree)(nil)

// Create initializes a new, empty index file.
func Create(path string) (*Tree, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "recordindex: create %s", path)
	}
	t := &Tree{path: path, file: f, entries: make(map[recordindex.RecordId]recordstore.Offset)}
	if err := t.writeHeader(0); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// Load opens an existing index file, replaying its append log. If the
// header is corrupt, the caller should fall back to Rebuild instead of
// Load, per the design's corruption contract.
func Load(path string) (*Tree, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, false, errors.Wrapf(err, "recordindex: open %s", path)
	}
	t := &Tree{path: path, file: f, entries: make(map[recordindex.RecordId]recordstore.Offset)}

	hdrBuf := make([]byte, headerSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, false, nil
	}
	count, ok := decodeHeader(hdrBuf)
	if !ok {
		f.Close()
		return nil, false, nil
	}

	body := make([]byte, int(count)*entrySize)
	if _, err := f.ReadAt(body, headerSize); err != nil {
		f.Close()
		return nil, false, nil
	}

	var maxId recordindex.RecordId
	for i := 0; i < int(count); i++ {
		e := body[i*entrySize : (i+1)*entrySize]
		id := binary.LittleEndian.Uint32(e[0:4])
		offset := binary.LittleEndian.Uint64(e[4:12])
		deleted := e[12] != 0
		if deleted {
			delete(t.entries, id)
		} else {
			t.entries[id] = offset
		}
		if id >= maxId {
			maxId = id + 1
		}
	}
	t.nextId = maxId
	t.loggedCount = count
	return t, true, nil
}

// Rebuild reconstructs the index by scanning the record store's live
// records (in file order, which is insertion/LSN order) and assigning
// ids 0, 1, 2, ... by that order — the contract the design mandates
// for index corruption recovery.
func Rebuild(path string, store *recordstore.Store) (*Tree, error) {
	os.Remove(path)
	t, err := Create(path)
	if err != nil {
		return nil, err
	}

	var nextId recordindex.RecordId
	err = store.ScanLive(func(offset recordstore.Offset, rec *recordstore.Record) error {
		id := nextId
		nextId++
		return t.Insert(id, offset)
	})
	if err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func decodeHeader(buf []byte) (uint32, bool) {
	count := binary.LittleEndian.Uint32(buf[0:4])
	checksum := binary.LittleEndian.Uint64(buf[8:16])
	return count, checksum == headerChecksum(count)
}

func headerChecksum(count uint32) uint64 {
	// A lightweight integrity check over the header's own fields; body
	// corruption is caught by the bounds check when replaying entries.
	return uint64(count)*2654435761 + 0x9E3779B97F4A7C15
}

func (t *Tree) writeHeader(count uint32) error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], count)
	binary.LittleEndian.PutUint64(buf[8:16], headerChecksum(count))
	_, err := t.file.WriteAt(buf[:], 0)
	if err != nil {
		return errors.Wrap(err, "recordindex: write header")
	}
	return t.file.Sync()
}

func (t *Tree) appendEntry(id recordindex.RecordId, offset recordstore.Offset, deleted bool) error {
	var buf [entrySize]byte
	binary.LittleEndian.PutUint32(buf[0:4], id)
	binary.LittleEndian.PutUint64(buf[4:12], offset)
	if deleted {
		buf[12] = 1
	}
	entryOffset := int64(headerSize) + int64(t.loggedCount)*entrySize
	if _, err := t.file.WriteAt(buf[:], entryOffset); err != nil {
		return errors.Wrap(err, "recordindex: append entry")
	}
	t.loggedCount++
	return t.writeHeader(t.loggedCount)
}

func (t *Tree) NextId() recordindex.RecordId {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextId
	t.nextId++
	return id
}

func (t *Tree) Insert(id recordindex.RecordId, offset recordstore.Offset) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.appendEntry(id, offset, false); err != nil {
		return err
	}
	t.entries[id] = offset
	if id >= t.nextId {
		t.nextId = id + 1
	}
	return nil
}

func (t *Tree) Update(id recordindex.RecordId, newOffset recordstore.Offset) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.appendEntry(id, newOffset, false); err != nil {
		return err
	}
	t.entries[id] = newOffset
	return nil
}

func (t *Tree) Get(id recordindex.RecordId) (recordstore.Offset, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	off, ok := t.entries[id]
	return off, ok
}

func (t *Tree) Delete(id recordindex.RecordId) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return nil
	}
	if err := t.appendEntry(id, 0, true); err != nil {
		return err
	}
	delete(t.entries, id)
	return nil
}

func (t *Tree) Iter() []recordindex.Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]recordindex.Entry, 0, len(t.entries))
	for id, off := range t.entries {
		out = append(out, recordindex.Entry{Id: id, Offset: off})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
