package recordstore

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// InsertMode controls header-write behavior; the in-memory LSN
// watermark always advances by exactly one per record regardless of
// mode. Raw is a standalone mutation (rewrites the header
// immediately). InUpdate is used for the delete-then-insert halves of
// an UPDATE and the rows of a BatchInsert, each still getting its own
// strictly increasing LSN, but sharing a single header rewrite
// performed by the caller once the whole batch/pair is done.
type InsertMode int

const (
	Raw InsertMode = iota
	InUpdate
)

// Sentinel errors. Not found is modeled as a zero-value/bool result
// per §7 rather than an error, except where noted.
var (
	ErrInvalidVectorDim  = errors.New("recordstore: invalid vector dimension")
	ErrCannotDeserialize = errors.New("recordstore: cannot deserialize record")
	ErrIncorrectChecksum = errors.New("recordstore: incorrect checksum")
)

// DeleteResult is the outcome of Delete.
type DeleteResult int

const (
	Deleted DeleteResult = iota
	NotFound
)

// UpdateOutcome is the outcome of Update.
type UpdateOutcome struct {
	Updated   bool
	NewOffset Offset
}

// Store is the append-only record file: {lsn, deleted, checksum,
// vector, payload} records behind a 64-byte header at offset 0.
type Store struct {
	mu   sync.RWMutex
	path string
	file *os.File
	hdr  header
}

// Create initializes a new, empty record store file with a default
// header, fsynced before returning.
func Create(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "recordstore: create %s", path)
	}
	s := &Store{path: path, file: f}
	buf := s.hdr.encode()
	if _, err := f.WriteAt(buf[:], 0); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "recordstore: write header")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "recordstore: fsync")
	}
	return s, nil
}

// Load opens an existing record store, rebuilding the header by
// scanning records if its checksum does not verify.
func Load(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "recordstore: open %s", path)
	}
	s := &Store{path: path, file: f}

	buf := make([]byte, headerSize)
	n, _ := f.ReadAt(buf, 0)
	if h, ok := decodeHeader(buf[:n]); ok {
		s.hdr = h
		return s, nil
	}
	if err := s.rebuildHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// rebuildHeader linearly scans records from end of header to EOF,
// taking max(lsn) across all records and the dimension of the first
// readable one, per the crash-recovery contract in the design.
func (s *Store) rebuildHeader() error {
	info, err := s.file.Stat()
	if err != nil {
		return errors.Wrap(err, "recordstore: stat")
	}
	size := info.Size()

	var maxLsn uint64
	var dim uint32
	haveDim := false

	off := int64(headerSize)
	for off < size {
		rec, recSize, ok, err := s.readAt(off)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if rec.Lsn > maxLsn {
			maxLsn = rec.Lsn
		}
		if !haveDim {
			dim = uint32(len(rec.Vector))
			haveDim = true
		}
		off += int64(recSize)
	}

	s.hdr = header{CurrentMaxLsn: maxLsn, VectorDim: dim}
	return s.writeHeader()
}

func (s *Store) writeHeader() error {
	buf := s.hdr.encode()
	if _, err := s.file.WriteAt(buf[:], 0); err != nil {
		return errors.Wrap(err, "recordstore: write header")
	}
	return nil
}

// readAt reads one record's on-disk bytes starting at off, without
// checksum verification, for use by the header-rebuild scan (which
// must tolerate a trailing partial write).
func (s *Store) readAt(off int64) (Record, int, bool, error) {
	// Read a generously sized chunk; grow on demand for large vectors.
	const probe = 4096
	buf := make([]byte, probe)
	n, err := s.file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return Record{}, 0, false, errors.Wrap(err, "recordstore: read")
	}
	buf = buf[:n]
	if rec, _, size, ok := decodeRecord(buf); ok {
		return rec, size, true, nil
	}
	// Might have been a short read; try growing to cover a large vector.
	if n == probe {
		big := make([]byte, probe*64)
		n2, err := s.file.ReadAt(big, off)
		if err != nil && err != io.EOF {
			return Record{}, 0, false, errors.Wrap(err, "recordstore: read")
		}
		if rec, _, size, ok := decodeRecord(big[:n2]); ok {
			return rec, size, true, nil
		}
	}
	return Record{}, 0, false, nil
}

// Insert validates the vector dimension (fixing it if still unset),
// appends a new record at EOF, and returns its offset and LSN. The LSN
// is bumped in every mode; under Raw the header is also rewritten
// immediately.
func (s *Store) Insert(vector []float32, payload string, mode InsertMode) (Offset, Lsn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(vector, payload, mode)
}

func (s *Store) insertLocked(vector []float32, payload string, mode InsertMode) (Offset, Lsn, error) {
	if s.hdr.VectorDim == 0 {
		s.hdr.VectorDim = uint32(len(vector))
	} else if int(s.hdr.VectorDim) != len(vector) {
		return 0, 0, ErrInvalidVectorDim
	}

	lsn := s.hdr.CurrentMaxLsn + 1

	rec := Record{Lsn: lsn, Deleted: false, Vector: vector, Payload: payload}
	checksum := recordChecksum(&rec)

	size := encodedSize(len(vector), len(payload))
	buf := make([]byte, size)
	encodeRecord(buf, &rec, checksum)

	info, err := s.file.Stat()
	if err != nil {
		return 0, 0, errors.Wrap(err, "recordstore: stat")
	}
	offset := Offset(info.Size())

	if _, err := s.file.WriteAt(buf, int64(offset)); err != nil {
		return 0, 0, errors.Wrap(err, "recordstore: write record")
	}

	s.hdr.CurrentMaxLsn = lsn
	if mode == Raw {
		if err := s.writeHeader(); err != nil {
			return 0, 0, err
		}
	}

	return offset, lsn, nil
}

// BatchInsert appends records one after another, bumping the LSN once
// per record but writing the header only once at the end.
func (s *Store) BatchInsert(records []Record) ([]Offset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offsets := make([]Offset, 0, len(records))
	for _, r := range records {
		off, _, err := s.insertLocked(r.Vector, r.Payload, InUpdate)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, off)
	}
	if err := s.writeHeader(); err != nil {
		return nil, err
	}
	return offsets, nil
}

// Search reads the record at offset, verifying its checksum. A
// tombstoned record returns (nil, false, nil): present in the file but
// logically absent.
func (s *Store) Search(offset Offset) (*Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchLocked(offset)
}

func (s *Store) searchLocked(offset Offset) (*Record, bool, error) {
	rec, checksum, _, err := s.readFullAt(offset)
	if err != nil {
		return nil, false, err
	}
	if recordChecksum(&rec) != checksum {
		return nil, false, errors.Wrapf(ErrIncorrectChecksum, "recordstore: offset %d", offset)
	}
	if rec.Deleted {
		return nil, false, nil
	}
	return &rec, true, nil
}

// readFullAt reads and fully decodes the record at off, without
// tolerance for truncation — any structural failure is
// ErrCannotDeserialize.
func (s *Store) readFullAt(off Offset) (Record, uint64, int, error) {
	info, err := s.file.Stat()
	if err != nil {
		return Record{}, 0, 0, errors.Wrap(err, "recordstore: stat")
	}
	if int64(off) >= info.Size() {
		return Record{}, 0, 0, errors.Wrapf(ErrCannotDeserialize, "offset %d past EOF", off)
	}
	remaining := info.Size() - int64(off)
	buf := make([]byte, remaining)
	if _, err := s.file.ReadAt(buf, int64(off)); err != nil && err != io.EOF {
		return Record{}, 0, 0, errors.Wrap(err, "recordstore: read")
	}
	rec, checksum, size, ok := decodeRecord(buf)
	if !ok {
		return Record{}, 0, 0, errors.Wrapf(ErrCannotDeserialize, "offset %d", off)
	}
	return rec, checksum, size, nil
}

// Delete soft-deletes the record at offset by flipping its tombstone
// bit and rewriting its header in place (not its bytes extent).
func (s *Store) Delete(offset Offset, mode InsertMode) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(offset, mode)
}

func (s *Store) deleteLocked(offset Offset, mode InsertMode) (DeleteResult, error) {
	rec, checksum, _, err := s.readFullAt(offset)
	if err != nil {
		return NotFound, err
	}
	if recordChecksum(&rec) != checksum {
		return NotFound, errors.Wrapf(ErrIncorrectChecksum, "recordstore: offset %d", offset)
	}
	if rec.Deleted {
		return NotFound, nil
	}

	lsn := s.hdr.CurrentMaxLsn + 1
	rec.Lsn = lsn
	rec.Deleted = true
	newChecksum := recordChecksum(&rec)

	size := encodedSize(len(rec.Vector), len(rec.Payload))
	buf := make([]byte, size)
	encodeRecord(buf, &rec, newChecksum)
	if _, err := s.file.WriteAt(buf, int64(offset)); err != nil {
		return NotFound, errors.Wrap(err, "recordstore: rewrite record")
	}

	s.hdr.CurrentMaxLsn = lsn
	if mode == Raw {
		if err := s.writeHeader(); err != nil {
			return NotFound, err
		}
	}
	return Deleted, nil
}

// Update applies the provided fields (nil/empty means "keep current"
// is the caller's responsibility to resolve before calling — Update
// always replaces both fields with what it's given) by deleting the
// old record and inserting a new one. Each half gets its own strictly
// increasing LSN (delete then insert, current_max_lsn growing by
// exactly 2), with a single header write at the end covering both.
func (s *Store) Update(offset Offset, vector []float32, payload string) (UpdateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.searchLocked(offset); err != nil {
		return UpdateOutcome{}, err
	}
	rec, checksum, _, err := s.readFullAt(offset)
	if err != nil {
		return UpdateOutcome{}, err
	}
	if recordChecksum(&rec) != checksum || rec.Deleted {
		return UpdateOutcome{}, nil
	}

	if _, err := s.deleteLocked(offset, InUpdate); err != nil {
		return UpdateOutcome{}, err
	}
	newOffset, _, err := s.insertLocked(vector, payload, InUpdate)
	if err != nil {
		return UpdateOutcome{}, err
	}

	if err := s.writeHeader(); err != nil {
		return UpdateOutcome{}, err
	}

	return UpdateOutcome{Updated: true, NewOffset: newOffset}, nil
}

// CurrentMaxLsn returns the store's current LSN watermark.
func (s *Store) CurrentMaxLsn() Lsn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hdr.CurrentMaxLsn
}

// VectorDim returns the fixed dimension for this store, or 0 if unset.
func (s *Store) VectorDim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.hdr.VectorDim)
}

// Close syncs and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrap(err, "recordstore: fsync on close")
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ScanLive calls fn for every non-deleted record in the store, in file
// order, along with its offset. Used by btree.Rebuild to reconstruct
// the record index from the store.
func (s *Store) ScanLive(fn func(offset Offset, rec *Record) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, err := s.file.Stat()
	if err != nil {
		return errors.Wrap(err, "recordstore: stat")
	}
	size := info.Size()

	off := int64(headerSize)
	for off < size {
		rec, checksum, n, err := s.readFullAt(Offset(off))
		if err != nil {
			return err
		}
		if recordChecksum(&rec) != checksum {
			return errors.Wrapf(ErrIncorrectChecksum, "recordstore: offset %d", off)
		}
		if !rec.Deleted {
			if err := fn(Offset(off), &rec); err != nil {
				return err
			}
		}
		off += int64(n)
	}
	return nil
}
