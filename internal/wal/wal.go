// Package wal implements the durability envelope's write-ahead log: a
// single append-only file of length-prefixed entries, each committed
// in place once its effect is durable elsewhere.
package wal

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// headerSize is the fixed scalar header: last_entry_offset (u64) +
// current_max_lsn (u64).
const headerSize = 16

// entryHeaderSize is the fixed portion of an entry: lsn (u64) +
// committed (1 byte) + data_len (u16).
const entryHeaderSize = 11

// Header is the WAL's on-disk scalar state.
type Header struct {
	LastEntryOffset uint64
	CurrentMaxLsn   uint64
}

// Entry is one WAL record: a logical sequence number, a commit flag,
// and the command text it carries.
type Entry struct {
	Lsn       uint64
	Committed bool
	Data      string
}

// Wal is one write-ahead log file: a collection's own, or the
// database root's.
type Wal struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	header Header
}

// OpenResult is what Load returns: a ready Wal, plus, if the file's
// last entry was left uncommitted by a crash, the command text the
// caller must roll back before accepting new commands.
type OpenResult struct {
	Wal                *Wal
	PendingCommandText string
	HasPending         bool
}

// Create makes a fresh, empty WAL file at path.
func Create(path string) (*Wal, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "wal: create")
	}
	w := &Wal{path: path, file: file, header: Header{LastEntryOffset: headerSize}}
	if err := w.writeHeader(); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

// Load opens path, recreating it empty if the header cannot be read,
// and reports whether the tail entry is uncommitted.
func Load(path string) (*OpenResult, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "wal: open")
	}

	header, err := readHeader(file)
	if err != nil {
		file.Close()
		w, err := Create(path)
		if err != nil {
			return nil, err
		}
		return &OpenResult{Wal: w}, nil
	}

	w := &Wal{path: path, file: file, header: header}

	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "wal: stat")
	}
	if uint64(info.Size()) <= headerSize {
		return &OpenResult{Wal: w}, nil
	}

	last, err := w.readEntryAt(header.LastEntryOffset)
	if err != nil {
		w.Close()
		fresh, err := Create(path)
		if err != nil {
			return nil, err
		}
		return &OpenResult{Wal: fresh}, nil
	}
	if last.Committed {
		return &OpenResult{Wal: w}, nil
	}
	return &OpenResult{Wal: w, PendingCommandText: last.Data, HasPending: true}, nil
}

func readHeader(file *os.File) (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := file.ReadAt(buf, 0); err != nil {
		return Header{}, errors.Wrap(err, "wal: read header")
	}
	return Header{
		LastEntryOffset: binary.LittleEndian.Uint64(buf[0:8]),
		CurrentMaxLsn:   binary.LittleEndian.Uint64(buf[8:16]),
	}, nil
}

func (w *Wal) writeHeader() error {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], w.header.LastEntryOffset)
	binary.LittleEndian.PutUint64(buf[8:16], w.header.CurrentMaxLsn)
	if _, err := w.file.WriteAt(buf, 0); err != nil {
		return errors.Wrap(err, "wal: write header")
	}
	return nil
}

func encodeEntry(e Entry) ([]byte, error) {
	if len(e.Data) > 0xFFFF {
		return nil, errors.Errorf("wal: entry data too large (%d bytes)", len(e.Data))
	}
	buf := make([]byte, entryHeaderSize+len(e.Data))
	binary.LittleEndian.PutUint64(buf[0:8], e.Lsn)
	if e.Committed {
		buf[8] = 1
	}
	binary.LittleEndian.PutUint16(buf[9:11], uint16(len(e.Data)))
	copy(buf[entryHeaderSize:], e.Data)
	return buf, nil
}

func (w *Wal) readEntryAt(offset uint64) (Entry, error) {
	hdr := make([]byte, entryHeaderSize)
	if _, err := w.file.ReadAt(hdr, int64(offset)); err != nil {
		return Entry{}, errors.Wrap(err, "wal: read entry header")
	}
	dataLen := binary.LittleEndian.Uint16(hdr[9:11])
	data := make([]byte, dataLen)
	if dataLen > 0 {
		if _, err := w.file.ReadAt(data, int64(offset)+entryHeaderSize); err != nil {
			return Entry{}, errors.Wrap(err, "wal: read entry data")
		}
	}
	return Entry{
		Lsn:       binary.LittleEndian.Uint64(hdr[0:8]),
		Committed: hdr[8] != 0,
		Data:      string(data),
	}, nil
}

// Append writes text as a new, uncommitted entry and returns its LSN.
// CurrentMaxLsn is bumped strictly monotonically before the write.
func (w *Wal) Append(text string) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.header.CurrentMaxLsn + 1
	entry := Entry{Lsn: lsn, Committed: false, Data: text}
	buf, err := encodeEntry(entry)
	if err != nil {
		return 0, err
	}

	offset, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrap(err, "wal: seek to end")
	}
	if _, err := w.file.Write(buf); err != nil {
		return 0, errors.Wrap(err, "wal: append entry")
	}

	w.header.CurrentMaxLsn = lsn
	w.header.LastEntryOffset = uint64(offset)
	if err := w.writeHeader(); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Commit flips the committed flag of the most recently appended entry
// in place, at last_entry_offset+8.
func (w *Wal) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.WriteAt([]byte{1}, int64(w.header.LastEntryOffset)+8); err != nil {
		return errors.Wrap(err, "wal: commit")
	}
	return nil
}

// CurrentMaxLsn returns the highest LSN assigned so far.
func (w *Wal) CurrentMaxLsn() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.header.CurrentMaxLsn
}

// Truncate atomically replaces the WAL file with a fresh, empty one
// whose header preserves current_max_lsn, via a temp-file rename —
// the TRUNCATEWAL command's effect.
func (w *Wal) Truncate(lsn uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tmpPath := w.path + ".tmp-" + uuid.NewString()
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "wal: create truncate temp file")
	}
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:8], headerSize)
	binary.LittleEndian.PutUint64(buf[8:16], lsn)
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "wal: write truncated header")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "wal: close truncate temp file")
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "wal: rename truncate temp file")
	}

	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "wal: close old file handle")
	}
	file, err := os.OpenFile(w.path, os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(err, "wal: reopen after truncate")
	}
	w.file = file
	w.header = Header{LastEntryOffset: headerSize, CurrentMaxLsn: lsn}
	return nil
}

// Close releases the underlying file handle.
func (w *Wal) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "wal: close")
	}
	return nil
}
