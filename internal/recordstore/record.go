// Package recordstore implements the append-only record file described
// in the design: every vector+payload pair lives at a fixed byte
// offset for its whole life, mutations either flip an in-place
// tombstone bit or append a brand new record at EOF.
package recordstore

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Offset is a byte offset into the record store file.
type Offset = uint64

// Lsn is the durability clock: a strictly increasing logical sequence
// number assigned to every mutation.
type Lsn = uint64

// Record is one entry in the store. Deleted records keep their bytes.
// The checksum is not a field here: it is stored beside the record on
// disk and covers every field below.
type Record struct {
	Lsn     Lsn
	Deleted bool
	Vector  []float32
	Payload string
}

// recordChecksum hashes lsn, deleted, vector bits and payload bytes —
// explicitly never the checksum field.
func recordChecksum(r *Record) uint64 {
	h := xxhash.New()
	var scratch [9]byte
	binary.LittleEndian.PutUint64(scratch[:8], r.Lsn)
	if r.Deleted {
		scratch[8] = 1
	}
	h.Write(scratch[:])
	for _, f := range r.Vector {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
		h.Write(b[:])
	}
	h.Write([]byte(r.Payload))
	return h.Sum64()
}

// encodedSize is the fixed+variable byte length of r once serialized:
// lsn(8) + deleted(1) + checksum(8) + dim(4) + vector(4*dim) +
// payloadLen(4) + payload bytes.
func encodedSize(vectorLen int, payloadLen int) int {
	return 8 + 1 + 8 + 4 + 4*vectorLen + 4 + payloadLen
}

// encodeRecord serializes r (with checksum already computed) into buf,
// which must be at least encodedSize(len(r.Vector), len(r.Payload))
// bytes long.
func encodeRecord(buf []byte, r *Record, checksum uint64) {
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], r.Lsn)
	off += 8
	if r.Deleted {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	off++
	binary.LittleEndian.PutUint64(buf[off:], checksum)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Vector)))
	off += 4
	for _, f := range r.Vector {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Payload)))
	off += 4
	copy(buf[off:], r.Payload)
}

// decodeRecord parses a record out of buf, returning the record, its
// stored checksum, and the number of bytes consumed.
func decodeRecord(buf []byte) (Record, uint64, int, bool) {
	if len(buf) < 8+1+8+4 {
		return Record{}, 0, 0, false
	}
	off := 0
	var r Record
	r.Lsn = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	r.Deleted = buf[off] != 0
	off++
	checksum := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	dim := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+4*dim+4 {
		return Record{}, 0, 0, false
	}
	r.Vector = make([]float32, dim)
	for i := 0; i < dim; i++ {
		r.Vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	payloadLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+payloadLen {
		return Record{}, 0, 0, false
	}
	r.Payload = string(buf[off : off+payloadLen])
	off += payloadLen
	return r, checksum, off, true
}
