package recordstore

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// headerSize is the fixed, reserved size of the storage header at
// offset 0, per the design (64 bytes).
const headerSize = 64

// header is the storage header: {current_max_lsn, vector_dim, checksum}.
type header struct {
	CurrentMaxLsn uint64
	VectorDim     uint32
}

func (h *header) checksum() uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.CurrentMaxLsn)
	binary.LittleEndian.PutUint32(buf[8:12], h.VectorDim)
	return xxhash.Sum64(buf[:])
}

func (h *header) encode() [headerSize]byte {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.CurrentMaxLsn)
	binary.LittleEndian.PutUint32(buf[8:12], h.VectorDim)
	binary.LittleEndian.PutUint64(buf[12:20], h.checksum())
	return buf
}

// decodeHeader parses buf (headerSize bytes) and reports whether its
// stored checksum matches the decoded fields.
func decodeHeader(buf []byte) (header, bool) {
	var h header
	if len(buf) < headerSize {
		return h, false
	}
	h.CurrentMaxLsn = binary.LittleEndian.Uint64(buf[0:8])
	h.VectorDim = binary.LittleEndian.Uint32(buf[8:12])
	storedChecksum := binary.LittleEndian.Uint64(buf[12:20])
	return h, storedChecksum == h.checksum()
}
