package recordstore

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vr_storage")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertSearchRoundTrip(t *testing.T) {
	s := newTestStore(t)

	off, lsn, err := s.Insert([]float32{1, 0, 0}, "a", Raw)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if lsn != 1 {
		t.Errorf("expected lsn 1, got %d", lsn)
	}

	rec, ok, err := s.Search(off)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !ok {
		t.Fatal("expected record to be found")
	}
	if rec.Payload != "a" || len(rec.Vector) != 3 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestInvalidDimensionRejected(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Insert([]float32{1, 2, 3}, "x", Raw); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, _, err := s.Insert([]float32{1, 2}, "y", Raw); err != ErrInvalidVectorDim {
		t.Errorf("expected ErrInvalidVectorDim, got %v", err)
	}
}

func TestDeleteThenSearch(t *testing.T) {
	s := newTestStore(t)
	off, _, _ := s.Insert([]float32{1, 2, 3}, "p", Raw)

	res, err := s.Delete(off, Raw)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if res != Deleted {
		t.Errorf("expected Deleted, got %v", res)
	}

	_, ok, err := s.Search(off)
	if err != nil {
		t.Fatalf("Search after delete failed: %v", err)
	}
	if ok {
		t.Error("expected record to be logically absent after delete")
	}

	res, err = s.Delete(off, Raw)
	if err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if res != NotFound {
		t.Errorf("expected NotFound on double delete, got %v", res)
	}
}

func TestUpdateCreatesNewOffsetAndTwoLsnBumps(t *testing.T) {
	s := newTestStore(t)
	off, _, _ := s.Insert([]float32{1, 2, 3}, "x", Raw)
	initialLsn := s.CurrentMaxLsn()

	outcome, err := s.Update(off, []float32{4, 5, 6}, "y")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !outcome.Updated {
		t.Fatal("expected Updated=true")
	}
	if outcome.NewOffset == off {
		t.Error("expected a new offset distinct from the old one")
	}

	if s.CurrentMaxLsn() != initialLsn+2 {
		t.Errorf("expected exactly two LSN bumps for update (delete + insert), got delta %d", s.CurrentMaxLsn()-initialLsn)
	}

	_, ok, _ := s.Search(off)
	if ok {
		t.Error("old offset should be tombstoned")
	}

	rec, ok, err := s.Search(outcome.NewOffset)
	if err != nil || !ok {
		t.Fatalf("expected new record readable, err=%v ok=%v", err, ok)
	}
	if rec.Payload != "y" {
		t.Errorf("expected payload 'y', got %q", rec.Payload)
	}
}

func TestBatchInsertSingleLsnPerRecord(t *testing.T) {
	s := newTestStore(t)
	records := []Record{
		{Vector: []float32{1, 1}, Payload: "a"},
		{Vector: []float32{2, 2}, Payload: "b"},
		{Vector: []float32{3, 3}, Payload: "c"},
	}
	offsets, err := s.BatchInsert(records)
	if err != nil {
		t.Fatalf("BatchInsert failed: %v", err)
	}
	if len(offsets) != 3 {
		t.Fatalf("expected 3 offsets, got %d", len(offsets))
	}
	if s.CurrentMaxLsn() != 3 {
		t.Errorf("expected current_max_lsn 3, got %d", s.CurrentMaxLsn())
	}

	for i, off := range offsets {
		rec, ok, err := s.Search(off)
		if err != nil || !ok {
			t.Fatalf("Search(offsets[%d]) error=%v ok=%v", i, err, ok)
		}
		wantLsn := Lsn(i + 1)
		if rec.Lsn != wantLsn {
			t.Errorf("expected row %d to carry lsn %d, got %d", i, wantLsn, rec.Lsn)
		}
	}
}

func TestChecksumMismatchDetected(t *testing.T) {
	s := newTestStore(t)
	off, _, _ := s.Insert([]float32{1, 2, 3}, "p", Raw)

	// Corrupt a byte inside the payload region.
	buf := make([]byte, 1)
	buf[0] = 0xFF
	if _, err := s.file.WriteAt(buf, int64(off)+int64(encodedSize(3, 1))-1); err != nil {
		t.Fatalf("corrupt write failed: %v", err)
	}

	if _, _, err := s.Search(off); err == nil {
		t.Error("expected checksum mismatch error after corruption")
	}
}

func TestRebuildHeaderAfterCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vr_storage")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	s.Insert([]float32{1, 2, 3}, "a", Raw)
	s.Insert([]float32{4, 5, 6}, "b", Raw)
	s.Close()

	// Corrupt the header checksum field directly.
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	zero := make([]byte, 8)
	if _, err := f.WriteAt(zero, 12); err != nil {
		t.Fatalf("corrupt header failed: %v", err)
	}
	f.Close()

	reopened, err := Load(path)
	if err != nil {
		t.Fatalf("Load after header corruption failed: %v", err)
	}
	defer reopened.Close()

	if reopened.CurrentMaxLsn() != 2 {
		t.Errorf("expected rebuilt current_max_lsn 2, got %d", reopened.CurrentMaxLsn())
	}
	if reopened.VectorDim() != 3 {
		t.Errorf("expected rebuilt dimension 3, got %d", reopened.VectorDim())
	}
}

func TestScanLiveSkipsDeleted(t *testing.T) {
	s := newTestStore(t)
	offA, _, _ := s.Insert([]float32{1, 0}, "a", Raw)
	s.Insert([]float32{0, 1}, "b", Raw)
	s.Delete(offA, Raw)

	var payloads []string
	err := s.ScanLive(func(offset Offset, rec *Record) error {
		payloads = append(payloads, rec.Payload)
		return nil
	})
	if err != nil {
		t.Fatalf("ScanLive failed: %v", err)
	}
	if len(payloads) != 1 || payloads[0] != "b" {
		t.Errorf("expected only [b], got %v", payloads)
	}
}
