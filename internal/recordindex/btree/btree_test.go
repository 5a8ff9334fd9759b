package btree

import (
	"path/filepath"
	"testing"

	"github.com/monishSR/vecdb/internal/recordstore"
)

func TestInsertGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vr_index")
	tr, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer tr.Close()

	id := tr.NextId()
	if err := tr.Insert(id, 128); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	off, ok := tr.Get(id)
	if !ok || off != 128 {
		t.Fatalf("Get returned (%d, %v), want (128, true)", off, ok)
	}

	if err := tr.Delete(id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := tr.Get(id); ok {
		t.Error("expected id to be gone after delete")
	}
}

func TestReloadReplaysLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vr_index")
	tr, _ := Create(path)
	tr.Insert(0, 10)
	tr.Insert(1, 20)
	tr.Update(0, 99)
	tr.Delete(1)
	tr.Close()

	reloaded, ok, err := Load(path)
	if err != nil || !ok {
		t.Fatalf("Load failed: ok=%v err=%v", ok, err)
	}
	defer reloaded.Close()

	if off, ok := reloaded.Get(0); !ok || off != 99 {
		t.Errorf("expected id 0 -> 99, got %d ok=%v", off, ok)
	}
	if _, ok := reloaded.Get(1); ok {
		t.Error("expected id 1 to remain deleted after reload")
	}
}

func TestRebuildFromRecordStore(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "vr_storage")
	store, err := recordstore.Create(storePath)
	if err != nil {
		t.Fatalf("Create store failed: %v", err)
	}
	defer store.Close()

	offA, _, _ := store.Insert([]float32{1, 0}, "a", recordstore.Raw)
	store.Insert([]float32{0, 1}, "b", recordstore.Raw)
	store.Delete(offA, recordstore.Raw)

	indexPath := filepath.Join(t.TempDir(), "vr_index")
	tr, err := Rebuild(indexPath, store)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	defer tr.Close()

	if tr.Len() != 1 {
		t.Errorf("expected 1 live entry after rebuild, got %d", tr.Len())
	}
}
