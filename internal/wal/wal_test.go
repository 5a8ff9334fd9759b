package wal

import (
	"path/filepath"
	"testing"
)

func TestLoadOnMissingFileCreatesEmptyConsistentWal(t *testing.T) {
	dir := t.TempDir()
	res, err := Load(filepath.Join(dir, "vr_wal"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	defer res.Wal.Close()

	if res.HasPending {
		t.Fatalf("expected a fresh WAL to have no pending entry")
	}
	if res.Wal.CurrentMaxLsn() != 0 {
		t.Fatalf("expected current_max_lsn to start at 0, got %d", res.Wal.CurrentMaxLsn())
	}
}

func TestAppendThenCommitMarksLastEntryCommitted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vr_wal")
	res, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	w := res.Wal
	defer w.Close()

	lsn, err := w.Append("INSERT 1,0,0;a")
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if lsn != 1 {
		t.Fatalf("expected first LSN to be 1, got %d", lsn)
	}

	entry, err := w.readEntryAt(w.header.LastEntryOffset)
	if err != nil {
		t.Fatalf("readEntryAt error: %v", err)
	}
	if entry.Committed {
		t.Fatalf("expected entry to be uncommitted before Commit()")
	}

	if err := w.Commit(); err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	entry, err = w.readEntryAt(w.header.LastEntryOffset)
	if err != nil {
		t.Fatalf("readEntryAt error: %v", err)
	}
	if !entry.Committed {
		t.Fatalf("expected entry to be committed after Commit()")
	}
}

func TestAppendBumpsLsnMonotonically(t *testing.T) {
	dir := t.TempDir()
	res, err := Load(filepath.Join(dir, "vr_wal"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	w := res.Wal
	defer w.Close()

	data := []string{"Hello, World!", "2World, Hello!2", "third entry"}
	var lastLsn uint64
	for _, d := range data {
		lsn, err := w.Append(d)
		if err != nil {
			t.Fatalf("Append error: %v", err)
		}
		if lsn != lastLsn+1 {
			t.Fatalf("expected strictly monotonic LSNs, got %d after %d", lsn, lastLsn)
		}
		lastLsn = lsn
		if err := w.Commit(); err != nil {
			t.Fatalf("Commit error: %v", err)
		}
	}

	entry, err := w.readEntryAt(w.header.LastEntryOffset)
	if err != nil {
		t.Fatalf("readEntryAt error: %v", err)
	}
	if entry.Data != data[len(data)-1] || entry.Lsn != uint64(len(data)) {
		t.Fatalf("expected last entry to be %q at lsn %d, got %q at lsn %d", data[len(data)-1], len(data), entry.Data, entry.Lsn)
	}
}

func TestLoadReportsPendingUncommittedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vr_wal")

	res, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if _, err := res.Wal.Append("INSERT 4,5,6;y"); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	// Simulate a crash: no Commit() call, close the handle as-is.
	if err := res.Wal.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened, err := Load(path)
	if err != nil {
		t.Fatalf("Load (reopen) error: %v", err)
	}
	defer reopened.Wal.Close()

	if !reopened.HasPending {
		t.Fatalf("expected reopened WAL to report a pending uncommitted entry")
	}
	if reopened.PendingCommandText != "INSERT 4,5,6;y" {
		t.Fatalf("expected pending command text to match the uncommitted entry, got %q", reopened.PendingCommandText)
	}
}

func TestTruncatePreservesCurrentMaxLsn(t *testing.T) {
	dir := t.TempDir()
	res, err := Load(filepath.Join(dir, "vr_wal"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	w := res.Wal
	defer w.Close()

	for i := 0; i < 3; i++ {
		if _, err := w.Append("INSERT 1,2,3;z"); err != nil {
			t.Fatalf("Append error: %v", err)
		}
		if err := w.Commit(); err != nil {
			t.Fatalf("Commit error: %v", err)
		}
	}

	if err := w.Truncate(w.CurrentMaxLsn()); err != nil {
		t.Fatalf("Truncate error: %v", err)
	}
	if w.CurrentMaxLsn() != 3 {
		t.Fatalf("expected truncate to preserve current_max_lsn=3, got %d", w.CurrentMaxLsn())
	}
}
