package vecdb

import (
	"testing"
)

func TestOpenCreateInsertAndSearchSimilarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()

	if _, err := db.Execute("CREATE movies"); err != nil {
		t.Fatalf("CREATE error: %v", err)
	}

	col, err := db.Collection("movies")
	if err != nil {
		t.Fatalf("Collection error: %v", err)
	}

	resA, err := col.Execute("INSERT 1,0,0;a")
	if err != nil {
		t.Fatalf("INSERT error: %v", err)
	}
	if _, err := col.Execute("INSERT 0,1,0;b"); err != nil {
		t.Fatalf("INSERT b error: %v", err)
	}

	matches, err := col.SearchSimilar(Cosine, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("SearchSimilar error: %v", err)
	}
	if len(matches) != 1 || matches[0].Id != resA.Id {
		t.Fatalf("expected top match to be %d, got %+v", resA.Id, matches)
	}

	names := db.ListCollections()
	if len(names) != 1 || names[0] != "movies" {
		t.Fatalf("expected ListCollections to report [movies], got %v", names)
	}
}

func TestReopenSurvivesAcrossClose(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	if _, err := db.Execute("CREATE notes"); err != nil {
		t.Fatalf("CREATE error: %v", err)
	}
	col, err := db.Collection("notes")
	if err != nil {
		t.Fatalf("Collection error: %v", err)
	}
	if _, err := col.Execute("INSERT 1,2,3;hello"); err != nil {
		t.Fatalf("INSERT error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	reopened, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	names := reopened.ListCollections()
	if len(names) != 1 || names[0] != "notes" {
		t.Fatalf("expected notes to survive reopen, got %v", names)
	}

	reopenedCol, err := reopened.Collection("notes")
	if err != nil {
		t.Fatalf("Collection after reopen error: %v", err)
	}
	all, err := reopenedCol.SearchAll()
	if err != nil {
		t.Fatalf("SearchAll error: %v", err)
	}
	if len(all) != 1 || all[0].Payload != "hello" {
		t.Fatalf("expected the inserted record to survive reopen, got %+v", all)
	}
}
