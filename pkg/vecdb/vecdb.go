// Package vecdb is the public facade over the embedded vector database:
// one Database rooted at a directory, with a single command-string
// entry point mirroring the teacher's pkg/veclite.VecLite facade,
// generalized from four hardcoded methods (Insert/Search/Delete/Get) to
// the full CREATE/DROP/INSERT/BULKINSERT/UPDATE/DELETE/REINDEX/
// TRUNCATEWAL/SEARCH/SEARCHALL/SEARCHSIMILAR/LISTCOLLECTIONS surface.
package vecdb

import (
	"github.com/monishSR/vecdb/internal/collection"
	"github.com/monishSR/vecdb/internal/executor"
	"github.com/monishSR/vecdb/internal/metric"
)

// Config mirrors the teacher's veclite.Config shape, trimmed to what
// the command surface actually takes as a constructor argument: just
// the directory. Kept as a struct (rather than a bare string parameter)
// so future knobs (default distance, default HNSW params) have
// somewhere to live without changing Open's signature.
type Config struct {
	// Dir is the database's root directory, created if absent.
	Dir string
}

// DefaultConfig returns a Config rooted at ./vecdb.db. Open uses
// cfg.Dir only when its dir argument is empty.
func DefaultConfig() Config {
	return Config{Dir: "./vecdb.db"}
}

// Result is the outcome of one Execute call, re-exported from the
// executor package so callers never need to import internal/executor
// directly.
type Result = executor.Result

// RecordView is a point-id lookup or full-scan row.
type RecordView = collection.RecordView

// Match is one ANN hit.
type Match = collection.Match

// Distance names a scoring function, re-exported for SearchSimilar
// callers.
type Distance = metric.Distance

const (
	Cosine    = metric.Cosine
	Euclid    = metric.Euclid
	Dot       = metric.Dot
	Manhattan = metric.Manhattan
)

// Database is the embedded vector database: a directory of
// collections, each with its own append-only record store, HNSW index
// and WAL, plus a root WAL journaling collection lifecycle commands.
type Database struct {
	db *executor.Database
}

// Open opens (creating if absent) the database rooted at dir (or at
// cfg.Dir when dir is empty),
// rolling back any uncommitted WAL tail left by a crashed process
// before returning.
func Open(dir string, cfg Config) (*Database, error) {
	if dir == "" {
		dir = cfg.Dir
	}
	d, err := executor.OpenDatabase(dir)
	if err != nil {
		return nil, err
	}
	return &Database{db: d}, nil
}

// Execute runs one command (CREATE or DROP) against the database
// itself. Every other verb belongs to a collection; fetch one with
// Collection and call its own Execute.
func (d *Database) Execute(commandText string) (Result, error) {
	return d.db.Execute(commandText)
}

// ListCollections reports every collection currently registered in the
// database's manifest.
func (d *Database) ListCollections() []string {
	return d.db.ListCollections()
}

// Collection returns the command surface for one collection, opening
// it from disk on first access.
func (d *Database) Collection(name string) (*CollectionHandle, error) {
	ex, err := d.db.Collection(name)
	if err != nil {
		return nil, err
	}
	return &CollectionHandle{ex: ex}, nil
}

// Close releases every open collection and the root WAL.
func (d *Database) Close() error {
	return d.db.Close()
}

// CollectionHandle is the command surface for one collection: the
// mutating verbs go through Execute (journaled, replayed on crash
// recovery); the read-only verbs are direct methods since they never
// reach the WAL.
type CollectionHandle struct {
	ex *executor.CollectionExecutor
}

// Execute runs one mutating command (INSERT, BULKINSERT, UPDATE,
// DELETE, REINDEX, TRUNCATEWAL) against this collection.
func (c *CollectionHandle) Execute(commandText string) (Result, error) {
	return c.ex.Execute(commandText)
}

// Search answers a point-id lookup.
func (c *CollectionHandle) Search(id uint32) (RecordView, bool, error) {
	return c.ex.Search(id)
}

// SearchAll answers a full scan of live records, in ascending id order.
func (c *CollectionHandle) SearchAll() ([]RecordView, error) {
	return c.ex.SearchAll()
}

// SearchSimilar runs an ANN query against the collection's HNSW graph,
// building it first if this is the first query since open.
func (c *CollectionHandle) SearchSimilar(dist Distance, query []float32, top int) ([]Match, error) {
	return c.ex.SearchSimilar(dist, query, top)
}
