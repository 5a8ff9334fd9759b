package executor

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/monishSR/vecdb/internal/collection"
	"github.com/monishSR/vecdb/internal/dbconfig"
	"github.com/monishSR/vecdb/internal/logging"
	"github.com/monishSR/vecdb/internal/wal"
)

// dbWalFileName names the database-root WAL, journaling CREATE/DROP
// the same way each collection's own vr_wal journals its commands —
// two distinct files with the same name, one per directory.
const dbWalFileName = "vr_wal"

// Database is the top-level command surface: CREATE, DROP,
// LISTCOLLECTIONS against the manifest, and a registry of lazily
// opened per-collection executors for everything else.
type Database struct {
	mu   sync.Mutex
	dir  string
	cfg  *dbconfig.DbConfig
	wal  *wal.Wal
	cols map[string]*CollectionExecutor
	log  *slog.Logger
}

// OpenDatabase opens (creating if absent) the database rooted at dir,
// rolling back an uncommitted root-WAL tail left by a crashed CREATE
// or DROP before returning.
func OpenDatabase(dir string) (*Database, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "executor: create database directory")
	}
	cfg, err := dbconfig.Load(dir)
	if err != nil {
		return nil, err
	}
	openRes, err := wal.Load(filepath.Join(dir, dbWalFileName))
	if err != nil {
		return nil, err
	}

	db := &Database{dir: dir, cfg: cfg, wal: openRes.Wal, cols: make(map[string]*CollectionExecutor), log: logging.Default}
	if openRes.HasPending {
		db.log.Warn("rolling back uncommitted root WAL tail from a prior crash", "dir", dir, "pending", openRes.PendingCommandText)
		if _, err := db.wal.Append("ROLLBACK " + openRes.PendingCommandText); err != nil {
			return nil, err
		}
		if err := db.wal.Commit(); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Close releases every open collection and the root WAL.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var firstErr error
	for _, ex := range db.cols {
		if err := ex.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Execute parses and runs CREATE or DROP.
func (db *Database) Execute(commandText string) (Result, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	verb, args := splitVerb(commandText)
	name := strings.TrimSpace(args)
	var (
		res Result
		err error
	)
	switch Verb(verb) {
	case Create:
		res, err = db.executeCreate(name, commandText)
	case Drop:
		res, err = db.executeDrop(name, commandText)
	default:
		return Result{}, errors.Errorf("executor: unknown or non-mutating database verb %q", verb)
	}
	if err != nil {
		db.log.Error("command failed", "verb", verb, "collection", name, "err", err)
		return res, err
	}
	db.log.Info("command committed", "verb", verb, "collection", name)
	return res, nil
}

func (db *Database) executeCreate(name, commandText string) (Result, error) {
	if db.cfg.CollectionExists(name) {
		return Result{}, errors.Errorf("executor: collection %q already exists", name)
	}

	if _, err := db.wal.Append(commandText); err != nil {
		return Result{}, err
	}
	col, err := collection.Create(filepath.Join(db.dir, name))
	if err != nil {
		return Result{}, err
	}
	if err := db.cfg.AddCollection(name); err != nil {
		col.Close()
		return Result{}, err
	}
	if err := db.wal.Commit(); err != nil {
		return Result{}, err
	}

	db.cols[name] = &CollectionExecutor{col: col, log: db.log}
	return Result{Message: "created " + name}, nil
}

func (db *Database) executeDrop(name, commandText string) (Result, error) {
	if !db.cfg.CollectionExists(name) {
		return Result{Found: false}, nil
	}

	if _, err := db.wal.Append(commandText); err != nil {
		return Result{}, err
	}
	if ex, ok := db.cols[name]; ok {
		ex.Close()
		delete(db.cols, name)
	}
	if err := db.cfg.RemoveCollection(name); err != nil {
		return Result{}, err
	}
	if err := os.RemoveAll(filepath.Join(db.dir, name)); err != nil {
		return Result{}, err
	}
	if err := db.wal.Commit(); err != nil {
		return Result{}, err
	}
	return Result{Found: true}, nil
}

// ListCollections is read-only: never journaled.
func (db *Database) ListCollections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.cfg.ListCollections()
}

// Collection returns the executor for name, opening it from disk on
// first access.
func (db *Database) Collection(name string) (*CollectionExecutor, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if ex, ok := db.cols[name]; ok {
		return ex, nil
	}
	if !db.cfg.CollectionExists(name) {
		return nil, errors.Errorf("executor: collection %q does not exist", name)
	}
	ex, err := OpenCollectionExecutor(filepath.Join(db.dir, name))
	if err != nil {
		return nil, err
	}
	db.cols[name] = ex
	return ex, nil
}
