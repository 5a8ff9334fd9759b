package executor

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/monishSR/vecdb/internal/collection"
	"github.com/monishSR/vecdb/internal/logging"
	"github.com/monishSR/vecdb/internal/metric"
)

// CollectionExecutor is the command surface for one collection: the
// mutating verbs (journaled, replayed on crash recovery) plus direct
// methods for the read-only ones.
type CollectionExecutor struct {
	mu  sync.Mutex
	col *collection.Collection
	log *slog.Logger
}

// CreateCollectionExecutor makes a brand new collection at dir.
func CreateCollectionExecutor(dir string) (*CollectionExecutor, error) {
	col, err := collection.Create(dir)
	if err != nil {
		return nil, err
	}
	return &CollectionExecutor{col: col, log: logging.Default}, nil
}

// OpenCollectionExecutor reopens an existing collection at dir,
// rolling back an uncommitted WAL tail left by a crash before
// returning.
func OpenCollectionExecutor(dir string) (*CollectionExecutor, error) {
	col, openRes, err := collection.Open(dir)
	if err != nil {
		return nil, err
	}
	ex := &CollectionExecutor{col: col, log: logging.Default}
	if openRes.HasPending {
		ex.log.Warn("rolling back uncommitted WAL tail from a prior crash", "dir", dir, "pending", openRes.PendingCommandText)
		if err := ex.rollbackPending(openRes.PendingCommandText); err != nil {
			return nil, err
		}
	}
	return ex, nil
}

// rollbackPending implements the recovery contract every mutating verb
// shares: the crash happened between the WAL append and this verb's
// own commit, so whatever partial effect reached storage is left as
// is. Rollback only makes the WAL record that fact, as an explicit
// "ROLLBACK <verb> ..." entry, committed immediately (P9: rolling back
// twice leaves the same state as rolling back once, since this never
// touches storage at all).
func (ex *CollectionExecutor) rollbackPending(pendingText string) error {
	if _, err := ex.col.Wal().Append("ROLLBACK " + pendingText); err != nil {
		return err
	}
	return ex.col.Wal().Commit()
}

// Close releases the collection's file handles.
func (ex *CollectionExecutor) Close() error { return ex.col.Close() }

// Execute parses and runs one mutating command, journaling it to the
// collection's WAL before applying it and committing once it succeeds.
func (ex *CollectionExecutor) Execute(commandText string) (Result, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	verb, args := splitVerb(commandText)
	var (
		res Result
		err error
	)
	switch Verb(verb) {
	case Insert:
		res, err = ex.executeInsert(args, commandText)
	case BulkInsert:
		res, err = ex.executeBulkInsert(args, commandText)
	case Update:
		res, err = ex.executeUpdate(args, commandText)
	case Delete:
		res, err = ex.executeDelete(args, commandText)
	case Reindex:
		res, err = ex.executeReindex(commandText)
	case TruncateWal:
		res, err = ex.executeTruncateWal(commandText)
	default:
		return Result{}, errors.Errorf("executor: unknown or non-mutating verb %q", verb)
	}
	if err != nil {
		ex.log.Error("command failed", "verb", verb, "err", err)
		return res, err
	}
	ex.log.Info("command committed", "verb", verb)
	return res, nil
}

func (ex *CollectionExecutor) executeInsert(args, commandText string) (Result, error) {
	vecStr, payload, err := splitTwo(args)
	if err != nil {
		return Result{}, err
	}
	vec, err := parseVector(vecStr)
	if err != nil {
		return Result{}, err
	}

	if _, err := ex.col.Wal().Append(commandText); err != nil {
		return Result{}, err
	}
	id, err := ex.col.Insert(vec, payload)
	if err != nil {
		return Result{}, err
	}
	if err := ex.col.Wal().Commit(); err != nil {
		return Result{}, err
	}
	return Result{Id: id}, nil
}

func (ex *CollectionExecutor) executeBulkInsert(args, commandText string) (Result, error) {
	lines := strings.Split(args, "\n")
	rows := make([]collection.VectorPayload, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		vecStr, payload, err := splitTwo(line)
		if err != nil {
			return Result{}, err
		}
		vec, err := parseVector(vecStr)
		if err != nil {
			return Result{}, err
		}
		rows = append(rows, collection.VectorPayload{Vector: vec, Payload: payload})
	}

	if _, err := ex.col.Wal().Append(commandText); err != nil {
		return Result{}, err
	}
	ids, err := ex.col.BulkInsert(rows)
	if err != nil {
		return Result{}, err
	}
	if err := ex.col.Wal().Commit(); err != nil {
		return Result{}, err
	}
	return Result{Ids: ids}, nil
}

func (ex *CollectionExecutor) executeUpdate(args, commandText string) (Result, error) {
	parts := strings.SplitN(args, ";", 3)
	if len(parts) != 3 {
		return Result{}, errors.Errorf("executor: malformed UPDATE args %q", args)
	}
	id, err := parseRecordId(parts[0])
	if err != nil {
		return Result{}, err
	}

	var vector []float32
	payload := parts[2]
	if parts[1] != "" {
		vector, err = parseVector(parts[1])
		if err != nil {
			return Result{}, err
		}
	}
	if parts[1] == "" || parts[2] == "" {
		current, found, err := ex.col.Search(id)
		if err != nil {
			return Result{}, err
		}
		if !found {
			return Result{Found: false}, nil
		}
		if parts[1] == "" {
			vector = current.Vector
		}
		if parts[2] == "" {
			payload = current.Payload
		}
	}

	if _, err := ex.col.Wal().Append(commandText); err != nil {
		return Result{}, err
	}
	updated, err := ex.col.Update(id, vector, payload)
	if err != nil {
		return Result{}, err
	}
	if err := ex.col.Wal().Commit(); err != nil {
		return Result{}, err
	}
	return Result{Found: updated}, nil
}

func (ex *CollectionExecutor) executeDelete(args, commandText string) (Result, error) {
	id, err := parseRecordId(args)
	if err != nil {
		return Result{}, err
	}

	if _, err := ex.col.Wal().Append(commandText); err != nil {
		return Result{}, err
	}
	found, err := ex.col.Delete(id)
	if err != nil {
		return Result{}, err
	}
	if err := ex.col.Wal().Commit(); err != nil {
		return Result{}, err
	}
	return Result{Found: found}, nil
}

func (ex *CollectionExecutor) executeReindex(commandText string) (Result, error) {
	if _, err := ex.col.Wal().Append(commandText); err != nil {
		return Result{}, err
	}
	if err := ex.col.Reindex(); err != nil {
		return Result{}, err
	}
	if err := ex.col.Wal().Commit(); err != nil {
		return Result{}, err
	}
	return Result{Message: "reindexed"}, nil
}

// executeTruncateWal journals and commits its own entry first, then
// rotates the file — the fresh WAL's header preserves the
// current_max_lsn that the append just bumped to, per the design.
func (ex *CollectionExecutor) executeTruncateWal(commandText string) (Result, error) {
	if _, err := ex.col.Wal().Append(commandText); err != nil {
		return Result{}, err
	}
	if err := ex.col.Wal().Commit(); err != nil {
		return Result{}, err
	}
	if err := ex.col.TruncateWal(); err != nil {
		return Result{}, err
	}
	return Result{Message: "wal truncated"}, nil
}

// Search answers a point-id lookup. Read-only: never journaled.
func (ex *CollectionExecutor) Search(id uint32) (collection.RecordView, bool, error) {
	return ex.col.Search(id)
}

// SearchAll answers a full scan of live records. Read-only: never
// journaled.
func (ex *CollectionExecutor) SearchAll() ([]collection.RecordView, error) {
	return ex.col.SearchAll()
}

// SearchSimilar answers an ANN query. Read-only: never journaled.
func (ex *CollectionExecutor) SearchSimilar(dist metric.Distance, query []float32, top int) ([]collection.Match, error) {
	return ex.col.SearchSimilar(dist, query, top)
}
