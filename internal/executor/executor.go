// Package executor implements the command surface: parsing the
// WAL-journaled command strings, dispatching each verb to the
// collection or database it targets, and reconciling a crashed
// process's uncommitted WAL tail before accepting new work.
//
// Read-only verbs (SEARCH, SEARCHALL, SEARCHSIMILAR, LISTCOLLECTIONS)
// never reach the WAL; only the mutating verbs that a crash could
// leave half-done go through Execute's parse-dispatch-journal path.
// LISTCOLLECTIONS has a Verb constant, but no Execute dispatches it.
package executor

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Verb names one command in the WAL command surface.
type Verb string

const (
	Create          Verb = "CREATE"
	Drop            Verb = "DROP"
	Insert          Verb = "INSERT"
	BulkInsert      Verb = "BULKINSERT"
	Update          Verb = "UPDATE"
	Delete          Verb = "DELETE"
	Reindex         Verb = "REINDEX"
	TruncateWal     Verb = "TRUNCATEWAL"
	ListCollections Verb = "LISTCOLLECTIONS"
)

// Result is the outcome of one Execute call. Only the fields relevant
// to the verb that produced it are populated.
type Result struct {
	Id      uint32
	Ids     []uint32
	Found   bool
	Message string
}

// splitVerb splits "VERB rest of args" on the first space. A verb with
// no args (REINDEX, TRUNCATEWAL) yields an empty args string.
func splitVerb(text string) (verb, args string) {
	i := strings.IndexByte(text, ' ')
	if i < 0 {
		return text, ""
	}
	return text[:i], text[i+1:]
}

// splitTwo splits on the first ';', the separator every multi-field
// arg list in the command surface uses.
func splitTwo(s string) (first, second string, err error) {
	i := strings.IndexByte(s, ';')
	if i < 0 {
		return "", "", errors.Errorf("executor: expected ';'-separated args, got %q", s)
	}
	return s[:i], s[i+1:], nil
}

// parseVector parses a comma-separated decimal float literal, with
// optional surrounding double quotes.
func parseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil, errors.New("executor: empty vector literal")
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, errors.Wrapf(err, "executor: parse vector component %q", p)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// parseRecordId parses a decimal RecordId, trimming surrounding
// whitespace.
func parseRecordId(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "executor: parse record id %q", s)
	}
	return uint32(v), nil
}
