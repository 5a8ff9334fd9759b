// Package dbconfig models the top-level database manifest: which
// collections exist, whether each (or the whole database) is
// read-only. It is persisted as vr_config.json at the database root,
// grounded on the original db_config.rs's temp-file-then-rename
// persistence pattern.
package dbconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileName is the manifest's fixed name at the database root.
const FileName = "vr_config.json"

// CollectionMeta is one collection's entry in the manifest.
type CollectionMeta struct {
	Name       string `json:"name"`
	IsReadonly bool   `json:"is_readonly"`
}

// DbConfig is the database-wide manifest, guarded for concurrent
// access from the executor.
type DbConfig struct {
	mu sync.RWMutex

	path        string
	DbReadonly  bool             `json:"db_readonly"`
	Path        string           `json:"path"`
	Collections []CollectionMeta `json:"collections"`
}

// ErrCollectionExists is returned by AddCollection when the name is
// already present.
var ErrCollectionExists = errors.New("dbconfig: collection already exists")

// ErrCollectionNotFound is returned by RemoveCollection and
// SetCollectionReadonly when the name is absent.
var ErrCollectionNotFound = errors.New("dbconfig: collection not found")

// New returns a fresh, empty manifest rooted at dbPath.
func New(dbPath string) *DbConfig {
	return &DbConfig{path: filepath.Join(dbPath, FileName), Path: dbPath}
}

// Create writes a fresh manifest to dbPath, failing if one already
// exists there.
func Create(dbPath string) (*DbConfig, error) {
	cfg := New(dbPath)
	f, err := os.OpenFile(cfg.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "dbconfig: create")
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return nil, errors.Wrap(err, "dbconfig: encode")
	}
	return cfg, nil
}

// Load reads the manifest at dbPath, or creates a fresh one if it does
// not exist yet.
func Load(dbPath string) (*DbConfig, error) {
	path := filepath.Join(dbPath, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Create(dbPath)
	}
	if err != nil {
		return nil, errors.Wrap(err, "dbconfig: read")
	}
	var cfg DbConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "dbconfig: parse")
	}
	cfg.path = path
	return &cfg, nil
}

// persist atomically rewrites the manifest via a temp file + rename,
// mirroring the pattern used throughout the storage layer.
func (c *DbConfig) persist() error {
	tmp := c.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "dbconfig: create temp file")
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "dbconfig: encode")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "dbconfig: close temp file")
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "dbconfig: rename temp file")
	}
	return nil
}

// CollectionExists reports whether name is a registered collection.
func (c *DbConfig) CollectionExists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexOf(name) >= 0
}

func (c *DbConfig) indexOf(name string) int {
	for i, col := range c.Collections {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// AddCollection registers name and persists the manifest.
func (c *DbConfig) AddCollection(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(name) >= 0 {
		return errors.Wrapf(ErrCollectionExists, "%q", name)
	}
	c.Collections = append(c.Collections, CollectionMeta{Name: name})
	return c.persist()
}

// RemoveCollection unregisters name and persists the manifest.
func (c *DbConfig) RemoveCollection(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(name)
	if i < 0 {
		return errors.Wrapf(ErrCollectionNotFound, "%q", name)
	}
	c.Collections = append(c.Collections[:i], c.Collections[i+1:]...)
	return c.persist()
}

// SetCollectionReadonly marks name as read-only and persists the
// manifest.
func (c *DbConfig) SetCollectionReadonly(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(name)
	if i < 0 {
		return errors.Wrapf(ErrCollectionNotFound, "%q", name)
	}
	c.Collections[i].IsReadonly = true
	return c.persist()
}

// IsCollectionReadonly reports whether name is marked read-only. A
// name that is not registered is reported as not read-only.
func (c *DbConfig) IsCollectionReadonly(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexOf(name)
	if i < 0 {
		return false
	}
	return c.Collections[i].IsReadonly
}

// SetReadonly marks the whole database read-only and persists the
// manifest.
func (c *DbConfig) SetReadonly() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DbReadonly = true
	return c.persist()
}

// ListCollections returns every registered collection name, in
// manifest order.
func (c *DbConfig) ListCollections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.Collections))
	for i, col := range c.Collections {
		names[i] = col.Name
	}
	return names
}

// Readonly reports whether the database as a whole is read-only.
func (c *DbConfig) Readonly() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DbReadonly
}
