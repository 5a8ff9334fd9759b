package hnsw

import (
	"encoding/json"
	"os"

	"github.com/monishSR/vecdb/internal/metric"
	"github.com/pkg/errors"
)

// HnswConfig is the user-facing subset of graph configuration: the
// knobs a caller supplies when opening a fresh collection.
type HnswConfig struct {
	M                  int `json:"m"`
	EfConstruct        int `json:"ef_construct"`
	MaxIndexingThreads int `json:"max_indexing_threads"`
}

// HnswGraphConfig is the full, persisted sidecar: the user-facing
// fields plus everything derived or learned during build.
type HnswGraphConfig struct {
	M                  int             `json:"m"`
	M0                 int             `json:"m0"`
	EfConstruct        int             `json:"ef_construct"`
	Ef                 int             `json:"ef"`
	Distance           metric.Distance `json:"distance"`
	MaxIndexingThreads int             `json:"max_indexing_threads"`
	IndexedVectorCount int             `json:"indexed_vector_count"`
}

// NewGraphConfig derives the persisted config from the user-facing
// one: m0 = 2m, ef defaults to ef_construct, per §4.4.
func NewGraphConfig(cfg HnswConfig, dist metric.Distance, indexedVectorCount int) (HnswGraphConfig, error) {
	if cfg.EfConstruct < 4 {
		return HnswGraphConfig{}, errors.Errorf("hnsw: ef_construct must be >= 4, got %d", cfg.EfConstruct)
	}
	if cfg.M < 1 {
		return HnswGraphConfig{}, errors.Errorf("hnsw: m must be >= 1, got %d", cfg.M)
	}
	return HnswGraphConfig{
		M:                  cfg.M,
		M0:                 2 * cfg.M,
		EfConstruct:        cfg.EfConstruct,
		Ef:                 cfg.EfConstruct,
		Distance:           dist,
		MaxIndexingThreads: cfg.MaxIndexingThreads,
		IndexedVectorCount: indexedVectorCount,
	}, nil
}

// LoadGraphConfig reads hnsw_config.json from path. If the file is
// missing entirely the caller is expected to rebuild it from the
// vector count (§4.9); a present-but-corrupt file is still an error.
func LoadGraphConfig(path string) (HnswGraphConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HnswGraphConfig{}, errors.Wrap(err, "hnsw: read config")
	}
	var cfg HnswGraphConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return HnswGraphConfig{}, errors.Wrap(err, "hnsw: parse config")
	}
	return cfg, nil
}

// SaveGraphConfig writes cfg to path as pretty-printed JSON.
func SaveGraphConfig(path string, cfg HnswGraphConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "hnsw: marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "hnsw: write config")
	}
	return nil
}
