package storagegroup

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// VersionRegistryCatalog lazily creates and caches one VersionRegistry
// per time partition, so each partition gets its own independent,
// file-backed version sequence.
type VersionRegistryCatalog struct {
	mu         sync.Mutex
	systemDir  string
	registries map[int64]*VersionRegistry
}

func NewVersionRegistryCatalog(systemDir string) *VersionRegistryCatalog {
	return &VersionRegistryCatalog{
		systemDir:  systemDir,
		registries: map[int64]*VersionRegistry{},
	}
}

func (c *VersionRegistryCatalog) RegistryFor(partitionID int64) (*VersionRegistry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.registries[partitionID]; ok {
		return r, nil
	}

	dir := filepath.Join(c.systemDir, "versions")
	r, err := OpenVersionRegistry(dir, partitionID)
	if err != nil {
		return nil, errors.Wrapf(err, "open version registry for partition %d", partitionID)
	}
	c.registries[partitionID] = r
	return r, nil
}

// PartitionVersionCatalog tracks, per partition, the set of "direct"
// file versions (versions produced by close, not merge) and the
// running maximum, so the load planner can answer "do we already have
// this file?" without scanning every FileResource's history (§2, §3).
type PartitionVersionCatalog struct {
	mu       sync.Mutex
	direct   map[int64]map[int64]struct{}
	maxByKey map[int64]int64
}

func NewPartitionVersionCatalog() *PartitionVersionCatalog {
	return &PartitionVersionCatalog{
		direct:   map[int64]map[int64]struct{}{},
		maxByKey: map[int64]int64{},
	}
}

// Record folds versions into partitionID's direct-version set and
// running max.
func (c *PartitionVersionCatalog) Record(partitionID int64, versions map[int64]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.direct[partitionID]
	if !ok {
		set = map[int64]struct{}{}
		c.direct[partitionID] = set
	}
	for v := range versions {
		set[v] = struct{}{}
		if v > c.maxByKey[partitionID] {
			c.maxByKey[partitionID] = v
		}
	}
}

// IsKnownSubset reports whether every version in versions is already a
// known direct version of partitionID — a fast pre-check a caller can
// use before falling back to a FileResource-by-FileResource
// HistoryVersSubsetOf comparison.
func (c *PartitionVersionCatalog) IsKnownSubset(partitionID int64, versions map[int64]struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.direct[partitionID]
	if !ok {
		return len(versions) == 0
	}
	for v := range versions {
		if _, known := set[v]; !known {
			return false
		}
	}
	return true
}

// MaxVersion returns the highest direct version recorded for
// partitionID, or -1 if none has been recorded yet.
func (c *PartitionVersionCatalog) MaxVersion(partitionID int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.maxByKey[partitionID]
	if !ok {
		return -1
	}
	return v
}
