package storagegroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// VersionRegistry is a durable, monotonically increasing per-partition
// version counter, persisted as an empty file named
// "<partition>-<version>-versions" in the partition's system directory
// (mirroring the original SimpleFileVersionController: the version
// number lives in the file name, not its contents, so a crash never
// loses more than the last unflushed increment).
type VersionRegistry struct {
	mu          sync.Mutex
	dir         string
	partitionID int64
	current     int64
}

// OpenVersionRegistry scans dir for the highest existing
// "<partitionID>-<version>-versions" marker and resumes from there, or
// starts at 0 if none is found.
func OpenVersionRegistry(dir string, partitionID int64) (*VersionRegistry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create version registry dir %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read version registry dir %s", dir)
	}

	prefix := fmt.Sprintf("%d-", partitionID)
	var max int64 = -1
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "-versions") {
			continue
		}
		mid := strings.TrimSuffix(strings.TrimPrefix(name, prefix), "-versions")
		v, err := strconv.ParseInt(mid, 10, 64)
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}

	return &VersionRegistry{dir: dir, partitionID: partitionID, current: max + 1}, nil
}

// NextVersion returns the next version number and persists the marker
// for it, removing the previous marker.
func (v *VersionRegistry) NextVersion() (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := v.current
	newMarker := filepath.Join(v.dir, fmt.Sprintf("%d-%d-versions", v.partitionID, next))
	if f, err := os.Create(newMarker); err != nil {
		return 0, errors.Wrapf(err, "persist version marker %s", newMarker)
	} else {
		f.Close()
	}

	if next > 0 {
		oldMarker := filepath.Join(v.dir, fmt.Sprintf("%d-%d-versions", v.partitionID, next-1))
		_ = os.Remove(oldMarker)
	}

	v.current = next + 1
	return next, nil
}

func (v *VersionRegistry) Current() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}
