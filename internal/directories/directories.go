// Package directories round-robins new file placement across a
// storage group's configured data roots and enforces a minimum
// free-space floor, flipping the shared storagestate holder read-only
// when every root falls below it. Grounded on the directory-scanning
// idiom of a segment group's on-disk mount step.
package directories

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/tsfiledb/storagegroup/internal/storagestate"
)

var ErrDiskInsufficient = errors.New("all configured data roots are below the free-space floor")

// FreeBytesFunc reports free bytes available at path. Abstracted so
// tests can inject synthetic values instead of depending on the host
// filesystem's actual free space.
type FreeBytesFunc func(path string) (uint64, error)

type Rotator struct {
	mu        sync.Mutex
	roots     []string
	next      int
	floor     uint64
	freeBytes FreeBytesFunc
	state     *storagestate.Holder
}

func New(roots []string, floorBytes uint64, freeBytes FreeBytesFunc, state *storagestate.Holder) *Rotator {
	return &Rotator{roots: roots, floor: floorBytes, freeBytes: freeBytes, state: state}
}

// NextRoot returns the next data root in rotation whose free space is
// at or above the configured floor. If none qualify, the shared
// storagestate holder is flipped read-only and ErrDiskInsufficient is
// returned.
func (r *Rotator) NextRoot() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < len(r.roots); i++ {
		idx := (r.next + i) % len(r.roots)
		root := r.roots[idx]

		free, err := r.freeBytes(root)
		if err != nil {
			continue
		}
		if free >= r.floor {
			r.next = (idx + 1) % len(r.roots)
			return root, nil
		}
	}

	r.state.Set(storagestate.StatusReadOnly)
	return "", ErrDiskInsufficient
}

// PartitionDir returns (and creates) the directory for a given storage
// group / time partition pair under a given data root.
func PartitionDir(root, storageGroup string, partitionID int64) (string, error) {
	dir := filepath.Join(root, storageGroup, formatPartition(partitionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create partition dir %s", dir)
	}
	return dir, nil
}

func formatPartition(id int64) string {
	return strconv.FormatInt(id, 10)
}
