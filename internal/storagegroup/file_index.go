package storagegroup

import (
	"path/filepath"
	"sort"
	"sync"
)

// FileIndex is the sealed-file catalog: every closed FileResource,
// split into the sequential and unsequential spaces, grouped by
// partition id, and ordered by filename version tuple within each
// partition. Partition ordering dominates filename ordering (§6, §8):
// two files in different partitions are never compared by name at all.
type FileIndex struct {
	mu    sync.RWMutex
	seq   map[int64][]*FileResource
	unseq map[int64][]*FileResource
}

func NewFileIndex() *FileIndex {
	return &FileIndex{
		seq:   map[int64][]*FileResource{},
		unseq: map[int64][]*FileResource{},
	}
}

func (idx *FileIndex) buckets(sequential bool) map[int64][]*FileResource {
	if sequential {
		return idx.seq
	}
	return idx.unseq
}

// Add inserts r into its space and partition bucket, keeping the bucket
// ordered by filename version tuple.
func (idx *FileIndex) Add(r *FileResource) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	buckets := idx.buckets(r.Sequential)
	list := buckets[r.PartitionID]

	name, err := ParseFileName(filepath.Base(r.Path))
	if err != nil {
		buckets[r.PartitionID] = append(list, r)
		return
	}

	i := 0
	for ; i < len(list); i++ {
		other, err := ParseFileName(filepath.Base(list[i].Path))
		if err != nil {
			continue
		}
		if CompareFileNames(name, other) < 0 {
			break
		}
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = r
	buckets[r.PartitionID] = list
}

// Remove drops r from its space and partition bucket.
func (idx *FileIndex) Remove(r *FileResource) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	buckets := idx.buckets(r.Sequential)
	list := buckets[r.PartitionID]
	for i, f := range list {
		if f == r {
			buckets[r.PartitionID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Snapshot returns a copy of both spaces, partitions in ascending order
// and each partition's files in filename order, for a query to hold a
// consistent view while it runs.
func (idx *FileIndex) Snapshot() (sequential, unsequential []*FileResource) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return flattenByPartition(idx.seq), flattenByPartition(idx.unseq)
}

func flattenByPartition(buckets map[int64][]*FileResource) []*FileResource {
	partitions := make([]int64, 0, len(buckets))
	for p := range buckets {
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var out []*FileResource
	for _, p := range partitions {
		out = append(out, buckets[p]...)
	}
	return out
}
