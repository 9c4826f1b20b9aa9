package storagegroup

import "sync"

// PartitionMap holds the currently-open writable Buffer for each
// (partition, sequential-flag) pair. At most one sequential and one
// unsequential buffer may be open per partition at a time
// (get_or_create_buffer in §4.2).
type PartitionMap struct {
	mu    sync.RWMutex
	seq   map[int64]*Buffer
	unseq map[int64]*Buffer
}

func NewPartitionMap() *PartitionMap {
	return &PartitionMap{
		seq:   map[int64]*Buffer{},
		unseq: map[int64]*Buffer{},
	}
}

func (m *PartitionMap) bucket(sequential bool) map[int64]*Buffer {
	if sequential {
		return m.seq
	}
	return m.unseq
}

// Get returns the open buffer for partition/sequential, or nil if none
// is open.
func (m *PartitionMap) Get(partitionID int64, sequential bool) *Buffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bucket(sequential)[partitionID]
}

// Set installs b as the open buffer for its partition/sequential pair.
func (m *PartitionMap) Set(b *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(b.Sequential)[b.PartitionID] = b
}

// Clear removes b as the open buffer for its partition/sequential pair,
// but only if it is still the one installed (guards against a race
// where a newer buffer has already replaced it).
func (m *PartitionMap) Clear(b *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.bucket(b.Sequential)
	if bucket[b.PartitionID] == b {
		delete(bucket, b.PartitionID)
	}
}

// AllOpen returns every currently open buffer across every partition,
// used by sync_close_all.
func (m *PartitionMap) AllOpen() []*Buffer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Buffer, 0, len(m.seq)+len(m.unseq))
	for _, b := range m.seq {
		out = append(out, b)
	}
	for _, b := range m.unseq {
		out = append(out, b)
	}
	return out
}

// Partitions returns the set of partition ids with at least one open
// buffer.
func (m *PartitionMap) Partitions() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[int64]struct{}{}
	for id := range m.seq {
		seen[id] = struct{}{}
	}
	for id := range m.unseq {
		seen[id] = struct{}{}
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}
