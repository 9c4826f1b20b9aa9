package storagegroup

import "sync"

// FileResource describes one on-disk data file: its path, whether it
// belongs to the sequential or unsequential space, and the per-device
// [start, end] time range it covers. Readers consult the range maps to
// decide whether a file can satisfy a query without opening it.
type FileResource struct {
	Path         string
	PartitionID  int64
	Sequential   bool
	Closed       bool
	Deleted      bool
	Merging      bool               // excluded from TTL eviction while a merge has claimed this file (§4.4, §4.6)
	HistoryVers  map[int64]struct{} // historical version numbers folded into this file by merges
	modification *ModificationFile

	mu         sync.Mutex // writeQueryLock: serializes readers against an in-progress delete/merge rewrite
	startTimes map[string]int64
	endTimes   map[string]int64
}

func NewFileResource(path string, partitionID int64, sequential bool) *FileResource {
	return &FileResource{
		Path:        path,
		PartitionID: partitionID,
		Sequential:  sequential,
		HistoryVers: map[int64]struct{}{},
		startTimes:  map[string]int64{},
		endTimes:    map[string]int64{},
	}
}

// UpdateStartTime records device as starting at t if no earlier start is
// already known.
func (r *FileResource) UpdateStartTime(device string, t int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.startTimes[device]; !ok || t < cur {
		r.startTimes[device] = t
	}
}

// UpdateEndTime records device as ending at t if it extends the known
// end time.
func (r *FileResource) UpdateEndTime(device string, t int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.endTimes[device]; !ok || t > cur {
		r.endTimes[device] = t
	}
}

func (r *FileResource) StartTime(device string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.startTimes[device]
	return t, ok
}

func (r *FileResource) EndTime(device string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.endTimes[device]
	return t, ok
}

// Devices returns the set of devices this resource has any data for.
func (r *FileResource) Devices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.startTimes))
	for d := range r.startTimes {
		out = append(out, d)
	}
	return out
}

// Overlaps reports whether this resource's [start,end] range for device
// intersects [start,end].
func (r *FileResource) Overlaps(device string, start, end int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.startTimes[device]
	if !ok {
		return false
	}
	e := r.endTimes[device]
	return s <= end && start <= e
}

// Lock/Unlock expose writeQueryLock directly for callers (query
// snapshot, merge end-action) that must hold it across several calls.
func (r *FileResource) Lock()   { r.mu.Lock() }
func (r *FileResource) Unlock() { r.mu.Unlock() }

// HistoryVersSubsetOf reports whether every historical version folded
// into r is also present in other's historical version set — the
// duplicate-by-version test used by RemoveFullyOverlapFiles (§8 scenario
// 6: "Sequential list has file with historical versions {1,2,3}. Load a
// file with historical versions {1,2}... the second is discarded").
func (r *FileResource) HistoryVersSubsetOf(other *FileResource) bool {
	if len(r.HistoryVers) == 0 {
		return false
	}
	for v := range r.HistoryVers {
		if _, ok := other.HistoryVers[v]; !ok {
			return false
		}
	}
	return true
}
