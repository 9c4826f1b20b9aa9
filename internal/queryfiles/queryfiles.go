// Package queryfiles tracks, per live query id, the snapshot of files
// registered as in-use, so a concurrent merge or TTL sweep does not
// physically unlink a file a running query still references.
// Structurally modeled on a registry keyed by a generated id with a
// mutex-guarded map, the same pattern used to track running callbacks
// by id.
package queryfiles

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks in-use file paths keyed by query id.
type Registry struct {
	mu      sync.Mutex
	inUse   map[string]map[string]struct{} // queryID -> set of file paths
	fileRef map[string]int                 // file path -> reference count across all queries
}

func New() *Registry {
	return &Registry{
		inUse:   map[string]map[string]struct{}{},
		fileRef: map[string]int{},
	}
}

// NewQueryID mints a fresh query id for a caller about to start a query.
func (r *Registry) NewQueryID() string {
	return uuid.NewString()
}

// AddUsedFilesForQuery registers paths as in use by queryID.
func (r *Registry) AddUsedFilesForQuery(queryID string, paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.inUse[queryID]
	if !ok {
		set = map[string]struct{}{}
		r.inUse[queryID] = set
	}
	for _, p := range paths {
		if _, already := set[p]; already {
			continue
		}
		set[p] = struct{}{}
		r.fileRef[p]++
	}
}

// Release drops every file registered under queryID, called once the
// query completes.
func (r *Registry) Release(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.inUse[queryID]
	if !ok {
		return
	}
	for p := range set {
		r.fileRef[p]--
		if r.fileRef[p] <= 0 {
			delete(r.fileRef, p)
		}
	}
	delete(r.inUse, queryID)
}

// InUse reports whether any live query still references path — merge
// and TTL sweep consult this before unlinking a file.
func (r *Registry) InUse(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fileRef[path] > 0
}
