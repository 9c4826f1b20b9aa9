package storagegroup

import "github.com/tsfiledb/storagegroup/internal/columnbuffer"

// TimeFilter narrows a query to a time range without the coordinator
// needing to know the shape of the caller's predicate language.
// RangeTimeFilter is the concrete implementation used by callers that
// only need a plain [start, end] window.
type TimeFilter interface {
	SatisfyStartEndTime(start, end int64) bool
}

// RangeTimeFilter accepts any file whose own [start, end] range
// intersects [Start, End].
type RangeTimeFilter struct {
	Start, End int64
}

func (f RangeTimeFilter) SatisfyStartEndTime(start, end int64) bool {
	return start <= f.End && f.Start <= end
}

// QuerySnapshot is the consistent view of files a query works against,
// taken under mergeLock and closeQueryLock (both read) so a concurrent
// merge end action or buffer close cannot swap files out from under it
// while it is built (§4.8). Only resources in the FileIndex are
// considered. Sealed resources are held by reference; an indexed
// resource not marked closed is captured as a HybridResult pairing it
// with an in-memory row snapshot from its partition's open Buffer. A
// buffer's own resource enters the FileIndex only when the buffer is
// sealed, so rows still held in an open buffer are not part of the
// snapshot.
type QuerySnapshot struct {
	QueryID      string
	Device       string
	Sequential   []*FileResource
	Unsequential []*FileResource
	Hybrids      []HybridResult
}

// HybridResult pairs an unsealed FileResource with the rows its
// attached Buffer held at snapshot time (§4.8: "query the attached
// Buffer for (in-memory chunks, on-disk chunk metadata) and construct a
// hybrid FileResource wrapping both").
type HybridResult struct {
	Resource   *FileResource
	MemoryRows []columnbuffer.Row
}

// Query builds a QuerySnapshot for device within the window described
// by filter, registering every sealed file it references with the
// query-files collaborator so a concurrent merge or TTL sweep will not
// unlink them until Release is called. measurement is not used to
// filter which files are selected — a file's range maps are per-device,
// not per-measurement — but is threaded through for callers that narrow
// the row-level read once they have the snapshot.
func (p *Processor) Query(device, measurement string, filter TimeFilter) QuerySnapshot {
	p.mergeLock.RLock()
	defer p.mergeLock.RUnlock()
	p.closeQueryLock.RLock()
	defer p.closeQueryLock.RUnlock()

	seq, unseq := p.fileIndex.Snapshot()

	snap := QuerySnapshot{QueryID: p.queries.NewQueryID(), Device: device}
	var paths []string

	for _, r := range append(append([]*FileResource(nil), seq...), unseq...) {
		if !p.isSatisfied(r, device, filter) {
			continue
		}

		r.Lock()
		closed := r.Closed
		r.Unlock()

		if closed {
			paths = append(paths, r.Path)
			if r.Sequential {
				snap.Sequential = append(snap.Sequential, r)
			} else {
				snap.Unsequential = append(snap.Unsequential, r)
			}
			continue
		}

		if buf := p.partitionMap.Get(r.PartitionID, r.Sequential); buf != nil {
			snap.Hybrids = append(snap.Hybrids, HybridResult{
				Resource:   r,
				MemoryRows: buf.store.Query(device),
			})
		}
	}

	p.queries.AddUsedFilesForQuery(snap.QueryID, paths)
	return snap
}

// isSatisfied implements §4.8's per-file predicate: reject a resource
// that has no data for device at all, reject one that TTL has entirely
// aged out, and otherwise delegate to the caller's time filter.
func (p *Processor) isSatisfied(r *FileResource, device string, filter TimeFilter) bool {
	start, ok := r.StartTime(device)
	if !ok {
		return false
	}
	end, _ := r.EndTime(device)

	if p.cfg.dataTTLMillis > 0 {
		cutoff := nowMillis() - p.cfg.dataTTLMillis
		if end < cutoff {
			return false
		}
	}

	if filter != nil && !filter.SatisfyStartEndTime(start, end) {
		return false
	}
	return true
}

// Release drops a query's file references, called once a query
// finishes reading.
func (p *Processor) Release(snap QuerySnapshot) {
	p.queries.Release(snap.QueryID)
}
