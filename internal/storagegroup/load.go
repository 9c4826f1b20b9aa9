package storagegroup

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LoadPlanner implements §4.7's load_general: deciding whether an
// externally produced file belongs in the sequential or unsequential
// space, detecting an exact duplicate or a device-range overlap against
// the current sequential list, and rewriting the file's name if
// inserting it into the sequential list would otherwise break filename
// ordering (§4.7.2).
type LoadPlanner struct {
	p *Processor
}

func NewLoadPlanner(p *Processor) *LoadPlanner {
	return &LoadPlanner{p: p}
}

// LoadResult reports how a LoadFile call resolved.
type LoadResult int

const (
	// LoadInserted means resource was placed into the sequential space,
	// possibly under a rewritten name.
	LoadInserted LoadResult = iota
	// LoadInsertedUnsequential means resource's device ranges overlapped
	// an existing sequential file (POS_OVERLAP), so it was placed into
	// the unsequential space instead.
	LoadInsertedUnsequential
	// LoadNoop means a file with the same name already exists
	// (POS_ALREADY_EXIST); resource was not inserted.
	LoadNoop
)

type insertionKind int

const (
	insertFound insertionKind = iota
	insertAlreadyExists
	insertOverlap
)

// insertionOutcome is compareTsFileDevices' result in the original:
// where resource should land relative to the current sequential list.
type insertionOutcome struct {
	kind insertionKind
	// index is the position such that resource sorts after
	// existing[index] and before existing[index+1]; -1 means "before
	// every existing file." Valid only when kind == insertFound.
	index int
}

// LoadFile accepts an external file described by resource (whose
// Path/device ranges must already be populated by the caller reading
// the file's own metadata) into the storage group, per §4.7 step 1-6.
func (lp *LoadPlanner) LoadFile(resource *FileResource) (LoadResult, error) {
	lp.p.insertLock.Lock()
	defer lp.p.insertLock.Unlock()
	lp.p.mergeLock.Lock()
	defer lp.p.mergeLock.Unlock()

	seq, _ := lp.p.fileIndex.Snapshot()

	outcome, err := lp.findInsertionPosition(seq, resource)
	if err != nil {
		return LoadNoop, err
	}

	switch outcome.kind {
	case insertAlreadyExists:
		return LoadNoop, nil

	case insertOverlap:
		resource.Sequential = false
		resource.Closed = true
		lp.p.fileIndex.Add(resource)
		lp.recordNewResource(resource)
		return LoadInsertedUnsequential, nil

	default:
		if err := lp.renameForInsertion(resource, outcome.index, seq); err != nil {
			return LoadNoop, err
		}
		resource.Sequential = true
		resource.Closed = true
		lp.p.fileIndex.Add(resource)
		lp.recordNewResource(resource)
		return LoadInserted, nil
	}
}

// findInsertionPosition implements §4.7 step 2 and §4.7.1: walk the
// sequential list looking for a filename match (POS_ALREADY_EXIST), a
// device-range overlap (POS_OVERLAP), or the slot resource sorts into.
func (lp *LoadPlanner) findInsertionPosition(existing []*FileResource, resource *FileResource) (insertionOutcome, error) {
	base := filepath.Base(resource.Path)
	if _, err := ParseFileName(base); err != nil {
		return insertionOutcome{}, errors.Wrapf(ErrLoadFile, "parse incoming file name %s: %v", resource.Path, err)
	}

	for _, f := range existing {
		if filepath.Base(f.Path) == base {
			return insertionOutcome{kind: insertAlreadyExists}, nil
		}
	}

	for i, f := range existing {
		if resource.PartitionID > f.PartitionID {
			continue
		}
		if i == len(existing)-1 && len(f.Devices()) == 0 {
			continue
		}
		switch compareDeviceRanges(resource, f) {
		case 0:
			return insertionOutcome{kind: insertOverlap}, nil
		case -1:
			return insertionOutcome{kind: insertFound, index: i - 1}, nil
		}
	}
	return insertionOutcome{kind: insertFound, index: len(existing) - 1}, nil
}

// compareDeviceRanges implements §4.7.1: for each device present in
// both candidate and existing, candidate's interval relative to
// existing's is "pre" if it starts after existing ends, "subsequent" if
// it ends before existing starts, else "overlap". Any overlap, or both
// "pre" and "subsequent" appearing across different devices, returns 0.
// Only "pre" returns 1 (candidate newer); only "subsequent" returns -1
// (candidate older). Devices with no counterpart in the other file, or
// no shared device at all, do not constrain the comparison.
func compareDeviceRanges(candidate, existing *FileResource) int {
	var pre, subsequent bool

	for _, device := range candidate.Devices() {
		candidateStart, ok := candidate.StartTime(device)
		if !ok {
			continue
		}
		candidateEnd, _ := candidate.EndTime(device)
		existingStart, ok := existing.StartTime(device)
		if !ok {
			continue
		}
		existingEnd, _ := existing.EndTime(device)

		switch {
		case candidateStart > existingEnd:
			pre = true
		case existingStart > candidateEnd:
			subsequent = true
		default:
			return 0
		}
	}

	switch {
	case pre && subsequent:
		return 0
	case pre:
		return 1
	case subsequent:
		return -1
	default:
		return 1
	}
}

// renameForInsertion implements §4.7.2. insertIndex is the index
// returned by findInsertionPosition: resource sorts after
// existing[insertIndex] (or first, if insertIndex == -1) and before
// existing[insertIndex+1] (or last, if there is none).
func (lp *LoadPlanner) renameForInsertion(resource *FileResource, insertIndex int, existing []*FileResource) error {
	candidateName, err := ParseFileName(filepath.Base(resource.Path))
	if err != nil {
		return errors.Wrapf(ErrLoadFile, "parse incoming file name %s: %v", resource.Path, err)
	}
	currentTime := candidateName.SystemMillis

	var preTime int64
	if insertIndex >= 0 {
		preName, err := ParseFileName(filepath.Base(existing[insertIndex].Path))
		if err != nil {
			return errors.Wrapf(ErrLoadFile, "parse neighbor file name %s: %v", existing[insertIndex].Path, err)
		}
		preTime = preName.SystemMillis
	}

	if insertIndex+1 >= len(existing) {
		if preTime < currentTime {
			return nil
		}
		return lp.mintFreshName(resource)
	}

	subsequentName, err := ParseFileName(filepath.Base(existing[insertIndex+1].Path))
	if err != nil {
		return errors.Wrapf(ErrLoadFile, "parse neighbor file name %s: %v", existing[insertIndex+1].Path, err)
	}
	subsequentTime := subsequentName.SystemMillis

	if preTime < currentTime && currentTime < subsequentTime {
		return nil
	}

	newName := FileName{
		SystemMillis: preTime + (subsequentTime-preTime)/2,
		Version:      subsequentName.Version,
		MergeCount:   0,
		Ext:          fileExtension,
	}
	return lp.applyRename(resource, newName)
}

// mintFreshName gives resource a brand-new name at the head of a fresh
// version, used when it is inserted last but does not sort after its
// only neighbor by system time.
func (lp *LoadPlanner) mintFreshName(resource *FileResource) error {
	reg, err := lp.p.versionRegistries.RegistryFor(resource.PartitionID)
	if err != nil {
		return err
	}
	version, err := reg.NextVersion()
	if err != nil {
		return err
	}
	return lp.applyRename(resource, NewFileName(nowMillis(), version, fileExtension))
}

func (lp *LoadPlanner) applyRename(resource *FileResource, name FileName) error {
	newPath := filepath.Join(filepath.Dir(resource.Path), name.String())
	if newPath == resource.Path {
		return nil
	}
	if err := renameThroughSuffix(resource.Path, newPath, tempSuffix); err != nil {
		return errors.Wrap(err, "rename file for sequential insertion")
	}
	resource.Path = newPath
	if resource.modification != nil {
		oldMods := resource.modification.Path()
		if _, err := os.Stat(oldMods); err == nil {
			if err := os.Rename(oldMods, newPath+".mods"); err != nil {
				return errors.Wrap(err, "rename sidecar for renamed file")
			}
		}
		resource.modification = OpenModificationFile(newPath + ".mods")
	}
	return nil
}

// recordNewResource folds a freshly loaded resource's historical
// versions into the partition version catalog and, if it landed in the
// sequential space, raises the flush watermark for every device it
// covers (§4.7 step 6).
func (lp *LoadPlanner) recordNewResource(resource *FileResource) {
	lp.p.versionCatalog.Record(resource.PartitionID, resource.HistoryVers)
	if !resource.Sequential {
		return
	}
	for _, device := range resource.Devices() {
		if end, ok := resource.EndTime(device); ok {
			lp.p.latestTime.UpdateFlushedTime(device, end)
		}
	}
}

// removeResource unlinks a sealed resource's file and its sidecars and
// drops it from the index, refusing if a live query still references
// it.
func (p *Processor) removeResource(r *FileResource) error {
	if p.queries.InUse(r.Path) {
		return errors.Wrapf(ErrLoadFile, "file %s is in use by a running query", r.Path)
	}

	r.Lock()
	r.Deleted = true
	r.Unlock()

	p.fileIndex.Remove(r)
	return removeFileAndSidecars(r.Path)
}

func removeFileAndSidecars(path string) error {
	for _, p := range []string{path, path + ".mods", path + ".wal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	return nil
}

// RemoveFullyOverlapFiles drops any existing file whose historical
// version set is a subset of resource's — the duplicate-by-version
// reduction recovered from the original (§8 scenario 6).
func (p *Processor) RemoveFullyOverlapFiles(resource *FileResource) error {
	p.mergeLock.Lock()
	defer p.mergeLock.Unlock()

	seq, unseq := p.fileIndex.Snapshot()
	existing := seq
	if !resource.Sequential {
		existing = unseq
	}

	for _, f := range existing {
		if f == resource {
			continue
		}
		if f.HistoryVersSubsetOf(resource) {
			if err := p.removeResource(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteFile removes a single named sealed file outside of TTL/merge,
// used by external sync/load tooling (§8 SUPPLEMENTED FEATURES).
func (p *Processor) DeleteFile(name string) (bool, error) {
	p.mergeLock.Lock()
	defer p.mergeLock.Unlock()

	r := p.findResourceByName(name)
	if r == nil {
		return false, nil
	}
	if err := p.removeResource(r); err != nil {
		return false, err
	}
	return true, nil
}

// MoveFile relocates a single named sealed file (and its sidecars) to
// targetDir, removing it from this storage group's index (§8
// SUPPLEMENTED FEATURES).
func (p *Processor) MoveFile(name, targetDir string) (bool, error) {
	p.mergeLock.Lock()
	defer p.mergeLock.Unlock()

	r := p.findResourceByName(name)
	if r == nil {
		return false, nil
	}
	if p.queries.InUse(r.Path) {
		return false, errors.Wrapf(ErrLoadFile, "file %s is in use by a running query", r.Path)
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return false, errors.Wrapf(err, "create move target %s", targetDir)
	}

	for _, suffix := range []string{"", ".mods", ".wal"} {
		src := r.Path + suffix
		dst := filepath.Join(targetDir, filepath.Base(r.Path)+suffix)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return false, errors.Wrapf(err, "move %s to %s", src, dst)
		}
	}

	p.fileIndex.Remove(r)
	return true, nil
}

func (p *Processor) findResourceByName(name string) *FileResource {
	seq, unseq := p.fileIndex.Snapshot()
	for _, f := range append(seq, unseq...) {
		if filepath.Base(f.Path) == name {
			return f
		}
	}
	return nil
}
