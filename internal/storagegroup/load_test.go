package storagegroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileInsertsNonOverlapping(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))
	lp := NewLoadPlanner(p)

	path := filepath.Join(t.TempDir(), NewFileName(1, 1, fileExtension).String())
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	resource := NewFileResource(path, 0, true)
	resource.UpdateStartTime("d1", 10)
	resource.UpdateEndTime("d1", 20)
	resource.modification = OpenModificationFile(path + ".mods")

	result, err := lp.LoadFile(resource)
	require.NoError(t, err)
	require.Equal(t, LoadInserted, result)

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)
}

func TestLoadFileAlreadyPresentByNameIsNoop(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))
	lp := NewLoadPlanner(p)

	dir := t.TempDir()
	existingPath := filepath.Join(dir, NewFileName(1, 1, fileExtension).String())
	require.NoError(t, os.WriteFile(existingPath, []byte("data"), 0o644))
	existing := NewFileResource(existingPath, 0, true)
	existing.UpdateStartTime("d1", 10)
	existing.UpdateEndTime("d1", 30)
	existing.modification = OpenModificationFile(existingPath + ".mods")
	p.fileIndex.Add(existing)

	incoming := NewFileResource(existingPath, 0, true)
	incoming.UpdateStartTime("d1", 10)
	incoming.UpdateEndTime("d1", 30)
	incoming.modification = OpenModificationFile(existingPath + ".mods")

	result, err := lp.LoadFile(incoming)
	require.NoError(t, err)
	require.Equal(t, LoadNoop, result)

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1, "a filename match must not add a second entry")
}

func TestLoadFilePlacesOverlapIntoUnsequential(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))
	lp := NewLoadPlanner(p)

	existingPath := filepath.Join(t.TempDir(), NewFileName(1, 1, fileExtension).String())
	require.NoError(t, os.WriteFile(existingPath, []byte("data"), 0o644))
	existing := NewFileResource(existingPath, 0, true)
	existing.UpdateStartTime("d1", 10)
	existing.UpdateEndTime("d1", 30)
	existing.modification = OpenModificationFile(existingPath + ".mods")
	p.fileIndex.Add(existing)

	incomingPath := filepath.Join(t.TempDir(), NewFileName(2, 1, fileExtension).String())
	require.NoError(t, os.WriteFile(incomingPath, []byte("data"), 0o644))
	incoming := NewFileResource(incomingPath, 0, true)
	incoming.UpdateStartTime("d1", 20)
	incoming.UpdateEndTime("d1", 40)
	incoming.modification = OpenModificationFile(incomingPath + ".mods")

	result, err := lp.LoadFile(incoming)
	require.NoError(t, err)
	require.Equal(t, LoadInsertedUnsequential, result)

	seq, unseq := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)
	require.Len(t, unseq, 1)
	require.Equal(t, incoming, unseq[0])
}

func TestLoadFileKeepsNameWhenOrderingHolds(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))
	lp := NewLoadPlanner(p)
	dir := t.TempDir()

	a := addSequentialNeighbor(t, p, dir, 100, 1, "d1", 50, 150)
	c := addSequentialNeighbor(t, p, dir, 300, 2, "d1", 500, 600)
	_ = a
	_ = c

	bPath := filepath.Join(dir, NewFileName(250, 5, fileExtension).String())
	require.NoError(t, os.WriteFile(bPath, []byte("data"), 0o644))
	b := NewFileResource(bPath, 0, true)
	b.UpdateStartTime("d1", 200)
	b.UpdateEndTime("d1", 250)
	b.modification = OpenModificationFile(bPath + ".mods")

	result, err := lp.LoadFile(b)
	require.NoError(t, err)
	require.Equal(t, LoadInserted, result)
	require.Equal(t, "250-5-0."+fileExtension, filepath.Base(b.Path),
		"100 < 250 < 300 holds, so the name must be kept as-is")
}

func TestLoadFileRenamesWhenOrderingBroken(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))
	lp := NewLoadPlanner(p)
	dir := t.TempDir()

	addSequentialNeighbor(t, p, dir, 100, 1, "d1", 50, 150)
	addSequentialNeighbor(t, p, dir, 300, 2, "d1", 500, 600)

	bPath := filepath.Join(dir, NewFileName(400, 5, fileExtension).String())
	require.NoError(t, os.WriteFile(bPath, []byte("data"), 0o644))
	b := NewFileResource(bPath, 0, true)
	b.UpdateStartTime("d1", 200)
	b.UpdateEndTime("d1", 250)
	b.modification = OpenModificationFile(bPath + ".mods")

	result, err := lp.LoadFile(b)
	require.NoError(t, err)
	require.Equal(t, LoadInserted, result)
	require.Equal(t, "200-2-0."+fileExtension, filepath.Base(b.Path),
		"400 does not sort before C's 300, so B takes the (100+300)/2 midpoint name under C's version")

	_, err = os.Stat(filepath.Join(dir, "400-5-0."+fileExtension))
	require.True(t, os.IsNotExist(err), "the old name must no longer exist once renamed")
}

// addSequentialNeighbor creates a sealed sequential FileResource named
// <millis>-<version>-0.<ext> covering device d's [start,end] range and
// adds it to p's file index, for use as a fixed neighbor in §4.7.2
// rename tests.
func addSequentialNeighbor(t *testing.T, p *Processor, dir string, millis, version int64, device string, start, end int64) *FileResource {
	t.Helper()
	path := filepath.Join(dir, NewFileName(millis, version, fileExtension).String())
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	r := NewFileResource(path, 0, true)
	r.UpdateStartTime(device, start)
	r.UpdateEndTime(device, end)
	r.HistoryVers[version] = struct{}{}
	r.modification = OpenModificationFile(path + ".mods")
	r.Closed = true
	p.fileIndex.Add(r)
	return r
}

func TestRemoveFullyOverlapFiles(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))

	dir := t.TempDir()
	subsetPath := filepath.Join(dir, NewFileName(1, 1, fileExtension).String())
	require.NoError(t, os.WriteFile(subsetPath, []byte("data"), 0o644))
	subset := NewFileResource(subsetPath, 0, true)
	subset.UpdateStartTime("d1", 15)
	subset.UpdateEndTime("d1", 20)
	subset.HistoryVers = map[int64]struct{}{1: {}, 2: {}}
	subset.modification = OpenModificationFile(subsetPath + ".mods")
	p.fileIndex.Add(subset)

	supersetPath := filepath.Join(dir, NewFileName(2, 3, fileExtension).String())
	require.NoError(t, os.WriteFile(supersetPath, []byte("data"), 0o644))
	superset := NewFileResource(supersetPath, 0, true)
	superset.UpdateStartTime("d1", 0)
	superset.UpdateEndTime("d1", 100)
	superset.HistoryVers = map[int64]struct{}{1: {}, 2: {}, 3: {}}
	superset.modification = OpenModificationFile(supersetPath + ".mods")
	p.fileIndex.Add(superset)

	require.NoError(t, p.RemoveFullyOverlapFiles(superset))

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)
	require.Equal(t, superset, seq[0])
}

func TestRemoveFullyOverlapFilesKeepsDisjointVersions(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))

	dir := t.TempDir()
	otherPath := filepath.Join(dir, NewFileName(1, 1, fileExtension).String())
	require.NoError(t, os.WriteFile(otherPath, []byte("data"), 0o644))
	other := NewFileResource(otherPath, 0, true)
	other.UpdateStartTime("d1", 15)
	other.UpdateEndTime("d1", 20)
	other.HistoryVers = map[int64]struct{}{1: {}}
	other.modification = OpenModificationFile(otherPath + ".mods")
	p.fileIndex.Add(other)

	newPath := filepath.Join(dir, NewFileName(2, 2, fileExtension).String())
	require.NoError(t, os.WriteFile(newPath, []byte("data"), 0o644))
	incoming := NewFileResource(newPath, 0, true)
	incoming.UpdateStartTime("d1", 0)
	incoming.UpdateEndTime("d1", 100)
	incoming.HistoryVers = map[int64]struct{}{2: {}}
	incoming.modification = OpenModificationFile(newPath + ".mods")
	p.fileIndex.Add(incoming)

	require.NoError(t, p.RemoveFullyOverlapFiles(incoming))

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 2, "version {1} is not a historical version of the incoming file, so it must survive")
}
