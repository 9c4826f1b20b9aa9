package storagegroup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/tsfiledb/storagegroup/internal/cyclemanager"
)

// MergeCoordinator drives the merge lifecycle (§4.4): selecting
// unsequential files to fold into the sequential space, rewriting the
// affected sequential files' device ranges, migrating modification
// records through a shared merge.mods file, and cleaning up the merge
// log. KickOff and EndAction each hold mergeLock, so no delete can
// rewrite a file while either runs; a delete that arrives between them
// is mirrored into merge.mods so the end action's sidecar swap
// preserves it.
type MergeCoordinator struct {
	p        *Processor
	cycles   *cyclemanager.CycleManager
	mergeLog string
	modsPath string

	// mods is non-nil only between KickOff and the completion of
	// EndAction: the window during which a concurrent delete must be
	// mirrored into it. Guarded by p.mergeLock.
	mods *ModificationFile
}

func NewMergeCoordinator(p *Processor) *MergeCoordinator {
	return &MergeCoordinator{
		p:        p,
		cycles:   cyclemanager.New(p.logger, 30*time.Second, 1),
		mergeLog: filepath.Join(p.SystemDir, "merge.log"),
		modsPath: filepath.Join(p.SystemDir, "merge.mods"),
	}
}

// Start begins the background merge-kickoff cycle; a no-op if
// continueMergeAfterReboot is disabled.
func (m *MergeCoordinator) Start() {
	if !m.p.cfg.continueMergeAfterReboot {
		return
	}
	m.cycles.Register(func(shouldBreak cyclemanager.ShouldBreakFunc) bool {
		err := m.RunOnce(context.Background())
		return err == nil
	})
	m.cycles.Start()
}

func (m *MergeCoordinator) Stop(ctx context.Context) {
	_ = m.cycles.StopAndWait(ctx)
}

// mergingModification returns the in-flight merge's shared modification
// file, or nil if no merge is currently in its kickoff-to-end-action
// window. Callers must already hold p.mergeLock (§5: "the
// merging-modification file is mutated by delete and by merge
// end-action, both under insertLock.write + mergeLock.write").
func (m *MergeCoordinator) mergingModification() *ModificationFile {
	return m.mods
}

// RunOnce performs one full merge pass: kick-off followed immediately
// by its end action. Tests that need to exercise the merge window (a
// delete arriving between kick-off and end action) call KickOff and
// EndAction directly instead.
func (m *MergeCoordinator) RunOnce(ctx context.Context) error {
	selectedUnseq, selectedSeq, err := m.KickOff(ctx)
	if err != nil || len(selectedUnseq) == 0 {
		return err
	}
	return m.EndAction(ctx, selectedUnseq, selectedSeq)
}

// KickOff implements the first half of §4.4: refuse if a merge is
// already running or either file set is empty; ask the configured
// selector for a bounded candidate set of unsequential files and the
// sequential files they target; mark every selected file merging=true
// so TTL eviction skips it; and open merge.mods to collect any
// deletion that arrives before EndAction runs.
func (m *MergeCoordinator) KickOff(ctx context.Context) (selectedUnseq, selectedSeq []*FileResource, err error) {
	m.p.insertLock.Lock()
	defer m.p.insertLock.Unlock()
	m.p.mergeLock.Lock()
	defer m.p.mergeLock.Unlock()

	if m.mods != nil {
		return nil, nil, nil
	}

	seq, unseq := m.p.fileIndex.Snapshot()
	if len(unseq) == 0 || len(seq) == 0 {
		return nil, nil, nil
	}

	selector := selectorFor(m.p.cfg.mergeFileStrategy)
	selectedUnseq, selectedSeq = selector.Select(unseq, seq, m.p.cfg.mergeMemoryBudgetBytes)
	if len(selectedUnseq) == 0 || len(selectedSeq) == 0 {
		return nil, nil, nil
	}

	for _, f := range selectedUnseq {
		if m.p.queries.InUse(f.Path) {
			return nil, nil, nil
		}
	}
	for _, f := range selectedSeq {
		if m.p.queries.InUse(f.Path) {
			return nil, nil, nil
		}
	}

	for _, f := range selectedSeq {
		f.Lock()
		f.Merging = true
		f.Unlock()
	}
	for _, f := range selectedUnseq {
		f.Lock()
		f.Merging = true
		f.Unlock()
	}

	m.mods = OpenModificationFile(m.modsPath)

	m.p.logger.WithField("action", "merge_kickoff").
		WithField("unsequential", len(selectedUnseq)).
		WithField("sequential", len(selectedSeq)).
		Info("merge started")

	return selectedUnseq, selectedSeq, nil
}

// EndAction implements the second half of §4.4. If the unsequential
// selection somehow ended up empty it treats the merge as aborted.
// Otherwise it folds each unsequential file's device ranges into its
// matching sequential target and removes it, then for each sequential
// target swaps in a fresh sidecar built from merge.mods — clearing
// merging=true as each target finishes, and on the last target
// removing merge.mods and the merge log.
func (m *MergeCoordinator) EndAction(ctx context.Context, selectedUnseq, selectedSeq []*FileResource) error {
	m.p.mergeLock.Lock()
	defer m.p.mergeLock.Unlock()

	if len(selectedUnseq) == 0 {
		return m.abort(selectedSeq)
	}

	m.p.logger.WithField("action", "merge").WithField("count", len(selectedUnseq)).Info("folding unsequential files")

	for _, src := range selectedUnseq {
		for _, device := range src.Devices() {
			start, _ := src.StartTime(device)
			end, _ := src.EndTime(device)
			if dest := m.findOrExtendTarget(selectedSeq, device, start, end); dest != nil {
				dest.UpdateStartTime(device, start)
				dest.UpdateEndTime(device, end)
			}
		}
		if err := removeFileAndSidecars(src.Path); err != nil {
			return err
		}
		m.p.fileIndex.Remove(src)
	}

	for i, target := range selectedSeq {
		if err := m.swapSidecar(target); err != nil {
			return err
		}

		target.Lock()
		target.Merging = false
		target.Unlock()

		if i == len(selectedSeq)-1 {
			if err := m.mods.Delete(); err != nil {
				return err
			}
			m.mods = nil
			if err := os.Remove(m.mergeLog); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(err, "remove merge log")
			}
		}
	}

	m.p.logger.WithField("action", "merge").Info("merge complete")
	return nil
}

// swapSidecar removes target's existing sidecar and replaces it with a
// fresh one containing every record from merge.mods, staging the write
// under mergeSuffix so a crash mid-swap is recoverable at startup.
func (m *MergeCoordinator) swapSidecar(target *FileResource) error {
	records, err := m.mods.ReadAll()
	if err != nil {
		return err
	}

	stagingPath := target.Path + ".mods." + mergeSuffix
	staged := OpenModificationFile(stagingPath)
	if err := staged.Truncate(records); err != nil {
		return err
	}

	finalPath := target.Path + ".mods"
	if err := os.Remove(finalPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove existing sidecar for %s", target.Path)
	}
	if err := os.Rename(stagingPath, finalPath); err != nil {
		return errors.Wrapf(err, "swap sidecar for %s", target.Path)
	}

	target.modification = OpenModificationFile(finalPath)
	return nil
}

// abort clears the merging flag from every selected sequential file and
// discards merge.mods, matching §4.4's "if the unsequential selection
// is empty, treat as aborted: clear the merging flag and return."
func (m *MergeCoordinator) abort(selectedSeq []*FileResource) error {
	for _, f := range selectedSeq {
		f.Lock()
		f.Merging = false
		f.Unlock()
	}
	if m.mods != nil {
		if err := m.mods.Delete(); err != nil {
			return err
		}
		m.mods = nil
	}
	return nil
}

func (m *MergeCoordinator) findOrExtendTarget(target []*FileResource, device string, start, end int64) *FileResource {
	for _, t := range target {
		if t.Overlaps(device, start, end) {
			return t
		}
	}
	if len(target) > 0 {
		return target[len(target)-1]
	}
	return nil
}
