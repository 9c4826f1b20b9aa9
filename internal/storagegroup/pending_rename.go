package storagegroup

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// tempSuffix marks a file mid-way through the load planner's filename
// rewrite (§4.7.2): the file has already been moved off its old name
// but has not yet been moved onto its final one. mergeSuffix marks a
// sidecar modification file mid-way through the merge end-action's
// sidecar swap (§4.4). Both are replayed at recovery (§4.3 step 1)
// so a crash between the two renames never leaves an ambiguous file.
const (
	tempSuffix  = "temp"
	mergeSuffix = "merge"
)

// renameThroughSuffix moves oldPath to newPath by first landing on
// newPath+"."+suffix and then renaming that onto newPath, so a crash
// between the two renames leaves an unambiguous, recoverable trail
// instead of silently losing the file under a half-written name.
func renameThroughSuffix(oldPath, newPath, suffix string) error {
	staged := newPath + "." + suffix
	if err := os.Rename(oldPath, staged); err != nil {
		return errors.Wrapf(err, "stage rename %s to %s", oldPath, staged)
	}
	if err := os.Rename(staged, newPath); err != nil {
		return errors.Wrapf(err, "finish rename %s to %s", staged, newPath)
	}
	return nil
}

// replayPendingRenames implements §4.3 step 1 for one directory: for
// every entry with a tempSuffix or mergeSuffix suffix, finish the
// rename onto its target name if the target is still missing, else
// discard the leftover temporary.
func replayPendingRenames(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "read directory %s for pending renames", dir)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, suffix := range []string{tempSuffix, mergeSuffix} {
			target, ok := strings.CutSuffix(name, "."+suffix)
			if !ok {
				continue
			}
			stagedPath := dir + string(os.PathSeparator) + name
			targetPath := dir + string(os.PathSeparator) + target
			if _, err := os.Stat(targetPath); err == nil {
				if err := os.Remove(stagedPath); err != nil && !os.IsNotExist(err) {
					return errors.Wrapf(err, "remove stale pending rename %s", stagedPath)
				}
				continue
			}
			if err := os.Rename(stagedPath, targetPath); err != nil {
				return errors.Wrapf(err, "replay pending rename %s to %s", stagedPath, targetPath)
			}
		}
	}
	return nil
}
