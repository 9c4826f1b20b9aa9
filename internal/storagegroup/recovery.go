package storagegroup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tsfiledb/storagegroup/internal/walrecord"
)

// Recover rebuilds in-memory state from the on-disk layout after a
// restart (§4.3). Step 1: replay any pending renames left behind by a
// crash mid-load-rewrite or mid-merge-sidecar-swap. Step 2: every data
// root is walked for "<root>/<group>/<partition>/<sequence|unsequence>/*.tsfile"
// files, sorted by (version, mergeCount); only the last file in that
// order can still be an open buffer, and it is reopened as one only if
// it actually has a surviving ".wal" sidecar — every earlier file is
// necessarily sealed regardless of what sidecars survive next to it.
// Any stale merge log left with no matching in-progress marker is
// removed (the orphan-log cleanup decision recorded in DESIGN.md).
func (p *Processor) Recover(dataDirs []string) error {
	p.insertLock.Lock()
	defer p.insertLock.Unlock()

	for _, root := range dataDirs {
		groupDir := filepath.Join(root, p.Name)
		if _, err := os.Stat(groupDir); os.IsNotExist(err) {
			continue
		}

		partitions, err := os.ReadDir(groupDir)
		if err != nil {
			return errors.Wrapf(err, "read storage group directory %s", groupDir)
		}

		for _, partEntry := range partitions {
			if !partEntry.IsDir() {
				continue
			}
			partitionID, err := strconv.ParseInt(partEntry.Name(), 10, 64)
			if err != nil {
				continue
			}

			for _, sequential := range []bool{true, false} {
				spaceDirPath := filepath.Join(groupDir, partEntry.Name(), spaceDir(sequential))
				if err := p.recoverSpace(spaceDirPath, partitionID, sequential); err != nil {
					return err
				}
			}
		}
	}

	if err := p.cleanupOrphanMergeLog(); err != nil {
		return err
	}

	p.logger.WithField("action", "recover").Info("recovery complete")
	return nil
}

func (p *Processor) recoverSpace(dir string, partitionID int64, sequential bool) error {
	if err := replayPendingRenames(dir); err != nil {
		return errors.Wrapf(err, "replay pending renames in %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read space directory %s", dir)
	}

	type found struct {
		path string
		name FileName
	}
	var files []found
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != "."+fileExtension {
			continue
		}
		path := filepath.Join(dir, e.Name())
		name, err := ParseFileName(e.Name())
		if err != nil {
			p.logger.WithField("action", "recover").WithField("file", path).
				Warn("skipping file with unrecognized name")
			continue
		}
		files = append(files, found{path: path, name: name})
	}

	sort.Slice(files, func(i, j int) bool {
		return CompareFileNames(files[i].name, files[j].name) < 0
	})

	for i, f := range files {
		resource := NewFileResource(f.path, partitionID, sequential)
		resource.HistoryVers[f.name.Version] = struct{}{}
		resource.modification = OpenModificationFile(f.path + ".mods")

		if err := p.replayDeletionsInto(resource); err != nil {
			return err
		}

		isLast := i == len(files)-1
		walPath := f.path + ".wal"
		if _, err := os.Stat(walPath); err == nil && isLast {
			if err := p.reopenUnsealedBuffer(resource, walPath); err != nil {
				return err
			}
			continue
		}

		resource.Closed = true
		p.fileIndex.Add(resource)
		p.versionCatalog.Record(partitionID, resource.HistoryVers)
		for _, device := range resource.Devices() {
			if end, ok := resource.EndTime(device); ok && sequential {
				p.latestTime.UpdateFlushedTime(device, end)
			}
		}
	}
	return nil
}

func (p *Processor) replayDeletionsInto(resource *FileResource) error {
	dels, err := resource.modification.ReadAll()
	if err != nil {
		return errors.Wrapf(err, "read modifications for %s", resource.Path)
	}
	_ = dels // device-range bookkeeping only; row-level application happens at query time
	return nil
}

// reopenUnsealedBuffer restores a buffer that was still open when the
// process stopped, replaying its WAL to rebuild the resource's time
// ranges before handing it back to the partition map for further
// writes.
func (p *Processor) reopenUnsealedBuffer(resource *FileResource, walPath string) error {
	err := walrecord.Replay(walPath, func(rec walrecord.Record) error {
		if rec.Type != walrecord.RecordInsert {
			return nil
		}
		var row struct {
			Timestamp int64 `json:"Timestamp"`
		}
		if err := decodeJSON(rec.Payload, &row); err != nil {
			return err
		}
		resource.UpdateStartTime(rec.Device, row.Timestamp)
		resource.UpdateEndTime(rec.Device, row.Timestamp)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "replay wal %s", walPath)
	}

	wal, err := walrecord.Create(walPath)
	if err != nil {
		return errors.Wrapf(err, "reopen wal %s", walPath)
	}

	buf := NewBuffer(resource.PartitionID, resource.Sequential, resource, wal, p.makeCloseCallback())
	p.partitionMap.Set(buf)

	p.logger.WithField("action", "recover").WithField("path", resource.Path).
		Info("reopened unsealed buffer from wal")
	return nil
}

func (p *Processor) cleanupOrphanMergeLog() error {
	mergeLog := filepath.Join(p.SystemDir, "merge.log")
	mergingMods := filepath.Join(p.SystemDir, "merge.mods")

	_, logErr := os.Stat(mergeLog)
	_, modsErr := os.Stat(mergingMods)

	if logErr == nil && os.IsNotExist(modsErr) {
		if err := os.Remove(mergeLog); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "remove orphan merge log")
		}
		p.logger.WithField("action", "recover").Info("removed orphan merge log from incomplete prior merge")
	}
	return nil
}

func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
