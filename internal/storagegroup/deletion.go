package storagegroup

import (
	"github.com/pkg/errors"
)

// Delete implements §4.5: deleting every value for device/measurement
// at or before upperBound. It is a no-op if the device has never been
// written to this storage group, otherwise it fans the deletion out to
// every open buffer whose partition could hold an affected row (so
// in-memory rows are hidden immediately) and to every sealed file's
// modification sidecar (so future queries skip the deleted range
// without rewriting the file itself).
func (p *Processor) Delete(device, measurement string, upperBound int64) error {
	p.insertLock.Lock()
	defer p.insertLock.Unlock()
	p.mergeLock.Lock()
	defer p.mergeLock.Unlock()

	_, flushed := p.latestTime.FlushedTime(device)
	_, working := p.latestTime.WorkingTime(device)
	if !flushed && !working {
		return nil
	}

	targetPartition := p.PartitionID(upperBound)

	targetReg, err := p.versionRegistries.RegistryFor(targetPartition)
	if err != nil {
		return err
	}
	targetVersion, err := targetReg.NextVersion()
	if err != nil {
		return err
	}
	del := Deletion{Device: device, Measurement: measurement, UpperBound: upperBound, Version: targetVersion}

	for _, buf := range p.partitionMap.AllOpen() {
		if buf.PartitionID <= targetPartition {
			buf.ApplyDeletion(del)
		}
	}

	if merging := p.merge.mergingModification(); merging != nil {
		if err := merging.Append(del); err != nil {
			return errors.Wrap(err, "mirror deletion into merging-modification file")
		}
	}

	seq, unseq := p.fileIndex.Snapshot()
	affected := append(append([]*FileResource{}, seq...), unseq...)

	var written []priorSidecar

	for _, r := range affected {
		start, ok := r.StartTime(device)
		if !ok || start > upperBound || r.modification == nil {
			continue
		}

		prior, err := r.modification.ReadAll()
		if err != nil {
			return p.abortDeletionSidecars(written, err)
		}

		reg, err := p.versionRegistries.RegistryFor(r.PartitionID)
		if err != nil {
			return p.abortDeletionSidecars(written, err)
		}
		version, err := reg.NextVersion()
		if err != nil {
			return p.abortDeletionSidecars(written, err)
		}

		stamped := Deletion{Device: device, Measurement: measurement, UpperBound: upperBound, Version: version}
		if err := r.modification.Append(stamped); err != nil {
			return p.abortDeletionSidecars(written, err)
		}
		written = append(written, priorSidecar{resource: r, kept: prior})

		if !r.Closed {
			if buf := p.partitionMap.Get(r.PartitionID, r.Sequential); buf != nil {
				buf.ApplyDeletion(stamped)
			}
		}
	}

	return nil
}

type priorSidecar struct {
	resource *FileResource
	kept     []Deletion
}

// abortDeletionSidecars restores every modification file successfully
// appended to during a Delete call that later failed partway through,
// so a partial deletion never becomes durable, then returns cause.
func (p *Processor) abortDeletionSidecars(written []priorSidecar, cause error) error {
	for _, w := range written {
		_ = w.resource.modification.Truncate(w.kept)
	}
	return errors.Wrap(cause, "delete aborted")
}
