package storagegroup

// This file wires the CloseCallback (§4.2) into the bookkeeping the
// Processor must perform once a buffer finishes sealing: raising the
// device flush watermark, moving the resource from "open" to the
// FileIndex, and removing the buffer from its ClosingSet.

func (p *Processor) makeCloseCallback() CloseCallback {
	return func(b *Buffer) {
		p.closeQueryLock.Lock()
		defer p.closeQueryLock.Unlock()

		for _, device := range b.Resource.Devices() {
			if end, ok := b.Resource.EndTime(device); ok && b.Sequential {
				p.latestTime.UpdateFlushedTime(device, end)
			}
		}

		p.fileIndex.Add(b.Resource)
		p.partitionMap.Clear(b)

		set := p.closingSet(b.Sequential)
		set.Remove(b)

		p.logger.WithField("action", "close_callback").
			WithField("partition", b.PartitionID).
			WithField("sequential", b.Sequential).
			WithField("path", b.Resource.Path).
			Info("buffer sealed")
	}
}

func (p *Processor) closingSet(sequential bool) *ClosingSet {
	if sequential {
		return p.closingSeq
	}
	return p.closingUnseq
}
