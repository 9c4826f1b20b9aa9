package storagegroup

import (
	"context"
	"time"

	"github.com/tsfiledb/storagegroup/internal/cyclemanager"
)

// TTLSweeper periodically removes sealed files whose every device
// range ends before the TTL cutoff (§4.6 checkFilesTTL). A file with
// at least one device still within the TTL window is kept in full;
// this coordinator does not split files at the row level.
type TTLSweeper struct {
	p      *Processor
	ttl    time.Duration
	cycles *cyclemanager.CycleManager
}

func NewTTLSweeper(p *Processor, ttl time.Duration) *TTLSweeper {
	return &TTLSweeper{
		p:      p,
		ttl:    ttl,
		cycles: cyclemanager.New(p.logger, time.Minute, 1),
	}
}

func (t *TTLSweeper) Start() {
	if t.ttl <= 0 {
		return
	}
	t.cycles.Register(func(shouldBreak cyclemanager.ShouldBreakFunc) bool {
		did, _ := t.SweepOnce()
		return did
	})
	t.cycles.Start()
}

func (t *TTLSweeper) Stop(ctx context.Context) {
	_ = t.cycles.StopAndWait(ctx)
}

// SweepOnce removes every sealed file entirely past the TTL cutoff and
// reports whether anything was removed.
func (t *TTLSweeper) SweepOnce() (bool, error) {
	if t.ttl <= 0 {
		return false, nil
	}

	t.p.mergeLock.Lock()
	defer t.p.mergeLock.Unlock()

	cutoff := nowMillis() - t.ttl.Milliseconds()
	seq, unseq := t.p.fileIndex.Snapshot()

	removed := false
	for _, r := range append(seq, unseq...) {
		r.Lock()
		merging := r.Merging
		r.Unlock()
		if merging {
			continue
		}
		if t.p.queries.InUse(r.Path) {
			continue
		}
		if !r.Closed {
			continue
		}
		if t.isEntirelyExpired(r, cutoff) {
			if err := t.p.removeResource(r); err != nil {
				return removed, err
			}
			removed = true
		}
	}
	return removed, nil
}

func (t *TTLSweeper) isEntirelyExpired(r *FileResource, cutoff int64) bool {
	devices := r.Devices()
	if len(devices) == 0 {
		return false
	}
	for _, d := range devices {
		if end, ok := r.EndTime(d); ok && end >= cutoff {
			return false
		}
	}
	return true
}
