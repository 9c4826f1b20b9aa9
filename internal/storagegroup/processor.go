// Package storagegroup implements the per-storage-group coordinator:
// it routes inserted rows to the right writable buffer, seals buffers
// into sealed files, merges sealed files back together, sweeps expired
// data under a TTL, loads externally produced files into the space,
// and answers queries with a consistent snapshot of the files that
// satisfy them.
package storagegroup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tsfiledb/storagegroup/internal/columnbuffer"
	"github.com/tsfiledb/storagegroup/internal/queryfiles"
	"github.com/tsfiledb/storagegroup/internal/storagestate"
	"github.com/tsfiledb/storagegroup/internal/walrecord"
)

// MetadataService is the schema/last-value collaborator consumed
// during ingestion; internal/metadata.Service satisfies it.
type MetadataService interface {
	UpdateLastCache(device, measurement string, ts int64, value any, highPriority bool)
}

// DirectoryRotator hands out the next data root new files should be
// created under; internal/directories.Rotator satisfies it.
type DirectoryRotator interface {
	NextRoot() (string, error)
}

// Processor is the storage group coordinator.
type Processor struct {
	Name      string
	SystemDir string

	cfg config

	logger logrus.FieldLogger

	dirs     DirectoryRotator
	metadata MetadataService
	state    *storagestate.Holder
	queries  *queryfiles.Registry

	partitionMap      *PartitionMap
	fileIndex         *FileIndex
	latestTime        *LatestTimeTracker
	versionRegistries *VersionRegistryCatalog
	versionCatalog    *PartitionVersionCatalog

	closingSeq   *ClosingSet
	closingUnseq *ClosingSet

	insertLock     sync.RWMutex
	mergeLock      sync.RWMutex
	closeQueryLock sync.RWMutex

	merge *MergeCoordinator
	ttl   *TTLSweeper

	closed bool
}

// New constructs a Processor for storage group name, rooted at
// systemDir for its durable bookkeeping (version markers, merge log).
func New(name, systemDir string, dirs DirectoryRotator, md MetadataService, opts ...Option) (*Processor, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, errors.Wrap(err, "apply storage group option")
		}
	}
	if len(cfg.dataDirs) == 0 && dirs == nil {
		return nil, errors.New("no data directories or directory rotator configured")
	}

	p := &Processor{
		Name:              name,
		SystemDir:         systemDir,
		cfg:               cfg,
		logger:            logrus.WithField("storage_group", name),
		dirs:              dirs,
		metadata:          md,
		state:             storagestate.NewHolder(),
		queries:           queryfiles.New(),
		partitionMap:      NewPartitionMap(),
		fileIndex:         NewFileIndex(),
		latestTime:        NewLatestTimeTracker(),
		versionRegistries: NewVersionRegistryCatalog(systemDir),
		versionCatalog:    NewPartitionVersionCatalog(),
		closingSeq:        NewClosingSet(),
		closingUnseq:      NewClosingSet(),
	}

	p.merge = NewMergeCoordinator(p)
	p.ttl = NewTTLSweeper(p, time.Duration(cfg.dataTTLMillis)*time.Millisecond)
	p.merge.Start()
	p.ttl.Start()

	return p, nil
}

// PartitionID derives the time-partition id a timestamp falls into,
// given the configured partition interval.
func (p *Processor) PartitionID(timestamp int64) int64 {
	if p.cfg.partitionIntervalMillis <= 0 {
		return 0
	}
	if timestamp < 0 {
		return -((-timestamp-1)/p.cfg.partitionIntervalMillis + 1)
	}
	return timestamp / p.cfg.partitionIntervalMillis
}

// Insert routes a single row to the correct writable buffer, creating
// one if needed, per the ingestion algorithm in §4.1:
//  1. reject if the storage group is read-only (disk space exhausted).
//  2. reject if the row is older than the configured TTL.
//  3. decide sequential vs. unsequential by comparing against the
//     device's flush watermark.
//  4. get-or-create the buffer for (partition, sequential-flag).
//  5. write the row, update the resource's time range and the
//     metadata service's last-value cache.
func (p *Processor) Insert(device, measurement string, timestamp int64, value any) error {
	p.insertLock.RLock()
	defer p.insertLock.RUnlock()

	if p.closed {
		return ErrClosed
	}
	if p.state.IsReadOnly() {
		return ErrDiskSpaceInsufficient
	}
	if err := p.checkTTL(timestamp); err != nil {
		return err
	}

	partitionID := p.PartitionID(timestamp)
	sequential := p.latestTime.IsSequential(device, timestamp)

	buf, err := p.getOrCreateBuffer(partitionID, sequential)
	if err != nil {
		return err
	}

	row := columnbuffer.Row{Device: device, Measurement: measurement, Timestamp: timestamp, Value: value}
	if err := buf.Write(row); err != nil {
		return err
	}

	p.latestTime.UpdateWorkingTime(partitionID, device, timestamp)
	if p.metadata != nil {
		p.metadata.UpdateLastCache(device, measurement, timestamp, value, sequential)
	}
	return nil
}

// InsertBatch inserts many rows for a single device and measurement in
// one call (the tablet insert path in §4.1). Rows need not be
// presorted; each is routed independently, so a batch spanning the
// flush watermark correctly splits across the sequential and
// unsequential buffers.
func (p *Processor) InsertBatch(device, measurement string, timestamps []int64, values []any) error {
	if len(timestamps) != len(values) {
		return errors.New("timestamps and values must have equal length")
	}
	for i := range timestamps {
		if err := p.Insert(device, measurement, timestamps[i], values[i]); err != nil {
			return errors.Wrapf(err, "insert row %d of batch", i)
		}
	}
	return nil
}

func (p *Processor) checkTTL(timestamp int64) error {
	if p.cfg.dataTTLMillis <= 0 {
		return nil
	}
	cutoff := nowMillis() - p.cfg.dataTTLMillis
	if timestamp < cutoff {
		return ErrOutOfTTL
	}
	return nil
}

// getOrCreateBuffer returns the open buffer for (partitionID,
// sequential), creating one (and the backing file resource, version,
// and WAL) if none is currently open.
func (p *Processor) getOrCreateBuffer(partitionID int64, sequential bool) (*Buffer, error) {
	if b := p.partitionMap.Get(partitionID, sequential); b != nil {
		return b, nil
	}

	root, err := p.resolveRoot()
	if err != nil {
		return nil, err
	}

	reg, err := p.versionRegistries.RegistryFor(partitionID)
	if err != nil {
		return nil, err
	}
	version, err := reg.NextVersion()
	if err != nil {
		return nil, err
	}

	name := NewFileName(nowMillis(), version, fileExtension)
	dir := filepath.Join(root, p.Name, fmt.Sprintf("%d", partitionID), spaceDir(sequential))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create partition directory %s", dir)
	}
	path := filepath.Join(dir, name.String())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "create data file %s", path)
	}
	f.Close()

	resource := NewFileResource(path, partitionID, sequential)
	resource.HistoryVers[version] = struct{}{}
	resource.modification = OpenModificationFile(path + ".mods")
	p.versionCatalog.Record(partitionID, resource.HistoryVers)

	var wal *walrecord.Log
	if p.cfg.enableWAL {
		wal, err = walrecord.Create(path + ".wal")
		if err != nil {
			return nil, errors.Wrap(err, "create wal for new buffer")
		}
	}

	buf := NewBuffer(partitionID, sequential, resource, wal, p.makeCloseCallback())
	p.partitionMap.Set(buf)

	p.logger.WithField("action", "get_or_create_buffer").
		WithField("partition", partitionID).
		WithField("sequential", sequential).
		WithField("path", path).
		Debug("opened new writable buffer")

	return buf, nil
}

func (p *Processor) resolveRoot() (string, error) {
	if p.dirs != nil {
		return p.dirs.NextRoot()
	}
	return p.cfg.dataDirs[0], nil
}

// fileExtension is the on-disk suffix for sealed data files; sequential
// and unsequential files share the same grammar and differ only by
// which space's directory they live under.
const fileExtension = "tsfile"

func spaceDir(sequential bool) string {
	if sequential {
		return "sequence"
	}
	return "unsequence"
}

// AsyncClose seals the open buffer for (partitionID, sequential)
// without blocking the caller: the seal runs on its own goroutine and
// the buffer is tracked in the matching ClosingSet until it finishes
// (§4.2 async_close).
func (p *Processor) AsyncClose(ctx context.Context, partitionID int64, sequential bool) {
	buf := p.partitionMap.Get(partitionID, sequential)
	if buf == nil {
		return
	}

	set := p.closingSet(sequential)
	set.Add(buf)

	go func() {
		if err := buf.FlushTo(p.fileWriterFor(buf)); err != nil {
			p.logger.WithError(err).WithField("action", "async_close").Error("failed to seal buffer")
			set.Remove(buf)
		}
	}()
}

// SyncCloseAll seals every currently open buffer and blocks until all
// of them have finished, used by Close/Teardown and by an
// administrative flush-all request.
func (p *Processor) SyncCloseAll(ctx context.Context) error {
	p.insertLock.Lock()
	buffers := p.partitionMap.AllOpen()
	for _, b := range buffers {
		p.closingSet(b.Sequential).Add(b)
	}
	p.insertLock.Unlock()

	var firstErr error
	var wg sync.WaitGroup
	for _, b := range buffers {
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.FlushTo(p.fileWriterFor(b)); err != nil {
				p.closingSet(b.Sequential).Remove(b)
				if firstErr == nil {
					firstErr = err
				}
			}
		}()
	}
	wg.Wait()

	p.closingSeq.WaitUntilEmpty()
	p.closingUnseq.WaitUntilEmpty()
	return firstErr
}

// fileWriterFor is the in-memory stand-in for an on-disk file encoder:
// it always returns a writer that discards every row. A buffer's data
// file is created empty when the buffer opens, and no row data is
// written into it.
func (p *Processor) fileWriterFor(b *Buffer) columnbuffer.Writer {
	return discardWriter{}
}

// Close seals every open buffer and stops background cycles, leaving
// on-disk state intact.
func (p *Processor) Close(ctx context.Context) error {
	p.insertLock.Lock()
	if p.closed {
		p.insertLock.Unlock()
		return nil
	}
	p.closed = true
	p.insertLock.Unlock()

	p.ttl.Stop(ctx)
	p.merge.Stop(ctx)
	return p.SyncCloseAll(ctx)
}

// Teardown closes the processor and erases every data file it owns —
// used by "drop storage group."
func (p *Processor) Teardown(ctx context.Context) error {
	if err := p.Close(ctx); err != nil {
		return err
	}

	seq, unseq := p.fileIndex.Snapshot()
	for _, r := range append(seq, unseq...) {
		if err := removeFileAndSidecars(r.Path); err != nil {
			return err
		}
	}
	return nil
}

var nowMillisFunc = func() int64 { return time.Now().UnixMilli() }

func nowMillis() int64 { return nowMillisFunc() }
