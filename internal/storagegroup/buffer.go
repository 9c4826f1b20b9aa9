package storagegroup

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tsfiledb/storagegroup/internal/columnbuffer"
	"github.com/tsfiledb/storagegroup/internal/walrecord"
)

func encodeRow(r columnbuffer.Row) ([]byte, error) {
	return json.Marshal(r)
}

// CloseCallback is invoked exactly once, after a Buffer has finished
// sealing its file, so the owning Processor can update its
// LatestTimeTracker, FileIndex, and ClosingSet bookkeeping
// (close_callback in §4.2).
type CloseCallback func(b *Buffer)

// Buffer is a writable, in-memory accumulator for one not-yet-sealed
// data file — the coordinator's per-partition, per-sequential-flag
// writable processor (get_or_create_buffer in §4.2).
type Buffer struct {
	mu sync.Mutex

	PartitionID int64
	Sequential  bool
	Resource    *FileResource

	store *columnbuffer.Store
	wal   *walrecord.Log

	closing     bool
	closed      bool
	lastWriteAt time.Time
	onClose     CloseCallback
}

func NewBuffer(partitionID int64, sequential bool, resource *FileResource, wal *walrecord.Log, onClose CloseCallback) *Buffer {
	return &Buffer{
		PartitionID: partitionID,
		Sequential:  sequential,
		Resource:    resource,
		store:       columnbuffer.New(),
		wal:         wal,
		lastWriteAt: time.Now(),
		onClose:     onClose,
	}
}

// Write appends one row, logging it to the WAL (if enabled) before
// applying it to the in-memory store, matching the commit-log-then-apply
// ordering used for durability.
func (b *Buffer) Write(r columnbuffer.Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closing || b.closed {
		return errors.Wrap(ErrWrite, "buffer is closing")
	}

	if b.wal != nil {
		payload, err := encodeRow(r)
		if err != nil {
			return errors.Wrap(ErrWrite, err.Error())
		}
		if err := b.wal.Append(walrecord.Record{Type: walrecord.RecordInsert, Device: r.Device, Payload: payload}); err != nil {
			return errors.Wrap(err, "append insert to wal")
		}
		if err := b.wal.Flush(); err != nil {
			return errors.Wrap(err, "flush wal")
		}
	}

	b.store.Put(r)
	b.Resource.UpdateStartTime(r.Device, r.Timestamp)
	b.Resource.UpdateEndTime(r.Device, r.Timestamp)
	b.lastWriteAt = time.Now()
	return nil
}

// WriteBatch appends many rows for one device in a single call (the
// tablet insert path).
func (b *Buffer) WriteBatch(device string, rows []columnbuffer.Row) error {
	for i := range rows {
		rows[i].Device = device
		if err := b.Write(rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) SizeBytes() int64 {
	return b.store.SizeBytes()
}

// IdleDuration reports milliseconds since the last write.
func (b *Buffer) IdleDuration() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastWriteAt).Milliseconds()
}

// MarkClosing flags the buffer as sealing, rejecting further writes
// (async_close's first step: stop accepting new rows).
func (b *Buffer) MarkClosing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing || b.closed {
		return false
	}
	b.closing = true
	return true
}

// FlushTo writes every buffered row, in device/timestamp order, to w and
// then seals the buffer, deleting its WAL only after the write
// succeeds (flush pipeline: data first, WAL cleanup last).
func (b *Buffer) FlushTo(w columnbuffer.Writer) error {
	if !b.MarkClosing() {
		return nil
	}

	if err := b.store.FlushTo(w); err != nil {
		return errors.Wrap(ErrBufferClose, err.Error())
	}

	b.mu.Lock()
	b.Resource.Closed = true
	b.closed = true
	b.mu.Unlock()

	if b.wal != nil {
		if err := b.wal.Delete(); err != nil {
			return errors.Wrap(err, "delete wal after flush")
		}
	}

	if b.onClose != nil {
		b.onClose(b)
	}
	return nil
}

// Seal implements flushpolicy.Buffer for callers that only need a
// context-aware entrypoint; the writer is the buffer's own store being
// drained into its FileResource's backing file, modeled here as a
// no-op sink since on-disk file writing is outside this package's
// scope (it is delegated to the caller-supplied columnbuffer.Writer in
// FlushTo for real use).
func (b *Buffer) Seal(ctx context.Context) error {
	return b.FlushTo(discardWriter{})
}

type discardWriter struct{}

func (discardWriter) WriteRow(columnbuffer.Row) error { return nil }

// ApplyDeletion removes buffered rows matching a deletion, used when a
// delete lands while the affected buffer is still open.
func (b *Buffer) ApplyDeletion(d Deletion) {
	b.store.ApplyDeletion(d.Device, d.Measurement, d.UpperBound)
}

// IsEmpty reports whether the buffer has accumulated any rows at all.
func (b *Buffer) IsEmpty() bool {
	return b.store.IsEmpty()
}
