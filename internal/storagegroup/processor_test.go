package storagegroup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tsfiledb/storagegroup/internal/directories"
	"github.com/tsfiledb/storagegroup/internal/metadata"
	"github.com/tsfiledb/storagegroup/internal/storagestate"
)

func newTestProcessor(t *testing.T, opts ...Option) *Processor {
	t.Helper()
	root := t.TempDir()
	state := storagestate.NewHolder()
	rotator := directories.New([]string{root}, 0, func(string) (uint64, error) {
		return 1 << 40, nil
	}, state)
	md := metadata.New()

	allOpts := append([]Option{WithPartitionInterval(24 * time.Hour)}, opts...)
	p, err := New("root.test", t.TempDir(), rotator, md, allOpts...)
	require.NoError(t, err)
	return p
}

func TestInsertRoutesToSequentialBuffer(t *testing.T) {
	p := newTestProcessor(t)

	require.NoError(t, p.Insert("d1", "temp", 100, 1.0))

	buf := p.partitionMap.Get(p.PartitionID(100), true)
	require.NotNil(t, buf)
}

func TestInsertAfterFlushWatermarkRoutesUnsequential(t *testing.T) {
	p := newTestProcessor(t)

	require.NoError(t, p.Insert("d1", "temp", 100, 1.0))
	p.latestTime.UpdateFlushedTime("d1", 100)

	require.NoError(t, p.Insert("d1", "temp", 50, 2.0))

	buf := p.partitionMap.Get(p.PartitionID(50), false)
	require.NotNil(t, buf)
}

func TestInsertAtWatermarkRoutesUnsequential(t *testing.T) {
	p := newTestProcessor(t)
	p.latestTime.UpdateFlushedTime("d1", 100)

	require.NoError(t, p.Insert("d1", "temp", 100, 1.0))

	buf := p.partitionMap.Get(p.PartitionID(100), false)
	require.NotNil(t, buf)
}

func TestInsertRejectedWhenReadOnly(t *testing.T) {
	p := newTestProcessor(t)
	p.state.Set(storagestate.StatusReadOnly)

	err := p.Insert("d1", "temp", 100, 1.0)
	require.ErrorIs(t, err, ErrDiskSpaceInsufficient)
}

func TestInsertRejectedOutOfTTL(t *testing.T) {
	p := newTestProcessor(t, WithDataTTL(time.Hour))

	old := nowMillis() - int64(2*time.Hour/time.Millisecond)
	err := p.Insert("d1", "temp", old, 1.0)
	require.ErrorIs(t, err, ErrOutOfTTL)
}

func TestInsertBatchMismatchedLengths(t *testing.T) {
	p := newTestProcessor(t)
	err := p.InsertBatch("d1", "temp", []int64{1, 2}, []any{1.0})
	require.Error(t, err)
}

func TestSyncCloseAllSealsOpenBuffers(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Insert("d1", "temp", 100, 1.0))
	require.Equal(t, 1, len(p.partitionMap.AllOpen()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.SyncCloseAll(ctx))

	require.Equal(t, 0, len(p.partitionMap.AllOpen()))
	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)
}

func TestQueryReturnsOverlappingFiles(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Insert("d1", "temp", 100, 1.0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.SyncCloseAll(ctx))

	snap := p.Query("d1", "temp", RangeTimeFilter{Start: 0, End: 200})
	require.Len(t, snap.Sequential, 1)
	require.Empty(t, snap.Unsequential)
	p.Release(snap)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newTestProcessor(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
	require.NoError(t, p.Close(ctx))

	require.ErrorIs(t, p.Insert("d1", "temp", 1, 1.0), ErrClosed)
}
