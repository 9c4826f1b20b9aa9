package storagegroup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeleteIsNoopForUnknownDevice(t *testing.T) {
	p := newTestProcessor(t)
	require.NoError(t, p.Delete("ghost", "temp", 1000))
}

func TestDeleteAppliesToOpenBuffer(t *testing.T) {
	p := newTestProcessor(t)

	require.NoError(t, p.Insert("d1", "temp", 100, 1.0))
	require.NoError(t, p.Insert("d1", "temp", 200, 2.0))

	require.NoError(t, p.Delete("d1", "temp", 150))

	buf := p.partitionMap.Get(p.PartitionID(100), true)
	require.NotNil(t, buf)

	rows := buf.store.Query("d1")
	require.Len(t, rows, 1)
	require.Equal(t, int64(200), rows[0].Timestamp)
}

func TestDeleteWritesSidecarForSealedFile(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))

	require.NoError(t, p.Insert("d1", "temp", 100, 1.0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.SyncCloseAll(ctx))

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)

	require.NoError(t, p.Delete("d1", "temp", 150))

	dels, err := seq[0].modification.ReadAll()
	require.NoError(t, err)
	require.Len(t, dels, 1)
	require.Equal(t, int64(150), dels[0].UpperBound)
}

func TestDeleteSkipsSealedFileStartingAfterUpperBound(t *testing.T) {
	p := newTestProcessor(t, WithContinueMergeAfterReboot(false))

	require.NoError(t, p.Insert("d1", "temp", 500, 1.0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.SyncCloseAll(ctx))

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)

	require.NoError(t, p.Delete("d1", "temp", 100))

	dels, err := seq[0].modification.ReadAll()
	require.NoError(t, err)
	require.Empty(t, dels)
}
