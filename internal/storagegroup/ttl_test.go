package storagegroup

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLSweepRemovesExpiredSealedFile(t *testing.T) {
	p := newTestProcessor(t, WithDataTTL(time.Hour))

	insertTime := nowMillis()
	require.NoError(t, p.Insert("d1", "temp", insertTime, 1.0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.SyncCloseAll(ctx))

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)

	// fast-forward the clock past the TTL cutoff for the sweep only
	real := nowMillisFunc
	nowMillisFunc = func() int64 { return insertTime + int64(2*time.Hour/time.Millisecond) }
	defer func() { nowMillisFunc = real }()

	removed, err := p.ttl.SweepOnce()
	require.NoError(t, err)
	require.True(t, removed)

	seq, _ = p.fileIndex.Snapshot()
	require.Empty(t, seq)
}

func TestTTLSweepKeepsFreshFile(t *testing.T) {
	p := newTestProcessor(t, WithDataTTL(time.Hour))

	require.NoError(t, p.Insert("d1", "temp", nowMillis(), 1.0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.SyncCloseAll(ctx))

	removed, err := p.ttl.SweepOnce()
	require.NoError(t, err)
	require.False(t, removed)

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)
}

func TestTTLSweepSkipsMergingFile(t *testing.T) {
	p := newTestProcessor(t, WithDataTTL(time.Hour))

	insertTime := nowMillis()
	require.NoError(t, p.Insert("d1", "temp", insertTime, 1.0))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.SyncCloseAll(ctx))

	seq, _ := p.fileIndex.Snapshot()
	require.Len(t, seq, 1)
	seq[0].Lock()
	seq[0].Merging = true
	seq[0].Unlock()

	real := nowMillisFunc
	nowMillisFunc = func() int64 { return insertTime + int64(2*time.Hour/time.Millisecond) }
	defer func() { nowMillisFunc = real }()

	removed, err := p.ttl.SweepOnce()
	require.NoError(t, err)
	require.False(t, removed, "a file claimed by an in-flight merge must not be evicted by TTL")

	seq, _ = p.fileIndex.Snapshot()
	require.Len(t, seq, 1)
}

func TestTTLSweepNoopWithoutTTLConfigured(t *testing.T) {
	p := newTestProcessor(t)
	removed, err := p.ttl.SweepOnce()
	require.NoError(t, err)
	require.False(t, removed)
}
