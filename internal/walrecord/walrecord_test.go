package walrecord

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.wal")

	log, err := Create(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(Record{Type: RecordInsert, Device: "d1", Payload: []byte(`{"t":1}`)}))
	require.NoError(t, log.Append(Record{Type: RecordDeletion, Device: "d1", Payload: []byte(`{"upper":5}`)}))
	require.NoError(t, log.Close())

	var replayed []Record
	require.NoError(t, Replay(path, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))

	require.Len(t, replayed, 2)
	require.Equal(t, RecordInsert, replayed[0].Type)
	require.Equal(t, RecordDeletion, replayed[1].Type)
}

func TestReplayMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.wal")
	var calls int
	require.NoError(t, Replay(path, func(r Record) error {
		calls++
		return nil
	}))
	require.Zero(t, calls)
}

func TestDeleteRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.wal")
	log, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, log.Delete())

	require.NoError(t, Replay(path, func(r Record) error { return nil }))
}
