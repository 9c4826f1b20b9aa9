package storagegroup

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModificationFileAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.tsfile.mods")
	m := OpenModificationFile(path)

	require.NoError(t, m.Append(Deletion{Device: "d1", Measurement: "temp", UpperBound: 100, Version: 1}))
	require.NoError(t, m.Append(Deletion{Device: "d1", Measurement: "*", UpperBound: 200, Version: 2}))

	dels, err := m.ReadAll()
	require.NoError(t, err)
	require.Len(t, dels, 2)
	require.Equal(t, "temp", dels[0].Measurement)
	require.Equal(t, "*", dels[1].Measurement)
}

func TestModificationFileReadAllMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.mods")
	m := OpenModificationFile(path)

	dels, err := m.ReadAll()
	require.NoError(t, err)
	require.Nil(t, dels)
}

func TestModificationFileTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.mods")
	m := OpenModificationFile(path)

	require.NoError(t, m.Append(Deletion{Device: "d1", Measurement: "temp", UpperBound: 100}))
	require.NoError(t, m.Truncate(nil))

	dels, err := m.ReadAll()
	require.NoError(t, err)
	require.Empty(t, dels)
}

func TestDeletionApplies(t *testing.T) {
	d := Deletion{Device: "d1", Measurement: "temp", UpperBound: 100}

	require.True(t, d.Applies("d1", "temp", 50))
	require.False(t, d.Applies("d1", "temp", 150))
	require.False(t, d.Applies("d2", "temp", 50))
	require.False(t, d.Applies("d1", "humidity", 50))

	wildcard := Deletion{Device: "d1", Measurement: "*", UpperBound: 100}
	require.True(t, wildcard.Applies("d1", "anything", 50))
}
