package queryfiles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndReleaseTracksInUse(t *testing.T) {
	r := New()
	q := r.NewQueryID()
	require.NotEmpty(t, q)

	r.AddUsedFilesForQuery(q, []string{"a.file", "b.file"})
	require.True(t, r.InUse("a.file"))
	require.True(t, r.InUse("b.file"))

	r.Release(q)
	require.False(t, r.InUse("a.file"))
	require.False(t, r.InUse("b.file"))
}

func TestSharedFileStaysInUseUntilAllQueriesRelease(t *testing.T) {
	r := New()
	q1 := r.NewQueryID()
	q2 := r.NewQueryID()

	r.AddUsedFilesForQuery(q1, []string{"shared.file"})
	r.AddUsedFilesForQuery(q2, []string{"shared.file"})

	r.Release(q1)
	require.True(t, r.InUse("shared.file"))

	r.Release(q2)
	require.False(t, r.InUse("shared.file"))
}
