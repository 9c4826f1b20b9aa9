package directories

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsfiledb/storagegroup/internal/storagestate"
)

func TestNextRootRotates(t *testing.T) {
	free := map[string]uint64{"a": 1000, "b": 1000}
	rot := New([]string{"a", "b"}, 100, func(p string) (uint64, error) {
		return free[p], nil
	}, storagestate.NewHolder())

	first, err := rot.NextRoot()
	require.NoError(t, err)
	second, err := rot.NextRoot()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestNextRootFlipsReadOnlyWhenAllBelowFloor(t *testing.T) {
	state := storagestate.NewHolder()
	rot := New([]string{"a", "b"}, 100, func(p string) (uint64, error) {
		return 10, nil
	}, state)

	_, err := rot.NextRoot()
	require.ErrorIs(t, err, ErrDiskInsufficient)
	require.True(t, state.IsReadOnly())
}
