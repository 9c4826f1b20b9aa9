package storagegroup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndFormatFileNameRoundTrips(t *testing.T) {
	name := NewFileName(1700000000000, 3, "tsfile")
	str := name.String()

	parsed, err := ParseFileName(str)
	require.NoError(t, err)
	require.Equal(t, name, parsed)
}

func TestParseFileNameRejectsMalformed(t *testing.T) {
	_, err := ParseFileName("not-a-valid-name")
	require.Error(t, err)

	_, err = ParseFileName("noextension")
	require.Error(t, err)
}

func TestCompareFileNamesOrdersByVersionThenMergeCount(t *testing.T) {
	a := NewFileName(100, 1, "tsfile")
	b := NewFileName(100, 2, "tsfile")
	require.Negative(t, CompareFileNames(a, b))
	require.Positive(t, CompareFileNames(b, a))
	require.Zero(t, CompareFileNames(a, a))

	// SystemMillis never participates in the ordering: a later millis
	// with a lower version still sorts first.
	c := NewFileName(200, 0, "tsfile")
	require.Positive(t, CompareFileNames(a, c))

	d := a.WithIncrementedMergeCount()
	require.Negative(t, CompareFileNames(a, d))
}

func TestWithIncrementedMergeCount(t *testing.T) {
	name := NewFileName(100, 1, "tsfile")
	next := name.WithIncrementedMergeCount()
	require.Equal(t, int64(1), next.MergeCount)
	require.Equal(t, int64(0), name.MergeCount)
}
