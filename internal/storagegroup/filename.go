package storagegroup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FileName is the parsed form of a data file's on-disk name:
// <systemMillis>-<version>-<mergeCount>.<ext>
type FileName struct {
	SystemMillis int64
	Version      int64
	MergeCount   int64
	Ext          string
}

func (n FileName) String() string {
	return fmt.Sprintf("%d-%d-%d.%s", n.SystemMillis, n.Version, n.MergeCount, n.Ext)
}

// ParseFileName parses a base file name (no directory component) of the
// form <systemMillis>-<version>-<mergeCount>.<ext>.
func ParseFileName(base string) (FileName, error) {
	dot := strings.LastIndex(base, ".")
	if dot < 0 {
		return FileName{}, errors.Errorf("file name %q has no extension", base)
	}
	ext := base[dot+1:]
	stem := base[:dot]

	parts := strings.Split(stem, "-")
	if len(parts) != 3 {
		return FileName{}, errors.Errorf("file name %q does not match <millis>-<version>-<mergeCount> grammar", base)
	}

	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return FileName{}, errors.Wrapf(err, "parse system millis in %q", base)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return FileName{}, errors.Wrapf(err, "parse version in %q", base)
	}
	mergeCount, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return FileName{}, errors.Wrapf(err, "parse merge count in %q", base)
	}

	return FileName{
		SystemMillis: millis,
		Version:      version,
		MergeCount:   mergeCount,
		Ext:          ext,
	}, nil
}

// NewFileName builds the name for a freshly created file in the given
// partition's version sequence.
func NewFileName(systemMillis, version int64, ext string) FileName {
	return FileName{SystemMillis: systemMillis, Version: version, MergeCount: 0, Ext: ext}
}

// CompareFileNames orders two file names the way the coordinator orders
// files within a partition: by version, then by merge count. SystemMillis
// is part of the on-disk grammar but never part of the ordering key —
// partition ordering dominates, and within a partition only the version
// tuple matters (§6, §8: "(partition, version, mergeCount) ordering").
// It returns <0, 0, >0 like strings.Compare.
func CompareFileNames(a, b FileName) int {
	if a.Version != b.Version {
		return cmpInt64(a.Version, b.Version)
	}
	return cmpInt64(a.MergeCount, b.MergeCount)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// WithIncrementedMergeCount returns the name a file takes on after being
// rewritten by a merge (or by the load-collision rename in §4.7.2).
func (n FileName) WithIncrementedMergeCount() FileName {
	n.MergeCount++
	return n
}
