package storagegroup

import (
	"time"

	"github.com/pkg/errors"
)

// MergeFileStrategy names one of the two file-selection strategies a
// MergeCoordinator can use.
type MergeFileStrategy string

const (
	MaxFileNum   MergeFileStrategy = "MAX_FILE_NUM"
	MaxSeriesNum MergeFileStrategy = "MAX_SERIES_NUM"
)

// config holds every item on the configuration surface, built up by
// Option closures before a Processor is constructed.
type config struct {
	dataDirs                     []string
	concurrentWritingPartitions  int
	mergeMemoryBudgetBytes       int64
	mergeFileStrategy            MergeFileStrategy
	forceFullMerge               bool
	continueMergeAfterReboot     bool
	enableWAL                    bool
	dataTTLMillis                int64 // 0 means no TTL
	partitionIntervalMillis      int64
}

func defaultConfig() config {
	return config{
		concurrentWritingPartitions: 1,
		mergeMemoryBudgetBytes:      256 * 1024 * 1024,
		mergeFileStrategy:           MaxFileNum,
		forceFullMerge:              false,
		continueMergeAfterReboot:    true,
		enableWAL:                   true,
		dataTTLMillis:               0,
		partitionIntervalMillis:     int64((7 * 24 * time.Hour) / time.Millisecond),
	}
}

// Option mutates a Processor's configuration before construction
// completes, the same closure-over-private-struct pattern used to
// configure a storage bucket.
type Option func(*config) error

func WithDataDirs(dirs ...string) Option {
	return func(c *config) error {
		if len(dirs) == 0 {
			return errors.New("at least one data directory is required")
		}
		c.dataDirs = dirs
		return nil
	}
}

func WithConcurrentWritingPartitions(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return errors.Errorf("concurrent writing partitions must be positive, got %d", n)
		}
		c.concurrentWritingPartitions = n
		return nil
	}
}

func WithMergeMemoryBudget(bytes int64) Option {
	return func(c *config) error {
		if bytes <= 0 {
			return errors.Errorf("merge memory budget must be positive, got %d", bytes)
		}
		c.mergeMemoryBudgetBytes = bytes
		return nil
	}
}

func WithMergeFileStrategy(strategy MergeFileStrategy) Option {
	return func(c *config) error {
		if strategy != MaxFileNum && strategy != MaxSeriesNum {
			return errors.Errorf("unknown merge file strategy %q", strategy)
		}
		c.mergeFileStrategy = strategy
		return nil
	}
}

func WithForceFullMerge(force bool) Option {
	return func(c *config) error {
		c.forceFullMerge = force
		return nil
	}
}

func WithContinueMergeAfterReboot(resume bool) Option {
	return func(c *config) error {
		c.continueMergeAfterReboot = resume
		return nil
	}
}

func WithEnableWAL(enable bool) Option {
	return func(c *config) error {
		c.enableWAL = enable
		return nil
	}
}

func WithDataTTL(ttl time.Duration) Option {
	return func(c *config) error {
		if ttl < 0 {
			return errors.New("TTL must not be negative")
		}
		c.dataTTLMillis = int64(ttl / time.Millisecond)
		return nil
	}
}

func WithPartitionInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval <= 0 {
			return errors.New("partition interval must be positive")
		}
		c.partitionIntervalMillis = int64(interval / time.Millisecond)
		return nil
	}
}
