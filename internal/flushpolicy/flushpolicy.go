// Package flushpolicy decides when a writable buffer should be sealed
// and applies that decision asynchronously on a bounded worker pool,
// mirroring the panic-recovering concurrent callback execution idiom
// used for background cycle work.
package flushpolicy

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Buffer is the minimal surface flushpolicy needs from a writable
// buffer; internal/storagegroup's Buffer type satisfies it.
type Buffer interface {
	SizeBytes() int64
	IdleDuration() int64 // milliseconds since last write
	Seal(ctx context.Context) error
}

// Policy decides whether a buffer should be flushed.
type Policy interface {
	ShouldFlush(b Buffer) bool
}

// SizeOrIdlePolicy flushes once a buffer exceeds a size threshold or has
// been idle past a duration threshold, the two triggers a teacher-style
// memtable-sizing policy exposes.
type SizeOrIdlePolicy struct {
	MaxSizeBytes  int64
	MaxIdleMillis int64
}

func (p SizeOrIdlePolicy) ShouldFlush(b Buffer) bool {
	if p.MaxSizeBytes > 0 && b.SizeBytes() >= p.MaxSizeBytes {
		return true
	}
	if p.MaxIdleMillis > 0 && b.IdleDuration() >= p.MaxIdleMillis {
		return true
	}
	return false
}

// Applier runs ShouldFlush/Seal for a set of buffers concurrently,
// bounded by a worker limit, recovering from any panic in an
// individual seal so one bad buffer cannot bring down the sweep.
type Applier struct {
	policy   Policy
	logger   logrus.FieldLogger
	routines int
}

func NewApplier(policy Policy, logger logrus.FieldLogger, routines int) *Applier {
	return &Applier{policy: policy, logger: logger, routines: routines}
}

// Apply evaluates and, where due, seals every buffer in buffers.
func (a *Applier) Apply(ctx context.Context, buffers []Buffer) error {
	eg, ctx := errgroup.WithContext(ctx)
	if a.routines > 0 {
		eg.SetLimit(a.routines)
	}

	for _, b := range buffers {
		b := b
		if !a.policy.ShouldFlush(b) {
			continue
		}
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					a.logger.WithField("action", "flushpolicy").Errorf("seal panic: %v", r)
				}
			}()
			return b.Seal(ctx)
		})
	}

	return eg.Wait()
}
