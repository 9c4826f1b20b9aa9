// Package cyclemanager runs a single periodic background concern — TTL
// sweeping or merge-completion polling — on its own ticker, with
// panic-recovering concurrent execution of whatever callbacks are
// registered against it.
package cyclemanager

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ShouldBreakFunc reports whether a long-running cycle callback should
// abort early because a stop was requested.
type ShouldBreakFunc func() bool

// CycleFunc performs one unit of periodic work. The return value
// indicates whether it actually did anything.
type CycleFunc func(shouldBreak ShouldBreakFunc) bool

// UnregisterFunc removes a previously registered CycleFunc.
type UnregisterFunc func()

// CycleManager drives a set of CycleFuncs on a fixed interval until
// stopped.
type CycleManager struct {
	mu       sync.RWMutex
	logger   logrus.FieldLogger
	interval time.Duration
	routines int

	running    bool
	stopSignal chan struct{}
	nextID     uint64
	callbacks  map[uint64]CycleFunc
}

func New(logger logrus.FieldLogger, interval time.Duration, maxConcurrentCallbacks int) *CycleManager {
	return &CycleManager{
		logger:     logger,
		interval:   interval,
		routines:   maxConcurrentCallbacks,
		stopSignal: make(chan struct{}, 1),
		callbacks:  map[uint64]CycleFunc{},
	}
}

func (c *CycleManager) Register(fn CycleFunc) UnregisterFunc {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.callbacks[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.callbacks, id)
	}
}

// Start runs the cycle loop in a new goroutine. It is a no-op if
// already running.
func (c *CycleManager) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go c.loop()
}

func (c *CycleManager) loop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSignal:
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.runOnce()
		}
	}
}

func (c *CycleManager) runOnce() {
	c.mu.RLock()
	fns := make([]CycleFunc, 0, len(c.callbacks))
	for _, fn := range c.callbacks {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()

	eg := &errgroup.Group{}
	if c.routines > 0 {
		eg.SetLimit(c.routines)
	}

	shouldBreak := func() bool {
		select {
		case <-c.stopSignal:
			return true
		default:
			return false
		}
	}

	for _, fn := range fns {
		fn := fn
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					c.logger.WithField("action", "cyclemanager").Errorf("callback panic: %v", r)
				}
			}()
			fn(shouldBreak)
			return nil
		})
	}

	_ = eg.Wait()
}

// StopAndWait requests the loop to stop and blocks until it has, or ctx
// expires first.
func (c *CycleManager) StopAndWait(ctx context.Context) error {
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()
	if !running {
		return nil
	}

	select {
	case c.stopSignal <- struct{}{}:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
			c.mu.RLock()
			running := c.running
			c.mu.RUnlock()
			if !running {
				return nil
			}
		}
	}
}

func (c *CycleManager) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}
