package engine

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// writerWeight is the full semaphore weight. A writer holds all of it, each
// reader holds one unit.
const writerWeight = 1 << 30

// graphLock is a reader/writer lock whose acquisition gives up after a bounded
// wait. Waiters are served in FIFO order, so a queued writer holds back
// readers that arrive after it.
type graphLock struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

func newGraphLock(timeout time.Duration) *graphLock {
	return &graphLock{sem: semaphore.NewWeighted(writerWeight), timeout: timeout}
}

// Lock takes exclusive access. The returned func releases it.
func (l *graphLock) Lock(ctx context.Context, op string) (func(), error) {
	return l.acquire(ctx, op, writerWeight)
}

// RLock takes shared access. The returned func releases it.
func (l *graphLock) RLock(ctx context.Context, op string) (func(), error) {
	return l.acquire(ctx, op, 1)
}

func (l *graphLock) acquire(ctx context.Context, op string, n int64) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.sem.Acquire(ctx, n); err != nil {
		return nil, newError(KindResource, op, "graph lock not acquired within "+l.timeout.String(), err)
	}
	return func() { l.sem.Release(n) }, nil
}
