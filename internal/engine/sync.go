package engine

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/synapse/internal/metrics"
	"github.com/lazypower/synapse/internal/store"
)

// synchronizer mirrors graph mutations to the durable store. Mutations are
// queued in the order the engine applied them and written in batches by a
// background loop. A failed write is logged and counted; the in-memory graph
// is never rolled back.
type synchronizer struct {
	db  *store.DB
	log *zap.Logger
	m   *metrics.Collector

	mu      sync.Mutex
	pending []store.Mutation

	// flushMu keeps batches in order when Flush races the loop.
	flushMu sync.Mutex

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newSynchronizer(db *store.DB, interval time.Duration, log *zap.Logger, m *metrics.Collector) *synchronizer {
	s := &synchronizer{
		db:       db,
		log:      log,
		m:        m,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *synchronizer) enqueue(muts ...store.Mutation) {
	if len(muts) == 0 {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, muts...)
	n := len(s.pending)
	s.mu.Unlock()
	s.m.PendingMutations.Set(float64(n))
}

func (s *synchronizer) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *synchronizer) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stop:
			return
		}
	}
}

// flush writes everything queued so far. A batch that fails as a whole is
// retried one mutation at a time so a single bad row does not lose the rest.
func (s *synchronizer) flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	s.m.PendingMutations.Set(0)

	if len(batch) == 0 {
		return nil
	}
	err := s.db.Apply(batch)
	if err == nil {
		return nil
	}
	s.log.Warn("batch write failed, retrying individually",
		zap.Int("mutations", len(batch)), zap.Error(err))

	var errs []error
	for _, mut := range batch {
		if err := s.db.ApplyOne(mut); err != nil {
			s.m.PersistenceFailures.Inc()
			s.log.Error("persistence write failed",
				zap.String("kind", string(KindPersistence)),
				zap.String("table", mut.Table()),
				zap.Any("mutation", mut),
				zap.Error(err))
			errs = append(errs, newError(KindPersistence, "flush", mut.Table(), err))
		}
	}
	return errors.Join(errs...)
}

// close stops the loop and writes whatever is still queued.
func (s *synchronizer) close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return s.flush()
}
