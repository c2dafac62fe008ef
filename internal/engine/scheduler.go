package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CycleReport summarizes one run of the three background passes.
type CycleReport struct {
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Inferred   int               `json:"inferred"`
	Pruned     int               `json:"pruned"`
	Reinforced int               `json:"reinforced"`
	Clusters   int               `json:"clusters"`
	Errors     map[string]string `json:"errors,omitempty"`
	// Shared is true when the caller joined a cycle that was already running.
	Shared bool `json:"shared"`
}

// Scheduler runs inference, maintenance and clustering on a fixed interval.
// Cycles never overlap: a manual RunCycle during a running cycle waits for it
// and receives its report.
type Scheduler struct {
	e        *Engine
	interval time.Duration
	group    singleflight.Group

	cycles atomic.Int64
	last   atomic.Pointer[CycleReport]

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func newScheduler(e *Engine, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{e: e, interval: interval}
}

// Scheduler returns the engine's scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.sched }

// Start launches the ticker loop. Calling Start twice, or after Stop, does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.stopped {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.e.log.Info("scheduler started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ticker.C:
				s.RunCycle(ctx)
			case <-ctx.Done():
				s.e.log.Info("scheduler stopped")
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.stopped = true
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Cycles returns how many cycles have completed.
func (s *Scheduler) Cycles() int64 { return s.cycles.Load() }

// Last returns the report of the latest completed cycle, or nil.
func (s *Scheduler) Last() *CycleReport { return s.last.Load() }

// RunCycle runs one cycle now, or joins the one in progress.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	v, _, shared := s.group.Do("cycle", func() (any, error) {
		return s.cycle(ctx), nil
	})
	report := v.(CycleReport)
	report.Shared = shared
	return report
}

func (s *Scheduler) cycle(ctx context.Context) CycleReport {
	report := CycleReport{StartedAt: s.e.now()}
	start := time.Now()

	s.pass(ctx, &report, "inference", func(ctx context.Context) error {
		n, err := s.e.runInference(ctx)
		report.Inferred = n
		return err
	})
	s.pass(ctx, &report, "maintenance", func(ctx context.Context) error {
		res, err := s.e.runMaintenance(ctx)
		report.Pruned = len(res.Pruned)
		report.Reinforced = len(res.Reinforced)
		return err
	})
	s.pass(ctx, &report, "clustering", func(ctx context.Context) error {
		clusters, err := s.e.runClustering(ctx)
		report.Clusters = len(clusters)
		return err
	})

	report.Duration = time.Since(start)
	s.cycles.Add(1)
	saved := report
	s.last.Store(&saved)

	s.e.log.Debug("cycle complete",
		zap.Int("inferred", report.Inferred),
		zap.Int("pruned", report.Pruned),
		zap.Int("reinforced", report.Reinforced),
		zap.Int("clusters", report.Clusters),
		zap.Duration("duration", report.Duration))
	return report
}

// pass runs fn, turning errors and panics into a logged maintenance error so
// the remaining passes still run.
func (s *Scheduler) pass(ctx context.Context, report *CycleReport, name string, fn func(context.Context) error) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx)
	}()
	s.e.m.CycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}

	merr := newError(KindMaintenance, name, "pass skipped", err)
	if report.Errors == nil {
		report.Errors = make(map[string]string)
	}
	report.Errors[name] = merr.Error()
	s.e.m.CycleFailures.WithLabelValues(name).Inc()
	s.e.log.Error("background pass failed", zap.String("pass", name), zap.Error(merr))
}
