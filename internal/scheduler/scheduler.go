// Package scheduler triggers periodic aggregation runs in a background
// goroutine owned by the Scheduler instance. There is no global job registry;
// callers construct, Start and Stop it explicitly.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/valutatrade/valutatrade-hub/internal/aggregator"
	"github.com/valutatrade/valutatrade-hub/internal/metrics"
)

// Runner is the aggregation entrypoint the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (aggregator.UpdateResult, error)
}

type Scheduler struct {
	runner   Runner
	interval time.Duration
	met      *metrics.RateMetrics
	log      *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	running        bool
	scheduledRuns  int
	successfulRuns int
	failedRuns     int
	lastRun        time.Time
	nextRun        time.Time
}

type Status struct {
	Running        bool
	ScheduledRuns  int
	SuccessfulRuns int
	FailedRuns     int
	LastRun        time.Time
	NextRun        time.Time
	Interval       time.Duration
}

func New(runner Runner, interval time.Duration, met *metrics.RateMetrics, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		met:      met,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background loop. With runImmediately the first run
// happens right away instead of after one interval.
func (s *Scheduler) Start(runImmediately bool) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("scheduler already running")
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info("scheduler starting", "interval", s.interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.doneCh)
		s.loop(ctx, runImmediately)
	}()
}

// Stop signals the loop and waits for it, bounded by timeout. An in-flight
// run is cancelled through its context; the cache's atomic replace guarantees
// it cannot leave a partial snapshot behind either way.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.cancel()

	select {
	case <-s.doneCh:
		s.log.Info("scheduler stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler stop timed out after %s", timeout)
	}
}

func (s *Scheduler) loop(ctx context.Context, runImmediately bool) {
	if runImmediately {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.setNextRun(time.Now().Add(s.interval))

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runOnce(ctx)
			s.setNextRun(time.Now().Add(s.interval))
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	s.scheduledRuns++
	n := s.scheduledRuns
	s.lastRun = time.Now()
	s.mu.Unlock()

	if s.met != nil {
		s.met.ScheduledRuns.Inc()
	}
	s.log.Info("scheduled update starting", "run", n)

	res, err := s.runner.Run(ctx)
	s.mu.Lock()
	if err != nil || !res.Success {
		s.failedRuns++
	} else {
		s.successfulRuns++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("scheduled update failed", "run", n, "err", err)
		return
	}
	s.log.Info("scheduled update done", "run", n, "saved", res.Saved.Total(), "elapsed", res.Elapsed)
}

// RunNow triggers one manual run next to the scheduled loop. Concurrent runs
// are safe: the last completed save wins.
func (s *Scheduler) RunNow(ctx context.Context) (aggregator.UpdateResult, error) {
	return s.runner.Run(ctx)
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRun = t
	s.mu.Unlock()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:        s.running,
		ScheduledRuns:  s.scheduledRuns,
		SuccessfulRuns: s.successfulRuns,
		FailedRuns:     s.failedRuns,
		LastRun:        s.lastRun,
		NextRun:        s.nextRun,
		Interval:       s.interval,
	}
}
