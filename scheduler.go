package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pilab-dev/shadow-token/internal/metrics"
	"github.com/pilab-dev/shadow-token/log"
)

// Scheduler drives a Sweeper on a fixed period.
type Scheduler struct {
	sweeper *Sweeper
	logger  log.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	frequency time.Duration
	cancel    context.CancelFunc
	done      chan struct{}

	ticks sync.WaitGroup
}

func NewScheduler(sweeper *Sweeper, logger log.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Scheduler{sweeper: sweeper, logger: logger, metrics: m}
}

// Cleanup (re)starts periodic sweeping every frequency and returns it. A
// running loop is stopped first. A non-positive frequency only queries the
// status: it returns the active frequency, or 0 when nothing is running.
func (s *Scheduler) Cleanup(frequency time.Duration) time.Duration {
	if frequency <= 0 {
		return s.Status()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.frequency = frequency
	s.cancel = cancel
	s.done = done

	go s.loop(ctx, frequency, done)

	s.metrics.SetCleanupFrequency(frequency.Seconds())
	s.logger.Info(ctx, "Token cleanup started", map[string]interface{}{"frequency": frequency.String()})
	return frequency
}

// Status returns the active frequency, 0 when cleanup is not running.
func (s *Scheduler) Status() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

// StopCleanup stops future ticks. A sweep already running completes.
// Calling it while stopped is a no-op.
func (s *Scheduler) StopCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.stopLocked()
	s.metrics.SetCleanupFrequency(0)
	s.logger.Info(context.Background(), "Token cleanup stopped")
}

func (s *Scheduler) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.frequency = 0
}

// Wait blocks until the most recently started loop has exited and its
// ticks have finished. It blocks forever while cleanup keeps running.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	s.ticks.Wait()
}

func (s *Scheduler) loop(ctx context.Context, frequency time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ticks.Add(1)
			// The sweep must outlive a stop issued while it runs.
			go s.tick(context.WithoutCancel(ctx))
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer s.ticks.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "Token cleanup tick panicked", fmt.Errorf("panic: %v", r))
		}
	}()

	ran, err := s.sweeper.DeleteExpiredTokens(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Token cleanup tick failed, will retry next tick", map[string]interface{}{"error": err.Error()})
		return
	}
	if !ran {
		s.logger.Debug(ctx, "Previous sweep still running, tick skipped")
	}
}
