// Package token manages session tokens with a sliding session timeout and a
// final timeout, backed by a pluggable document collection.
package token

import (
	"context"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
)

// Service bundles the lifecycle Manager with the expired token Sweeper and
// its cleanup Scheduler. One Service is created per process.
type Service struct {
	*Manager
	sweeper   *Sweeper
	scheduler *Scheduler
}

// New creates a Service over provider.
func New(provider domain.CollectionProvider, opts ...Option) *Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	manager := newManager(provider, o)
	sweeper := NewSweeper(manager)
	return &Service{
		Manager:   manager,
		sweeper:   sweeper,
		scheduler: NewScheduler(sweeper, o.logger, o.metrics),
	}
}

// DeleteExpiredTokens runs one sweep. See Sweeper.DeleteExpiredTokens.
func (s *Service) DeleteExpiredTokens(ctx context.Context) (bool, error) {
	return s.sweeper.DeleteExpiredTokens(ctx)
}

func (s *Service) SweepInFlight() bool {
	return s.sweeper.InFlight()
}

// Cleanup starts, restarts or queries periodic sweeping. See Scheduler.Cleanup.
func (s *Service) Cleanup(frequency time.Duration) time.Duration {
	return s.scheduler.Cleanup(frequency)
}

func (s *Service) CleanupStatus() time.Duration {
	return s.scheduler.Status()
}

func (s *Service) StopCleanup() {
	s.scheduler.StopCleanup()
}

// Close stops cleanup and waits for a running sweep to finish.
func (s *Service) Close() error {
	s.scheduler.StopCleanup()
	s.scheduler.Wait()
	return nil
}
