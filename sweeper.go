package token

import (
	"context"
	"sync/atomic"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/internal/metrics"
)

// Sweeper deletes expired tokens. At most one sweep runs at a time.
type Sweeper struct {
	manager  *Manager
	inFlight atomic.Bool
}

func NewSweeper(manager *Manager) *Sweeper {
	return &Sweeper{manager: manager}
}

// DeleteExpiredTokens removes every record whose sliding expiration has
// passed. finalExpiration is not consulted.
//
// It returns false without error when another sweep is still in flight.
// A storage failure is returned with ran set, and the next call sweeps again.
func (s *Sweeper) DeleteExpiredTokens(ctx context.Context) (bool, error) {
	m := s.manager
	if !s.inFlight.CompareAndSwap(false, true) {
		m.metrics.Sweep(metrics.SweepBusy, 0)
		m.logger.Debug(ctx, "Sweep already in flight, skipping")
		return false, nil
	}
	defer s.inFlight.Store(false)

	ctx, span := m.tracer.Start(ctx, "token.Sweep")
	defer span.End()

	now := domain.ToMillis(m.now())
	deleted, err := m.collection().DeleteMany(ctx, domain.TokenFilter{ExpirationBefore: now})
	if err != nil {
		m.metrics.Sweep(metrics.SweepFailed, 0)
		m.metrics.StorageError("sweep")
		m.logger.Error(ctx, "Failed to delete expired tokens", err)
		return true, failSpan(span, storageError("sweep", err))
	}

	m.metrics.Sweep(metrics.SweepRan, deleted)
	m.logger.Debug(ctx, "Expired tokens deleted", map[string]interface{}{"deleted": deleted})
	return true, nil
}

// InFlight reports whether a sweep is currently running.
func (s *Sweeper) InFlight() bool {
	return s.inFlight.Load()
}
