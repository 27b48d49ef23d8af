package token

import (
	"context"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-token/cache"
	"github.com/pilab-dev/shadow-token/idgen"
	"github.com/pilab-dev/shadow-token/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Lifecycle(t *testing.T) {
	store := cache.NewMemoryStore()
	clock := newFakeClock()
	m := metrics.New(prometheus.NewRegistry())

	svc := New(store,
		WithClock(clock.Now),
		WithGenerator(idgen.ULID{Now: clock.Now}),
		WithMetrics(m),
		WithCollectionName("sessions"),
		WithDefaultSessionTimeout(time.Minute),
		WithDefaultFinalTimeout(time.Hour),
		WithFinalPolicy(FinalCeiling),
	)
	t.Cleanup(func() { require.NoError(t, svc.Close()) })
	ctx := context.Background()

	assert.Equal(t, "sessions", svc.CollectionName())
	assert.Equal(t, time.Minute, svc.SessionTimeout())
	assert.Equal(t, time.Hour, svc.FinalTimeout())
	assert.Equal(t, FinalCeiling, svc.Policy())

	tok, err := svc.IssueToken(ctx, "cli", "alice", []string{"admin"})
	require.NoError(t, err)
	assert.Len(t, tok, 26)

	ok, err := svc.IsTokenValid(ctx, tok, "admin", true)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	ran, err := svc.DeleteExpiredTokens(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, svc.SweepInFlight())

	ok, err = svc.IsTokenValid(ctx, tok, "", false)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensCreatedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensTouchedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweptTokensTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepsTotal.WithLabelValues(metrics.SweepRan)))
}

func TestService_Cleanup(t *testing.T) {
	svc := New(cache.NewMemoryStore())

	assert.Equal(t, time.Duration(0), svc.Cleanup(0))
	assert.Equal(t, time.Minute, svc.Cleanup(time.Minute))
	assert.Equal(t, time.Minute, svc.CleanupStatus())

	svc.StopCleanup()
	assert.Equal(t, time.Duration(0), svc.CleanupStatus())

	svc.Cleanup(time.Minute)
	require.NoError(t, svc.Close())
	assert.Equal(t, time.Duration(0), svc.CleanupStatus())
}

func TestParseFinalPolicy(t *testing.T) {
	p, err := ParseFinalPolicy("")
	require.NoError(t, err)
	assert.Equal(t, FinalRefresh, p)

	p, err = ParseFinalPolicy(" Ceiling ")
	require.NoError(t, err)
	assert.Equal(t, FinalCeiling, p)
	assert.Equal(t, "ceiling", p.String())

	_, err = ParseFinalPolicy("forever")
	assert.Error(t, err)
}
