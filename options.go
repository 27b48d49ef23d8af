package token

import (
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/internal/metrics"
	"github.com/pilab-dev/shadow-token/log"
)

const (
	// DefaultSessionTimeout is the sliding timeout applied when a call
	// carries no override.
	DefaultSessionTimeout = time.Hour

	// DefaultFinalTimeout is effectively unbounded.
	DefaultFinalTimeout = 100 * 365 * 24 * time.Hour

	DefaultCollectionName = "tokens"
)

type options struct {
	logger         log.Logger
	generator      domain.IDGenerator
	now            func() time.Time
	metrics        *metrics.Metrics
	collectionName string
	sessionTimeout time.Duration
	finalTimeout   time.Duration
	policy         FinalPolicy
}

func defaultOptions() options {
	return options{
		logger:         log.Nop(),
		now:            time.Now,
		collectionName: DefaultCollectionName,
		sessionTimeout: DefaultSessionTimeout,
		finalTimeout:   DefaultFinalTimeout,
		policy:         FinalRefresh,
	}
}

// Option configures a Manager or Service.
type Option func(*options)

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithGenerator enables the server generated token mode.
func WithGenerator(gen domain.IDGenerator) Option {
	return func(o *options) { o.generator = gen }
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithCollectionName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collectionName = name
		}
	}
}

// WithDefaultSessionTimeout sets the process default session timeout.
// Non-positive values are ignored.
func WithDefaultSessionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sessionTimeout = d
		}
	}
}

// WithDefaultFinalTimeout sets the process default final timeout.
// Non-positive values are ignored.
func WithDefaultFinalTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.finalTimeout = d
		}
	}
}

func WithFinalPolicy(p FinalPolicy) Option {
	return func(o *options) { o.policy = p }
}

type timeouts struct {
	session time.Duration
	final   time.Duration
}

// TimeoutOption overrides a default timeout for a single create or touch.
type TimeoutOption func(*timeouts)

func WithSessionTimeout(d time.Duration) TimeoutOption {
	return func(t *timeouts) { t.session = d }
}

func WithFinalTimeout(d time.Duration) TimeoutOption {
	return func(t *timeouts) { t.final = d }
}
