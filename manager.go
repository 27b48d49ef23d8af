package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/internal/metrics"
	"github.com/pilab-dev/shadow-token/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pilab-dev/shadow-token"

// Manager implements the per-token lifecycle: create, touch, check and
// delete. It owns the default timeouts and the collection name.
type Manager struct {
	provider  domain.CollectionProvider
	generator domain.IDGenerator
	logger    log.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
	policy    FinalPolicy

	mu             sync.RWMutex
	sessionTimeout time.Duration
	finalTimeout   time.Duration
	collectionName string
}

// NewManager creates a Manager over provider.
func NewManager(provider domain.CollectionProvider, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newManager(provider, o)
}

func newManager(provider domain.CollectionProvider, o options) *Manager {
	return &Manager{
		provider:       provider,
		generator:      o.generator,
		logger:         o.logger,
		metrics:        o.metrics,
		tracer:         otel.Tracer(tracerName),
		now:            o.now,
		policy:         o.policy,
		sessionTimeout: o.sessionTimeout,
		finalTimeout:   o.finalTimeout,
		collectionName: o.collectionName,
	}
}

// CreateToken stores a token with a caller supplied value. An empty value
// is replaced by a generated one when a generator is configured.
func (m *Manager) CreateToken(ctx context.Context, value, tokenContext, user string, roles []string, opts ...TimeoutOption) (string, error) {
	if value == "" && m.generator == nil {
		return "", ErrInvalidToken
	}
	return m.create(ctx, value, tokenContext, user, roles, opts)
}

// IssueToken stores a token whose value is produced by the configured generator.
func (m *Manager) IssueToken(ctx context.Context, tokenContext, user string, roles []string, opts ...TimeoutOption) (string, error) {
	if m.generator == nil {
		return "", ErrNoGenerator
	}
	return m.create(ctx, "", tokenContext, user, roles, opts)
}

func (m *Manager) create(ctx context.Context, value, tokenContext, user string, roles []string, opts []TimeoutOption) (string, error) {
	ctx, span := m.tracer.Start(ctx, "token.Create")
	defer span.End()

	if value == "" {
		id, err := m.generator.NewID()
		if err != nil {
			return "", failSpan(span, fmt.Errorf("failed to generate token: %w", err))
		}
		value = id
	}
	if err := domain.ValidateTokenValue(value); err != nil {
		return "", failSpan(span, err)
	}

	session, final := m.resolve(opts)
	record := domain.NewToken(value, tokenContext, user, roles, m.now(), session, final)

	if err := m.collection().InsertOne(ctx, record); err != nil {
		m.metrics.StorageError("insert")
		m.logger.Error(ctx, "Failed to store token", err, map[string]interface{}{"user": user})
		return "", failSpan(span, storageError("insert", err))
	}

	m.metrics.Created()
	span.SetAttributes(attribute.String("token.user", user))
	m.logger.Debug(ctx, "Token created", map[string]interface{}{
		"user":            user,
		"context":         tokenContext,
		"expiration":      record.Expiration,
		"finalExpiration": record.FinalExpiration,
	})
	return value, nil
}

// TouchToken refreshes the expiration of token. Whether finalExpiration
// moves depends on the FinalPolicy. Touching a missing or expired token is
// not an error.
func (m *Manager) TouchToken(ctx context.Context, token string, opts ...TimeoutOption) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	ctx, span := m.tracer.Start(ctx, "token.Touch")
	defer span.End()

	session, final := m.resolve(opts)
	now := domain.ToMillis(m.now())
	update := domain.TokenUpdate{Updated: now, Expiration: now + session.Milliseconds()}
	if m.policy == FinalCeiling {
		update.CapExpirationAtFinal = true
	} else {
		finalExpiration := now + final.Milliseconds()
		update.FinalExpiration = &finalExpiration
	}

	res, err := m.collection().UpdateOne(ctx, domain.TokenFilter{Token: token}, update)
	if err != nil {
		m.metrics.StorageError("update")
		m.logger.Error(ctx, "Failed to touch token", err)
		return "", failSpan(span, storageError("update", err))
	}

	matched := res.MatchedCount > 0
	m.metrics.Touched(matched)
	if !matched {
		m.logger.Debug(ctx, "Touch matched no token")
	}
	return token, nil
}

// CheckToken returns token when it is live and carries role, "" otherwise.
// With touch set, a found token is touched with the default timeouts
// before returning.
func (m *Manager) CheckToken(ctx context.Context, token, role string, touch bool) (string, error) {
	record, err := m.lookup(ctx, token, role, touch)
	if err != nil || record == nil {
		return "", err
	}
	return record.Token, nil
}

// IsTokenValid is CheckToken reporting a found flag.
func (m *Manager) IsTokenValid(ctx context.Context, token, role string, touch bool) (bool, error) {
	record, err := m.lookup(ctx, token, role, touch)
	return record != nil, err
}

// GetToken returns the live record of token.
func (m *Manager) GetToken(ctx context.Context, token string) (*domain.Token, error) {
	record, err := m.lookup(ctx, token, "", false)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrTokenNotFound
	}
	return record, nil
}

// lookup decides liveness on the stored state before any touch.
func (m *Manager) lookup(ctx context.Context, token, role string, touch bool) (*domain.Token, error) {
	if token == "" {
		return nil, nil
	}

	ctx, span := m.tracer.Start(ctx, "token.Check", trace.WithAttributes(
		attribute.String("token.role", role),
		attribute.Bool("token.touch", touch),
	))
	defer span.End()

	now := domain.ToMillis(m.now())
	record, err := m.collection().FindOne(ctx, domain.TokenFilter{
		Token:                token,
		Role:                 role,
		ExpirationAfter:      now,
		FinalExpirationAfter: now,
	})
	if err != nil {
		m.metrics.StorageError("find")
		m.logger.Error(ctx, "Failed to look up token", err)
		return nil, failSpan(span, storageError("find", err))
	}

	m.metrics.Checked(record != nil)
	span.SetAttributes(attribute.Bool("token.found", record != nil))
	if record == nil {
		return nil, nil
	}

	if touch {
		if _, err := m.TouchToken(ctx, token); err != nil {
			return nil, failSpan(span, err)
		}
	}
	return record, nil
}

// DeleteToken removes token. The result is true once the delete has been
// issued, whether or not a record existed.
func (m *Manager) DeleteToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, ErrInvalidToken
	}

	ctx, span := m.tracer.Start(ctx, "token.Delete")
	defer span.End()

	n, err := m.collection().DeleteOne(ctx, domain.TokenFilter{Token: token})
	if err != nil {
		m.metrics.StorageError("delete")
		m.logger.Error(ctx, "Failed to delete token", err)
		return false, failSpan(span, storageError("delete", err))
	}

	m.metrics.Deleted()
	m.logger.Debug(ctx, "Token deleted", map[string]interface{}{"deleted": n})
	return true, nil
}

// DeleteUserTokens removes every token of user and returns how many were removed.
func (m *Manager) DeleteUserTokens(ctx context.Context, user string) (int64, error) {
	if user == "" {
		return 0, ErrInvalidUser
	}

	ctx, span := m.tracer.Start(ctx, "token.DeleteUser")
	defer span.End()

	n, err := m.collection().DeleteMany(ctx, domain.TokenFilter{User: user})
	if err != nil {
		m.metrics.StorageError("delete_user")
		m.logger.Error(ctx, "Failed to delete user tokens", err, map[string]interface{}{"user": user})
		return 0, failSpan(span, storageError("delete_user", err))
	}

	m.logger.Info(ctx, "User tokens deleted", map[string]interface{}{"user": user, "deleted": n})
	return n, nil
}

func (m *Manager) SetSessionTimeout(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidTimeout
	}
	m.mu.Lock()
	m.sessionTimeout = d
	m.mu.Unlock()
	return nil
}

func (m *Manager) SetFinalTimeout(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidTimeout
	}
	m.mu.Lock()
	m.finalTimeout = d
	m.mu.Unlock()
	return nil
}

func (m *Manager) SessionTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionTimeout
}

func (m *Manager) FinalTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finalTimeout
}

func (m *Manager) Policy() FinalPolicy { return m.policy }

// SetCollectionName switches the collection used by subsequent operations.
func (m *Manager) SetCollectionName(name string) error {
	if name == "" {
		return ErrInvalidCollection
	}

	m.mu.Lock()
	previous := m.collectionName
	m.collectionName = name
	m.mu.Unlock()

	if previous != name {
		m.logger.Warn(context.Background(), "Token collection name changed", map[string]interface{}{
			"from": previous,
			"to":   name,
		})
	}
	return nil
}

func (m *Manager) CollectionName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectionName
}

//nolint:ireturn
func (m *Manager) collection() domain.TokenCollection {
	return m.provider.Collection(m.CollectionName())
}

// resolve picks per-call overrides, falling back to the defaults for
// anything omitted or non-positive.
func (m *Manager) resolve(opts []TimeoutOption) (session, final time.Duration) {
	var t timeouts
	for _, opt := range opts {
		opt(&t)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	session, final = m.sessionTimeout, m.finalTimeout
	if t.session > 0 {
		session = t.session
	}
	if t.final > 0 {
		final = t.final
	}
	return session, final
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
