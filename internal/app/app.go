// Package app wires configuration into a storage backend and a token
// service. Both binaries start through it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	token "github.com/pilab-dev/shadow-token"
	"github.com/pilab-dev/shadow-token/cache"
	tokenredis "github.com/pilab-dev/shadow-token/cache/redis"
	"github.com/pilab-dev/shadow-token/config"
	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/idgen"
	"github.com/pilab-dev/shadow-token/internal/metrics"
	"github.com/pilab-dev/shadow-token/log"
	"github.com/pilab-dev/shadow-token/mongodb"
	"github.com/pilab-dev/shadow-token/storage/bolt"
	"github.com/pilab-dev/shadow-token/storage/postgres"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// Store is an opened storage backend.
type Store struct {
	Backend  string
	Provider domain.CollectionProvider

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping checks the backend connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backend connection.
func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// newBackOff is the retry schedule used while opening networked backends.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 10 * time.Second
	return b
}

// retry runs open until it succeeds, ctx ends or cfg.ConnectRetries
// additional attempts failed.
func retry(ctx context.Context, cfg *config.ServerConfig, logger log.Logger, open func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), uint64(cfg.ConnectRetries)), ctx)
	return backoff.RetryNotify(open, policy, func(err error, wait time.Duration) {
		logger.Warn(ctx, "Token storage not reachable, retrying", map[string]interface{}{
			"backend": cfg.StorageBackend,
			"error":   err.Error(),
			"wait":    wait.String(),
		})
	})
}

// instrumentRedis hooks the client into the global OpenTelemetry providers.
func instrumentRedis(cfg *config.ServerConfig, client *redis.Client) error {
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			return fmt.Errorf("failed to instrument Redis tracing: %w", err)
		}
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			return fmt.Errorf("failed to instrument Redis metrics: %w", err)
		}
	}
	return nil
}

// OpenStore connects the backend selected by cfg.StorageBackend. Networked
// backends are retried cfg.ConnectRetries times.
func OpenStore(ctx context.Context, cfg *config.ServerConfig, logger log.Logger) (*Store, error) {
	switch cfg.StorageBackend {
	case config.BackendMongo:
		var client *mongodb.Client
		err := retry(ctx, cfg, logger, func() error {
			var err error
			client, err = mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		store := mongodb.NewTokenStore(client.Database())
		if err := store.EnsureIndexes(ctx, cfg.Collection); err != nil {
			logger.Warn(ctx, "Token indexes not ensured, continuing", map[string]interface{}{"error": err.Error()})
		}
		return &Store{Backend: cfg.StorageBackend, Provider: store, ping: client.Ping, close: client.Close}, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := instrumentRedis(cfg, client); err != nil {
			_ = client.Close()
			return nil, err
		}
		err := retry(ctx, cfg, logger, func() error { return client.Ping(ctx).Err() })
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return &Store{
			Backend:  cfg.StorageBackend,
			Provider: tokenredis.NewTokenStore(client, cfg.RedisPrefix),
			ping:     func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close:    func(context.Context) error { return client.Close() },
		}, nil

	case config.BackendPostgres:
		var store *postgres.TokenStore
		err := retry(ctx, cfg, logger, func() error {
			var err error
			store, err = postgres.Open(ctx, cfg.PostgresDSN)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := store.EnsureSchema(ctx, cfg.Collection); err != nil {
			_ = store.Close()
			return nil, err
		}
		return &Store{
			Backend:  cfg.StorageBackend,
			Provider: store,
			ping:     store.Ping,
			close:    func(context.Context) error { return store.Close() },
		}, nil

	case config.BackendBolt:
		store, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return &Store{Backend: cfg.StorageBackend, Provider: store, close: func(context.Context) error { return store.Close() }}, nil

	case config.BackendMemory:
		store := cache.NewMemoryStore()
		return &Store{Backend: cfg.StorageBackend, Provider: store, close: func(context.Context) error { return store.Close() }}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// NewService builds the token service over store as configured. m may be nil.
func NewService(cfg *config.ServerConfig, store *Store, logger log.Logger, m *metrics.Metrics) (*token.Service, error) {
	policy, err := token.ParseFinalPolicy(cfg.FinalPolicy)
	if err != nil {
		return nil, err
	}
	gen, err := idgen.New(cfg.TokenGenerator)
	if err != nil {
		return nil, err
	}

	return token.New(store.Provider,
		token.WithLogger(logger),
		token.WithGenerator(gen),
		token.WithMetrics(m),
		token.WithCollectionName(cfg.Collection),
		token.WithDefaultSessionTimeout(cfg.SessionTimeout),
		token.WithDefaultFinalTimeout(cfg.FinalTimeout),
		token.WithFinalPolicy(policy),
	), nil
}
