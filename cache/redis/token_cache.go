package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-token/cache"
	"github.com/pilab-dev/shadow-token/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// maxTxRetries bounds optimistic transaction retries on concurrent writes.
const maxTxRetries = 3

// redisToken is the hash layout of a token record.
type redisToken struct {
	Token           string `redis:"token"`
	Context         string `redis:"context"`
	User            string `redis:"user"`
	Roles           string `redis:"roles"` // JSON array
	Created         int64  `redis:"created"`
	Updated         int64  `redis:"updated"`
	Expiration      int64  `redis:"expiration"`
	FinalExpiration int64  `redis:"finalExpiration"`
}

// TokenStore implements domain.CollectionProvider using Redis.
type TokenStore struct {
	client *redis.Client
	prefix string // Optional prefix for keys
}

// NewTokenStore creates a new [TokenStore] instance
func NewTokenStore(client *redis.Client, prefix string) *TokenStore {
	return &TokenStore{
		client: client,
		prefix: prefix,
	}
}

// Collection implements domain.CollectionProvider.
//
//nolint:ireturn
func (s *TokenStore) Collection(name string) domain.TokenCollection {
	return &Collection{client: s.client, prefix: s.prefix, name: name}
}

// Collection is one token collection stored as Redis hashes.
type Collection struct {
	client *redis.Client
	prefix string
	name   string
}

// redisKey returns the Redis key for a given token
func (c *Collection) redisKey(token string) string {
	return fmt.Sprintf("%s:%s:token:%s", c.prefix, c.name, cache.HashToken(token))
}

func (c *Collection) pattern() string {
	return fmt.Sprintf("%s:%s:token:*", c.prefix, c.name)
}

// InsertOne implements domain.TokenCollection.
func (c *Collection) InsertOne(ctx context.Context, token *domain.Token) error {
	key := c.redisKey(token.Token)
	fields, err := encode(token)
	if err != nil {
		return err
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrDuplicateToken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Another client wrote the same key between WATCH and EXEC.
		return domain.ErrDuplicateToken
	}
	if err != nil && !errors.Is(err, domain.ErrDuplicateToken) {
		return fmt.Errorf("failed to set token in Redis: %w", err)
	}
	return err
}

// UpdateOne implements domain.TokenCollection.
func (c *Collection) UpdateOne(ctx context.Context, filter domain.TokenFilter, update domain.TokenUpdate) (domain.UpdateResult, error) {
	key, err := c.firstKey(ctx, filter)
	if err != nil || key == "" {
		return domain.UpdateResult{}, err
	}

	var result domain.UpdateResult
	txf := func(tx *redis.Tx) error {
		tok, err := load(ctx, tx, key)
		if err != nil || tok == nil || !tok.Matches(filter) {
			return err
		}
		tok.Apply(update)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"updated", tok.Updated,
				"expiration", tok.Expiration,
				"finalExpiration", tok.FinalExpiration,
			)
			return nil
		})
		if err == nil {
			result = domain.UpdateResult{MatchedCount: 1, ModifiedCount: 1}
		}
		return err
	}

	for range maxTxRetries {
		err = c.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("failed to update token in Redis: %w", err)
	}
	return result, nil
}

// FindOne implements domain.TokenCollection.
func (c *Collection) FindOne(ctx context.Context, filter domain.TokenFilter) (*domain.Token, error) {
	if filter.Token != "" {
		tok, err := load(ctx, c.client, c.redisKey(filter.Token))
		if err != nil || tok == nil || !tok.Matches(filter) {
			return nil, err
		}
		return tok, nil
	}

	var found *domain.Token
	err := c.scan(ctx, func(_ string, tok *domain.Token) bool {
		if tok.Matches(filter) {
			found = tok
			return false
		}
		return true
	})
	return found, err
}

// DeleteOne implements domain.TokenCollection.
func (c *Collection) DeleteOne(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	if filter == (domain.TokenFilter{Token: filter.Token}) && filter.Token != "" {
		res, err := c.client.Del(ctx, c.redisKey(filter.Token)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to delete token from Redis: %w", err)
		}
		return res, nil
	}

	key, err := c.firstKey(ctx, filter)
	if err != nil || key == "" {
		return 0, err
	}
	res, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete token from Redis: %w", err)
	}
	return res, nil
}

// DeleteMany implements domain.TokenCollection.
func (c *Collection) DeleteMany(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	var keys []string
	err := c.scan(ctx, func(key string, tok *domain.Token) bool {
		if tok.Matches(filter) {
			keys = append(keys, key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	var deleted int64
	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		n, err := c.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete tokens from Redis: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}

// Count returns the number of tokens in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	count := 0
	err := c.scan(ctx, func(string, *domain.Token) bool {
		count++
		return true
	})
	return count, err
}

func (c *Collection) firstKey(ctx context.Context, filter domain.TokenFilter) (string, error) {
	if filter.Token != "" {
		return c.redisKey(filter.Token), nil
	}
	var found string
	err := c.scan(ctx, func(key string, tok *domain.Token) bool {
		if tok.Matches(filter) {
			found = key
			return false
		}
		return true
	})
	return found, err
}

// scan walks every token hash of the collection until fn returns false.
func (c *Collection) scan(ctx context.Context, fn func(key string, tok *domain.Token) bool) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.pattern(), 100).Result()
		if err != nil {
			log.Error().Err(err).Str("collection", c.name).Msg("Error scanning token keys")
			return fmt.Errorf("failed to scan tokens in Redis: %w", err)
		}

		for _, key := range keys {
			tok, err := load(ctx, c.client, key)
			if err != nil {
				return err
			}
			if tok == nil {
				continue // Key might have been deleted in the meantime
			}
			if !fn(key, tok) {
				return nil
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// hashGetter is satisfied by both *redis.Client and *redis.Tx.
type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func load(ctx context.Context, cmd hashGetter, key string) (*domain.Token, error) {
	res := cmd.HGetAll(ctx, key)
	values, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	var rt redisToken
	if err := res.Scan(&rt); err != nil {
		return nil, fmt.Errorf("failed to decode token hash %s: %w", key, err)
	}
	return decode(rt)
}

func encode(t *domain.Token) (map[string]interface{}, error) {
	roles, err := json.Marshal(domain.NormalizeRoles(t.Roles))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal roles: %w", err)
	}
	return map[string]interface{}{
		"token":           t.Token,
		"context":         t.Context,
		"user":            t.User,
		"roles":           string(roles),
		"created":         t.Created,
		"updated":         t.Updated,
		"expiration":      t.Expiration,
		"finalExpiration": t.FinalExpiration,
	}, nil
}

func decode(rt redisToken) (*domain.Token, error) {
	var roles []string
	if rt.Roles != "" {
		if err := json.Unmarshal([]byte(rt.Roles), &roles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal roles: %w", err)
		}
	}
	return &domain.Token{
		Token:           rt.Token,
		Context:         rt.Context,
		User:            rt.User,
		Roles:           domain.NormalizeRoles(roles),
		Created:         rt.Created,
		Updated:         rt.Updated,
		Expiration:      rt.Expiration,
		FinalExpiration: rt.FinalExpiration,
	}, nil
}

var (
	_ domain.CollectionProvider = (*TokenStore)(nil)
	_ domain.TokenCollection    = (*Collection)(nil)
)
