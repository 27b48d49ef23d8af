package cache

import (
	"context"
	"sync"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pilab-dev/shadow-token/domain"
)

// MemoryStore implements domain.CollectionProvider using ttlcache.
// Records are stored without TTL: expiry is decided by the token service and
// removed by its sweeper, exactly like the document store backends.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*MemoryCollection
}

// NewMemoryStore creates a new in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*MemoryCollection),
	}
}

// Collection implements domain.CollectionProvider.
//
//nolint:ireturn
func (s *MemoryStore) Collection(name string) domain.TokenCollection {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[name]
	if !ok {
		coll = newMemoryCollection()
		s.collections[name] = coll
	}
	return coll
}

// Close drops every collection. The caches are never started since items
// carry no TTL, so there is no cleanup goroutine to stop.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, coll := range s.collections {
		coll.cache.DeleteAll()
		delete(s.collections, name)
	}
	return nil
}

// MemoryCollection is a single in-memory token collection.
type MemoryCollection struct {
	// mu serializes compound read-modify-write operations.
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *domain.Token]
}

func newMemoryCollection() *MemoryCollection {
	return &MemoryCollection{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *domain.Token](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[string, *domain.Token](),
		),
	}
}

// InsertOne implements domain.TokenCollection.
func (c *MemoryCollection) InsertOne(_ context.Context, token *domain.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := HashToken(token.Token)
	if c.cache.Has(key) {
		return domain.ErrDuplicateToken
	}
	c.cache.Set(key, token.Clone(), ttlcache.NoTTL)
	return nil
}

// UpdateOne implements domain.TokenCollection.
func (c *MemoryCollection) UpdateOne(_ context.Context, filter domain.TokenFilter, update domain.TokenUpdate) (domain.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, tok := c.findLocked(filter)
	if tok == nil {
		return domain.UpdateResult{}, nil
	}
	updated := tok.Clone()
	updated.Apply(update)
	c.cache.Set(key, updated, ttlcache.NoTTL)

	return domain.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

// FindOne implements domain.TokenCollection.
func (c *MemoryCollection) FindOne(_ context.Context, filter domain.TokenFilter) (*domain.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, tok := c.findLocked(filter)
	if tok == nil {
		return nil, nil
	}
	return tok.Clone(), nil
}

// DeleteOne implements domain.TokenCollection.
func (c *MemoryCollection) DeleteOne(_ context.Context, filter domain.TokenFilter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, tok := c.findLocked(filter)
	if tok == nil {
		return 0, nil
	}
	c.cache.Delete(key)
	return 1, nil
}

// DeleteMany implements domain.TokenCollection.
func (c *MemoryCollection) DeleteMany(_ context.Context, filter domain.TokenFilter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	c.cache.Range(func(item *ttlcache.Item[string, *domain.Token]) bool {
		if item.Value().Matches(filter) {
			keys = append(keys, item.Key())
		}
		return true
	})
	for _, key := range keys {
		c.cache.Delete(key)
	}
	return int64(len(keys)), nil
}

// Count counts the number of tokens in the collection.
func (c *MemoryCollection) Count() int {
	return c.cache.Len()
}

func (c *MemoryCollection) findLocked(filter domain.TokenFilter) (string, *domain.Token) {
	if filter.Token != "" {
		key := HashToken(filter.Token)
		item := c.cache.Get(key)
		if item == nil || !item.Value().Matches(filter) {
			return "", nil
		}
		return key, item.Value()
	}

	var (
		foundKey string
		found    *domain.Token
	)
	c.cache.Range(func(item *ttlcache.Item[string, *domain.Token]) bool {
		if item.Value().Matches(filter) {
			foundKey, found = item.Key(), item.Value()
			return false
		}
		return true
	})
	return foundKey, found
}

var (
	_ domain.CollectionProvider = (*MemoryStore)(nil)
	_ domain.TokenCollection    = (*MemoryCollection)(nil)
)
