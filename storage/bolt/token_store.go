// Package bolt stores token collections in an embedded bbolt database file,
// one bucket per collection, keyed by token value.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

// TokenStore is a bbolt backed domain.CollectionProvider.
type TokenStore struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*TokenStore, error) {
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Info().Str("dir", dir).Msg("Database directory does not exist, creating it.")
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", dbPath, err)
	}
	log.Info().Str("path", dbPath).Msg("BBoltDB initialized successfully.")
	return &TokenStore{db: db}, nil
}

// Collection implements domain.CollectionProvider. The bucket is created on
// first write.
//
//nolint:ireturn
func (s *TokenStore) Collection(name string) domain.TokenCollection {
	return &Collection{db: s.db, bucket: []byte(name)}
}

// Close closes the database.
func (s *TokenStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Collection is one bucket of token records.
type Collection struct {
	db     *bbolt.DB
	bucket []byte
}

// InsertOne implements domain.TokenCollection.
func (c *Collection) InsertOne(_ context.Context, token *domain.Token) error {
	value, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(c.bucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
		}
		if b.Get([]byte(token.Token)) != nil {
			return domain.ErrDuplicateToken
		}
		return b.Put([]byte(token.Token), value)
	})
}

// UpdateOne implements domain.TokenCollection.
func (c *Collection) UpdateOne(_ context.Context, filter domain.TokenFilter, update domain.TokenUpdate) (domain.UpdateResult, error) {
	var result domain.UpdateResult
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		key, tok, err := first(b, filter)
		if err != nil || tok == nil {
			return err
		}
		tok.Apply(update)
		value, err := json.Marshal(tok)
		if err != nil {
			return fmt.Errorf("failed to encode token: %w", err)
		}
		if err := b.Put(key, value); err != nil {
			return err
		}
		result = domain.UpdateResult{MatchedCount: 1, ModifiedCount: 1}
		return nil
	})
	return result, err
}

// FindOne implements domain.TokenCollection.
func (c *Collection) FindOne(_ context.Context, filter domain.TokenFilter) (*domain.Token, error) {
	var found *domain.Token
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		var err error
		_, found, err = first(b, filter)
		return err
	})
	return found, err
}

// DeleteOne implements domain.TokenCollection.
func (c *Collection) DeleteOne(_ context.Context, filter domain.TokenFilter) (int64, error) {
	var deleted int64
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}
		key, tok, err := first(b, filter)
		if err != nil || tok == nil {
			return err
		}
		if err := b.Delete(key); err != nil {
			return fmt.Errorf("failed to delete key %s from bucket %s: %w", key, c.bucket, err)
		}
		deleted = 1
		return nil
	})
	return deleted, err
}

// DeleteMany implements domain.TokenCollection.
func (c *Collection) DeleteMany(_ context.Context, filter domain.TokenFilter) (int64, error) {
	var deleted int64
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return nil
		}

		// Keys are collected first: deleting while iterating a cursor skips entries.
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			tok, err := decode(v)
			if err != nil {
				return err
			}
			if tok.Matches(filter) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := b.Delete(key); err != nil {
				return fmt.Errorf("failed to delete key %s from bucket %s: %w", key, c.bucket, err)
			}
		}
		deleted = int64(len(keys))
		return nil
	})
	return deleted, err
}

// first returns the first record in b matching filter. Values returned by
// bbolt are only valid inside the transaction, decode copies them.
func first(b *bbolt.Bucket, filter domain.TokenFilter) ([]byte, *domain.Token, error) {
	if filter.Token != "" {
		key := []byte(filter.Token)
		v := b.Get(key)
		if v == nil {
			return nil, nil, nil
		}
		tok, err := decode(v)
		if err != nil || !tok.Matches(filter) {
			return nil, nil, err
		}
		return key, tok, nil
	}

	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		tok, err := decode(v)
		if err != nil {
			return nil, nil, err
		}
		if tok.Matches(filter) {
			return append([]byte(nil), k...), tok, nil
		}
	}
	return nil, nil, nil
}

func decode(v []byte) (*domain.Token, error) {
	var tok domain.Token
	if err := json.Unmarshal(v, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &tok, nil
}

var (
	_ domain.CollectionProvider = (*TokenStore)(nil)
	_ domain.TokenCollection    = (*Collection)(nil)
)
