package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/internal/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *TokenStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close(), "Failed to close bolt store")
	})
	return store
}

func TestCollection_Suite(t *testing.T) {
	store := setupTestDB(t)
	n := 0
	storagetest.RunCollectionSuite(t, func(t *testing.T) domain.TokenCollection {
		n++
		return store.Collection(fmt.Sprintf("tokens_%d", n))
	})
}

func TestCollection_MissingBucket(t *testing.T) {
	store := setupTestDB(t)
	coll := store.Collection("never_written")
	ctx := context.Background()

	got, err := coll.FindOne(ctx, domain.TokenFilter{Token: "x"})
	require.NoError(t, err)
	assert.Nil(t, got)

	res, err := coll.UpdateOne(ctx, domain.TokenFilter{Token: "x"}, domain.TokenUpdate{Updated: 1, Expiration: 2})
	require.NoError(t, err)
	assert.Zero(t, res.MatchedCount)

	n, err := coll.DeleteMany(ctx, domain.TokenFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTokenStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	tok := domain.NewToken("persisted", "c", "u", []string{"admin"}, time.Now(), time.Hour, time.Hour)
	require.NoError(t, store.Collection("tokens").InsertOne(ctx, tok))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Collection("tokens").FindOne(ctx, domain.TokenFilter{Token: "persisted", Role: "admin"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tok.Expiration, got.Expiration)
}
