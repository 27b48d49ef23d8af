package cache

import (
	"context"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/internal/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCollection_Suite(t *testing.T) {
	storagetest.RunCollectionSuite(t, func(t *testing.T) domain.TokenCollection {
		store := NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })
		return store.Collection("tokens")
	})
}

func TestMemoryStore_CollectionsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	tok := domain.NewToken("iso", "c", "u", nil, time.Now(), time.Hour, time.Hour)
	require.NoError(t, store.Collection("a").InsertOne(ctx, tok))

	got, err := store.Collection("b").FindOne(ctx, domain.TokenFilter{Token: "iso"})
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Same(t, store.Collection("a"), store.Collection("a"))
	assert.Equal(t, 1, store.Collection("a").(*MemoryCollection).Count())
}

func TestMemoryCollection_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	coll := store.Collection("tokens")

	tok := domain.NewToken("copy", "c", "u", []string{"admin"}, time.Now(), time.Hour, time.Hour)
	require.NoError(t, coll.InsertOne(ctx, tok))
	tok.Roles[0] = "mutated"

	got, err := coll.FindOne(ctx, domain.TokenFilter{Token: "copy"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"admin"}, got.Roles)
}

func TestHashToken(t *testing.T) {
	h := HashToken("12345")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashToken("12345"))
	assert.NotEqual(t, h, HashToken("12346"))
}
