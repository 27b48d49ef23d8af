package mongodb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/pilab-dev/shadow-token/internal/storagetest"
	"github.com/pilab-dev/shadow-token/mongodb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestFilterToBSON(t *testing.T) {
	t.Run("check filter", func(t *testing.T) {
		got := filterToBSON(domain.TokenFilter{Token: "abc", ExpirationAfter: 10, FinalExpirationAfter: 10, Role: "admin"})
		assert.Equal(t, bson.M{
			"token":           "abc",
			"expiration":      bson.M{"$gt": int64(10)},
			"finalExpiration": bson.M{"$gt": int64(10)},
			"roles":           bson.M{"$all": bson.A{"admin"}},
		}, got)
	})

	t.Run("sweep filter", func(t *testing.T) {
		got := filterToBSON(domain.TokenFilter{ExpirationBefore: 99})
		assert.Equal(t, bson.M{"expiration": bson.M{"$lt": int64(99)}}, got)
	})

	t.Run("user filter", func(t *testing.T) {
		assert.Equal(t, bson.M{"user": "alice"}, filterToBSON(domain.TokenFilter{User: "alice"}))
	})

	t.Run("empty filter", func(t *testing.T) {
		assert.Empty(t, filterToBSON(domain.TokenFilter{}))
	})
}

func TestUpdateToBSON(t *testing.T) {
	final := int64(300)

	t.Run("refresh final", func(t *testing.T) {
		got := updateToBSON(domain.TokenUpdate{Updated: 1, Expiration: 200, FinalExpiration: &final})
		assert.Equal(t, bson.M{"$set": bson.M{"updated": int64(1), "expiration": int64(200), "finalExpiration": int64(300)}}, got)
	})

	t.Run("sliding only", func(t *testing.T) {
		got := updateToBSON(domain.TokenUpdate{Updated: 1, Expiration: 200})
		assert.Equal(t, bson.M{"$set": bson.M{"updated": int64(1), "expiration": int64(200)}}, got)
	})

	t.Run("cap with new final", func(t *testing.T) {
		got := updateToBSON(domain.TokenUpdate{Updated: 1, Expiration: 500, FinalExpiration: &final, CapExpirationAtFinal: true})
		assert.Equal(t, bson.M{"$set": bson.M{"updated": int64(1), "expiration": int64(300), "finalExpiration": int64(300)}}, got)
	})

	t.Run("cap at stored final", func(t *testing.T) {
		got := updateToBSON(domain.TokenUpdate{Updated: 1, Expiration: 500, CapExpirationAtFinal: true})
		pipeline, ok := got.(mongo.Pipeline)
		require.True(t, ok, "capping against the stored value needs a pipeline update")
		require.Len(t, pipeline, 1)
		assert.Equal(t, "$set", pipeline[0][0].Key)
	})
}

func TestTokenRepository_Integration(t *testing.T) {
	store := NewTokenStore(testutil.TokenDatabase(t, "test_token_repo"))

	n := 0
	storagetest.RunCollectionSuite(t, func(t *testing.T) domain.TokenCollection {
		n++
		name := fmt.Sprintf("tokens_%d", n)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		require.NoError(t, store.EnsureIndexes(ctx, name))
		return store.Collection(name)
	})
}
