// Package storagetest holds the behaviour every domain.TokenCollection
// implementation must share. Backends call RunCollectionSuite from their own
// tests with a factory returning an empty collection.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty collection for one subtest.
type Factory func(t *testing.T) domain.TokenCollection

var base = time.UnixMilli(1_735_873_686_000)

func record(value, user string, roles []string, session, final time.Duration) *domain.Token {
	return domain.NewToken(value, "suite", user, roles, base, session, final)
}

// RunCollectionSuite exercises insert, find, update and delete semantics.
func RunCollectionSuite(t *testing.T, newCollection Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("InsertAndFind", func(t *testing.T) {
		coll := newCollection(t)
		tok := record("tok-insert", "alice", []string{"admin", "reader"}, time.Hour, 2*time.Hour)
		require.NoError(t, coll.InsertOne(ctx, tok))

		got, err := coll.FindOne(ctx, domain.TokenFilter{Token: "tok-insert"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tok.Token, got.Token)
		assert.Equal(t, "suite", got.Context)
		assert.Equal(t, "alice", got.User)
		assert.ElementsMatch(t, []string{"admin", "reader"}, got.Roles)
		assert.Equal(t, tok.Created, got.Created)
		assert.Equal(t, tok.Updated, got.Updated)
		assert.Equal(t, tok.Expiration, got.Expiration)
		assert.Equal(t, tok.FinalExpiration, got.FinalExpiration)
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		coll := newCollection(t)
		tok := record("tok-dup", "alice", nil, time.Hour, time.Hour)
		require.NoError(t, coll.InsertOne(ctx, tok))
		assert.ErrorIs(t, coll.InsertOne(ctx, tok), domain.ErrDuplicateToken)
	})

	t.Run("FindMissing", func(t *testing.T) {
		coll := newCollection(t)
		got, err := coll.FindOne(ctx, domain.TokenFilter{Token: "nope"})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("FindWithExpiryAndRole", func(t *testing.T) {
		coll := newCollection(t)
		tok := record("tok-role", "bob", []string{"admin"}, time.Minute, time.Hour)
		require.NoError(t, coll.InsertOne(ctx, tok))

		live := domain.ToMillis(base.Add(30 * time.Second))
		got, err := coll.FindOne(ctx, domain.TokenFilter{Token: tok.Token, ExpirationAfter: live, FinalExpirationAfter: live, Role: "admin"})
		require.NoError(t, err)
		assert.NotNil(t, got)

		got, err = coll.FindOne(ctx, domain.TokenFilter{Token: tok.Token, ExpirationAfter: live, FinalExpirationAfter: live, Role: "writer"})
		require.NoError(t, err)
		assert.Nil(t, got, "role not in set")

		expired := domain.ToMillis(base.Add(2 * time.Minute))
		got, err = coll.FindOne(ctx, domain.TokenFilter{Token: tok.Token, ExpirationAfter: expired, FinalExpirationAfter: expired})
		require.NoError(t, err)
		assert.Nil(t, got, "sliding expiration passed")
	})

	t.Run("UpdateRefreshesFinal", func(t *testing.T) {
		coll := newCollection(t)
		tok := record("tok-upd", "carol", nil, time.Minute, time.Minute)
		require.NoError(t, coll.InsertOne(ctx, tok))

		now := domain.ToMillis(base.Add(10 * time.Minute))
		final := now + 1000
		res, err := coll.UpdateOne(ctx, domain.TokenFilter{Token: tok.Token}, domain.TokenUpdate{
			Updated: now, Expiration: now + 500, FinalExpiration: &final,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.MatchedCount)

		got, err := coll.FindOne(ctx, domain.TokenFilter{Token: tok.Token})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, now, got.Updated)
		assert.Equal(t, now+500, got.Expiration)
		assert.Equal(t, final, got.FinalExpiration)
		assert.Equal(t, tok.Created, got.Created, "created is immutable")
	})

	t.Run("UpdateCapsAtFinal", func(t *testing.T) {
		coll := newCollection(t)
		tok := record("tok-cap", "carol", nil, time.Minute, 2*time.Minute)
		require.NoError(t, coll.InsertOne(ctx, tok))

		now := domain.ToMillis(base.Add(time.Minute))
		_, err := coll.UpdateOne(ctx, domain.TokenFilter{Token: tok.Token}, domain.TokenUpdate{
			Updated: now, Expiration: now + time.Hour.Milliseconds(), CapExpirationAtFinal: true,
		})
		require.NoError(t, err)

		got, err := coll.FindOne(ctx, domain.TokenFilter{Token: tok.Token})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tok.FinalExpiration, got.Expiration)
		assert.Equal(t, tok.FinalExpiration, got.FinalExpiration)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		coll := newCollection(t)
		res, err := coll.UpdateOne(ctx, domain.TokenFilter{Token: "ghost"}, domain.TokenUpdate{Updated: 1, Expiration: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(0), res.MatchedCount)
	})

	t.Run("DeleteOne", func(t *testing.T) {
		coll := newCollection(t)
		tok := record("tok-del", "dave", nil, time.Hour, time.Hour)
		require.NoError(t, coll.InsertOne(ctx, tok))

		n, err := coll.DeleteOne(ctx, domain.TokenFilter{Token: tok.Token})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = coll.DeleteOne(ctx, domain.TokenFilter{Token: tok.Token})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		got, err := coll.FindOne(ctx, domain.TokenFilter{Token: tok.Token})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("DeleteManyExpired", func(t *testing.T) {
		coll := newCollection(t)
		for i, session := range []time.Duration{time.Second, 2 * time.Second, time.Hour} {
			// Final timeout does not matter for the sweep filter.
			require.NoError(t, coll.InsertOne(ctx, record(fmt.Sprintf("tok-exp-%d", i), "erin", nil, session, time.Second)))
		}

		n, err := coll.DeleteMany(ctx, domain.TokenFilter{ExpirationBefore: domain.ToMillis(base.Add(time.Minute))})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := coll.FindOne(ctx, domain.TokenFilter{Token: "tok-exp-2"})
		require.NoError(t, err)
		assert.NotNil(t, got, "record with passed final but live sliding expiration survives the sweep")
	})

	t.Run("DeleteManyByUser", func(t *testing.T) {
		coll := newCollection(t)
		require.NoError(t, coll.InsertOne(ctx, record("u-1", "frank", nil, time.Hour, time.Hour)))
		require.NoError(t, coll.InsertOne(ctx, record("u-2", "frank", nil, time.Hour, time.Hour)))
		require.NoError(t, coll.InsertOne(ctx, record("u-3", "grace", nil, time.Hour, time.Hour)))

		n, err := coll.DeleteMany(ctx, domain.TokenFilter{User: "frank"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		got, err := coll.FindOne(ctx, domain.TokenFilter{Token: "u-3"})
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}
