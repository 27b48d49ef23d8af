package domain

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tok := NewToken("abc", "ctxA", "alice", []string{"admin", "admin", " user "}, now, time.Hour, 2*time.Hour)

	assert.Equal(t, "abc", tok.Token)
	assert.Equal(t, "ctxA", tok.Context)
	assert.Equal(t, "alice", tok.User)
	assert.Equal(t, []string{"admin", "user"}, tok.Roles)
	assert.Equal(t, int64(1_700_000_000_000), tok.Created)
	assert.Equal(t, tok.Created, tok.Updated)
	assert.Equal(t, tok.Created+3_600_000, tok.Expiration)
	assert.Equal(t, tok.Created+7_200_000, tok.FinalExpiration)
	assert.GreaterOrEqual(t, tok.Expiration, tok.Created)
	assert.GreaterOrEqual(t, tok.FinalExpiration, tok.Created)
}

func TestToken_IsLive(t *testing.T) {
	now := time.UnixMilli(10_000)
	tok := &Token{Expiration: 20_000, FinalExpiration: 30_000}

	assert.True(t, tok.IsLive(now))
	assert.False(t, tok.IsLive(time.UnixMilli(20_000)), "expiration is exclusive")
	assert.False(t, tok.IsLive(time.UnixMilli(25_000)), "sliding expiration passed")

	tok.Expiration = 40_000
	assert.False(t, tok.IsLive(time.UnixMilli(30_000)), "final expiration passed")
}

func TestToken_HasRole(t *testing.T) {
	tok := &Token{Roles: []string{"admin", "reader"}}

	assert.True(t, tok.HasRole(""))
	assert.True(t, tok.HasRole("reader"))
	assert.False(t, tok.HasRole("writer"))

	empty := &Token{}
	assert.True(t, empty.HasRole(""))
	assert.False(t, empty.HasRole("admin"))
}

func TestToken_Matches(t *testing.T) {
	tok := &Token{Token: "t1", User: "bob", Roles: []string{"admin"}, Expiration: 100, FinalExpiration: 200}

	tests := []struct {
		name   string
		filter TokenFilter
		want   bool
	}{
		{"empty filter", TokenFilter{}, true},
		{"token match", TokenFilter{Token: "t1"}, true},
		{"token mismatch", TokenFilter{Token: "t2"}, false},
		{"user mismatch", TokenFilter{User: "alice"}, false},
		{"live", TokenFilter{Token: "t1", ExpirationAfter: 50, FinalExpirationAfter: 50}, true},
		{"expired", TokenFilter{Token: "t1", ExpirationAfter: 100}, false},
		{"finally expired", TokenFilter{FinalExpirationAfter: 200}, false},
		{"expired before", TokenFilter{ExpirationBefore: 101}, true},
		{"not expired before", TokenFilter{ExpirationBefore: 100}, false},
		{"role match", TokenFilter{Role: "admin"}, true},
		{"role mismatch", TokenFilter{Role: "writer"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Matches(tt.filter))
		})
	}
}

func TestToken_Apply(t *testing.T) {
	t.Run("refresh final", func(t *testing.T) {
		tok := &Token{Updated: 1, Expiration: 10, FinalExpiration: 20}
		final := int64(500)
		tok.Apply(TokenUpdate{Updated: 5, Expiration: 100, FinalExpiration: &final})
		assert.Equal(t, int64(5), tok.Updated)
		assert.Equal(t, int64(100), tok.Expiration)
		assert.Equal(t, int64(500), tok.FinalExpiration)
	})

	t.Run("cap at final", func(t *testing.T) {
		tok := &Token{Updated: 1, Expiration: 10, FinalExpiration: 20}
		tok.Apply(TokenUpdate{Updated: 5, Expiration: 100, CapExpirationAtFinal: true})
		assert.Equal(t, int64(20), tok.Expiration)
		assert.Equal(t, int64(20), tok.FinalExpiration)
	})
}

func TestToken_Clone(t *testing.T) {
	tok := &Token{Token: "a", Roles: []string{"x"}}
	c := tok.Clone()
	c.Roles[0] = "y"
	assert.Equal(t, "x", tok.Roles[0])
}

func TestValidateTokenValue(t *testing.T) {
	require.NoError(t, ValidateTokenValue("12345"))
	require.NoError(t, ValidateTokenValue(strings.Repeat("a", MaxTokenLength)))

	assert.ErrorIs(t, ValidateTokenValue(""), ErrInvalidToken)
	assert.ErrorIs(t, ValidateTokenValue(strings.Repeat("a", MaxTokenLength+1)), ErrInvalidToken)
	assert.ErrorIs(t, ValidateTokenValue("has space"), ErrInvalidToken)
	assert.ErrorIs(t, ValidateTokenValue("tab\there"), ErrInvalidToken)
}

func TestNormalizeRoles(t *testing.T) {
	assert.Equal(t, []string{}, NormalizeRoles(nil))
	assert.Equal(t, []string{"b", "a"}, NormalizeRoles([]string{"b", "", "a", "b", "  "}))
}

func TestTokenContext(t *testing.T) {
	_, ok := TokenFromContext(context.Background())
	assert.False(t, ok)

	tok := &Token{Token: "ctx"}
	got, ok := TokenFromContext(WithToken(context.Background(), tok))
	require.True(t, ok)
	assert.Same(t, tok, got)
}

func TestMillis(t *testing.T) {
	ts := time.Date(2025, 1, 3, 3, 8, 6, 0, time.UTC)
	assert.Equal(t, ts, FromMillis(ToMillis(ts)))
}
