package idgen

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pilab-dev/shadow-token/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUID(t *testing.T) {
	a, err := UUID{}.NewID()
	require.NoError(t, err)
	b, err := UUID{}.NewID()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NoError(t, domain.ValidateTokenValue(a))
}

func TestULID(t *testing.T) {
	fixed := time.Date(2025, 1, 3, 3, 8, 6, 0, time.UTC)
	g := ULID{Now: func() time.Time { return fixed }}

	a, err := g.NewID()
	require.NoError(t, err)
	b, err := g.NewID()
	require.NoError(t, err)

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
	parsed, err := ulid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(fixed), parsed.Time())
}

func TestNew(t *testing.T) {
	g, err := New("")
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = New("caller")
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = New(KindUUID)
	require.NoError(t, err)
	assert.IsType(t, UUID{}, g)

	g, err = New(KindULID)
	require.NoError(t, err)
	assert.IsType(t, ULID{}, g)

	_, err = New("snowflake")
	assert.Error(t, err)
}
