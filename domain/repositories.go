package domain

import (
	"context"
)

// TokenFilter selects token records. Zero-valued fields impose no constraint.
// Timestamps are milliseconds since epoch.
type TokenFilter struct {
	Token string
	User  string
	// Role must be contained in the record's role set.
	Role string

	ExpirationAfter      int64 // expiration > value
	FinalExpirationAfter int64 // finalExpiration > value
	ExpirationBefore     int64 // expiration < value
}

// TokenUpdate describes a touch of a token record.
type TokenUpdate struct {
	Updated    int64
	Expiration int64
	// FinalExpiration is left untouched when nil.
	FinalExpiration *int64
	// CapExpirationAtFinal lowers the new expiration to the stored
	// finalExpiration when it would exceed it.
	CapExpirationAtFinal bool
}

// UpdateResult reports how many records an update matched.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// TokenCollection is the storage adapter for one token collection.
//
//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type TokenCollection interface {
	// InsertOne stores a new record. Returns ErrDuplicateToken if the key exists.
	InsertOne(ctx context.Context, token *Token) error

	// UpdateOne applies update to the first record matching filter.
	// Matching nothing is not an error.
	UpdateOne(ctx context.Context, filter TokenFilter, update TokenUpdate) (UpdateResult, error)

	// FindOne returns the first record matching filter, or nil when none does.
	FindOne(ctx context.Context, filter TokenFilter) (*Token, error)

	// DeleteOne removes the first record matching filter and returns the deleted count.
	DeleteOne(ctx context.Context, filter TokenFilter) (int64, error)

	// DeleteMany removes every record matching filter and returns the deleted count.
	DeleteMany(ctx context.Context, filter TokenFilter) (int64, error)
}

// CollectionProvider hands out token collections by name.
type CollectionProvider interface {
	Collection(name string) TokenCollection
}

// IDGenerator produces unique token values for the server generated mode.
type IDGenerator interface {
	NewID() (string, error)
}
