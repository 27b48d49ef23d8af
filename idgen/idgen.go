// Package idgen provides the token value generators used when the server
// generates tokens instead of accepting caller supplied ones.
package idgen

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/pilab-dev/shadow-token/domain"
)

// UUID generates random (version 4) UUID strings.
type UUID struct{}

// NewID implements domain.IDGenerator.
func (UUID) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ULID generates 26 char ULIDs with crypto/rand entropy. ULIDs sort by
// creation time, which keeps index inserts append-mostly.
type ULID struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewID implements domain.IDGenerator.
func (g ULID) NewID() (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	id, err := ulid.New(ulid.Timestamp(now().UTC()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Kinds accepted by New.
const (
	KindUUID = "uuid"
	KindULID = "ulid"
)

// New returns the generator for kind. An empty kind returns nil, which
// means tokens must be supplied by the caller.
//
//nolint:ireturn
func New(kind string) (domain.IDGenerator, error) {
	switch kind {
	case "", "caller":
		return nil, nil
	case KindUUID:
		return UUID{}, nil
	case KindULID:
		return ULID{}, nil
	default:
		return nil, fmt.Errorf("unknown token generator %q", kind)
	}
}
