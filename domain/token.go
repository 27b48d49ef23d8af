package domain

import (
	"errors"
	"slices"
	"strings"
	"time"
	"unicode"
)

// MaxTokenLength is the largest token value accepted for storage.
const MaxTokenLength = 1024

var (
	// ErrInvalidToken is returned when a token value is empty, too long or
	// contains whitespace/control characters.
	ErrInvalidToken = errors.New("invalid token value")

	// ErrDuplicateToken is returned by adapters when the token key already exists.
	ErrDuplicateToken = errors.New("token already exists")
)

// Token is a stored session token. All timestamps are milliseconds since epoch.
type Token struct {
	Token           string   `bson:"token"           json:"token"`
	Context         string   `bson:"context"         json:"context"` // Reporting only, no effect on authorization
	User            string   `bson:"user"            json:"user"`
	Roles           []string `bson:"roles"           json:"roles"`
	Created         int64    `bson:"created"         json:"created"`
	Updated         int64    `bson:"updated"         json:"updated"`
	Expiration      int64    `bson:"expiration"      json:"expiration"`      // Sliding, refreshed on touch
	FinalExpiration int64    `bson:"finalExpiration" json:"finalExpiration"` // Ceiling
}

// NewToken builds a record created at now with the given timeouts applied.
func NewToken(value, context, user string, roles []string, now time.Time, session, final time.Duration) *Token {
	ms := ToMillis(now)
	return &Token{
		Token:           value,
		Context:         context,
		User:            user,
		Roles:           NormalizeRoles(roles),
		Created:         ms,
		Updated:         ms,
		Expiration:      ms + session.Milliseconds(),
		FinalExpiration: ms + final.Milliseconds(),
	}
}

// IsLive reports whether neither expiration has passed at now.
func (t *Token) IsLive(now time.Time) bool {
	ms := ToMillis(now)
	return ms < t.Expiration && ms < t.FinalExpiration
}

// HasRole reports whether the role set contains role. An empty role means
// no restriction and always matches.
func (t *Token) HasRole(role string) bool {
	if role == "" {
		return true
	}
	return slices.Contains(t.Roles, role)
}

// Matches evaluates filter against the record. Adapters without a native
// query language use it to implement FindOne/UpdateOne/Delete*.
func (t *Token) Matches(f TokenFilter) bool {
	if f.Token != "" && t.Token != f.Token {
		return false
	}
	if f.User != "" && t.User != f.User {
		return false
	}
	if f.ExpirationAfter != 0 && !(t.Expiration > f.ExpirationAfter) {
		return false
	}
	if f.FinalExpirationAfter != 0 && !(t.FinalExpiration > f.FinalExpirationAfter) {
		return false
	}
	if f.ExpirationBefore != 0 && !(t.Expiration < f.ExpirationBefore) {
		return false
	}
	return t.HasRole(f.Role)
}

// Apply mutates the record according to u.
func (t *Token) Apply(u TokenUpdate) {
	t.Updated = u.Updated
	t.Expiration = u.Expiration
	if u.FinalExpiration != nil {
		t.FinalExpiration = *u.FinalExpiration
	}
	if u.CapExpirationAtFinal && t.Expiration > t.FinalExpiration {
		t.Expiration = t.FinalExpiration
	}
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	c := *t
	c.Roles = slices.Clone(t.Roles)
	return &c
}

// ValidateTokenValue checks a caller supplied token value.
func ValidateTokenValue(value string) error {
	if value == "" || len(value) > MaxTokenLength {
		return ErrInvalidToken
	}
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidToken
		}
	}
	return nil
}

// NormalizeRoles trims entries, drops empty ones and removes duplicates
// keeping first-seen order. It never returns nil.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ToMillis converts t to milliseconds since epoch.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts milliseconds since epoch to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
