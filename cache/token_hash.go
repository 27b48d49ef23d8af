package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken maps a token value to a fixed 64 char hex key. Token values may
// be up to 1024 bytes, which is too long for a comfortable Redis key.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
