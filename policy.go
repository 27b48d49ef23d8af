package token

import (
	"fmt"
	"strings"
)

// FinalPolicy decides what a touch does with finalExpiration.
type FinalPolicy int

const (
	// FinalRefresh rewrites finalExpiration to now+finalTimeout on every
	// touch. A finally expired token comes back to life when touched.
	FinalRefresh FinalPolicy = iota

	// FinalCeiling never moves finalExpiration and caps the sliding
	// expiration at it. A finally expired token stays dead.
	FinalCeiling
)

func (p FinalPolicy) String() string {
	switch p {
	case FinalRefresh:
		return "refresh"
	case FinalCeiling:
		return "ceiling"
	default:
		return fmt.Sprintf("FinalPolicy(%d)", int(p))
	}
}

// ParseFinalPolicy accepts "refresh" (or empty) and "ceiling".
func ParseFinalPolicy(s string) (FinalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "refresh":
		return FinalRefresh, nil
	case "ceiling":
		return FinalCeiling, nil
	default:
		return FinalRefresh, fmt.Errorf("unknown final expiration policy %q", s)
	}
}
