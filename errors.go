package token

import (
	"errors"
	"fmt"

	"github.com/pilab-dev/shadow-token/domain"
)

var (
	// ErrStorageFailure wraps every error coming back from the storage adapter.
	ErrStorageFailure = errors.New("token storage failure")

	ErrInvalidToken   = domain.ErrInvalidToken
	ErrDuplicateToken = domain.ErrDuplicateToken

	ErrNoGenerator       = errors.New("no token generator configured")
	ErrInvalidTimeout    = errors.New("timeout must be positive")
	ErrInvalidCollection = errors.New("collection name must not be empty")
	ErrInvalidUser       = errors.New("user must not be empty")

	// ErrTokenNotFound is only returned by GetToken. Check and delete report
	// absence through their results.
	ErrTokenNotFound = errors.New("token not found")
)

// storageError keeps both ErrStorageFailure and the adapter's cause
// reachable through errors.Is.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
