package errors

import "fmt"

// APIError is the JSON error body of the HTTP API. It keeps the OAuth 2.0
// error shape so existing clients can parse it.
type APIError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Error codes
const (
	InvalidRequest         = "invalid_request"
	InvalidToken           = "invalid_token"
	TokenNotFound          = "token_not_found"
	AccessDenied           = "access_denied"
	SweepInProgress        = "sweep_in_progress"
	ServerError            = "server_error"
	TemporarilyUnavailable = "temporarily_unavailable"
)

func NewInvalidRequest(description string) *APIError {
	return &APIError{Code: InvalidRequest, Description: description}
}

func NewInvalidToken(description string) *APIError {
	return &APIError{Code: InvalidToken, Description: description}
}

func NewTokenNotFound() *APIError {
	return &APIError{Code: TokenNotFound, Description: "token not found or expired"}
}

func NewAccessDenied(description string) *APIError {
	return &APIError{Code: AccessDenied, Description: description}
}

func NewSweepInProgress() *APIError {
	return &APIError{Code: SweepInProgress, Description: "another sweep is still running"}
}

func NewServerError(description string) *APIError {
	return &APIError{Code: ServerError, Description: description}
}

func NewTemporarilyUnavailable(description string) *APIError {
	return &APIError{Code: TemporarilyUnavailable, Description: description}
}
