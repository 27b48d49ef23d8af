package api

// CreateTokenRequest is the body of POST /tokens. Token may be omitted when
// the server generates tokens. Timeouts are in milliseconds, zero means the
// server default.
type CreateTokenRequest struct {
	Token            string   `json:"token,omitempty"`
	Context          string   `json:"context"`
	User             string   `json:"user"`
	Roles            []string `json:"roles"`
	SessionTimeoutMs int64    `json:"session_timeout_ms,omitempty"`
	FinalTimeoutMs   int64    `json:"final_timeout_ms,omitempty"`
}

// TouchTokenRequest is the optional body of POST /tokens/:token/touch.
type TouchTokenRequest struct {
	SessionTimeoutMs int64 `json:"session_timeout_ms,omitempty"`
	FinalTimeoutMs   int64 `json:"final_timeout_ms,omitempty"`
}

// TokenResponse carries a token value.
type TokenResponse struct {
	Token string `json:"token"`
}

// TokenInfoResponse describes a live token.
type TokenInfoResponse struct {
	Token           string   `json:"token"`
	Context         string   `json:"context"`
	User            string   `json:"user"`
	Roles           []string `json:"roles"`
	Created         int64    `json:"created"`
	Updated         int64    `json:"updated"`
	Expiration      int64    `json:"expiration"`
	FinalExpiration int64    `json:"final_expiration"`
}

type DeleteTokenResponse struct {
	Deleted bool `json:"deleted"`
}

type DeleteUserTokensResponse struct {
	Deleted int64 `json:"deleted"`
}

type SweepResponse struct {
	Ran bool `json:"ran"`
}

// CleanupRequest is the body of PUT /cleanup.
type CleanupRequest struct {
	FrequencyMs int64 `json:"frequency_ms"`
}

// CleanupResponse reports the cleanup scheduler state. FrequencyMs is 0
// when it is not running.
type CleanupResponse struct {
	Running     bool  `json:"running"`
	FrequencyMs int64 `json:"frequency_ms"`
}

// TimeoutsRequest is the body of PUT /config/timeouts. Omitted values are
// left unchanged.
type TimeoutsRequest struct {
	SessionTimeoutMs int64 `json:"session_timeout_ms,omitempty"`
	FinalTimeoutMs   int64 `json:"final_timeout_ms,omitempty"`
}

type TimeoutsResponse struct {
	SessionTimeoutMs int64 `json:"session_timeout_ms"`
	FinalTimeoutMs   int64 `json:"final_timeout_ms"`
}
