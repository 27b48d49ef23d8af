// Package audit writes one JSON line per administrative token operation.
package audit

import (
	"context"
	"io"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/rs/zerolog"
)

// Actions recorded by the HTTP API.
const (
	ActionDeleteUserTokens = "tokens.delete_user"
	ActionSweep            = "tokens.sweep"
	ActionCleanupStart     = "cleanup.start"
	ActionCleanupStop      = "cleanup.stop"
	ActionSetTimeouts      = "config.set_timeouts"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`   // User of the token that made the call
	Target    string    `json:"target,omitempty"`  // User, collection or setting acted on
	Details   string    `json:"details,omitempty"` // Additional details
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Logger records audit events. A nil *Logger discards them.
type Logger struct {
	zlog    zerolog.Logger
	service string
	now     func() time.Time
}

// New creates a Logger writing to w.
func New(w io.Writer, service string) *Logger {
	return &Logger{
		zlog:    zerolog.New(w),
		service: service,
		now:     time.Now,
	}
}

// Log records action on target. The actor is taken from the token stored in
// ctx by the authentication middleware.
func (l *Logger) Log(ctx context.Context, action, target, details string, err error) {
	if l == nil {
		return
	}

	event := Event{
		Timestamp: l.now().UTC(),
		Service:   l.service,
		Action:    action,
		Target:    target,
		Details:   details,
		Success:   err == nil,
	}
	if tok, ok := domain.TokenFromContext(ctx); ok {
		event.Actor = tok.User
	}
	if err != nil {
		event.Error = err.Error()
	}

	l.zlog.Log().
		Time("timestamp", event.Timestamp).
		Str("service", event.Service).
		Str("action", event.Action).
		Str("actor", event.Actor).
		Str("target", event.Target).
		Str("details", event.Details).
		Bool("success", event.Success).
		Str("error", event.Error).
		Msg("audit")
}
