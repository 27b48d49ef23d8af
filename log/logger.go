package log

import "context"

// Logger defines a standard interface for logging.
// The token service and its sweeper only ever talk to this interface.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	Fatal(ctx context.Context, msg string, err error, fields ...map[string]interface{}) // Typically os.Exit(1) is called by underlying logger
	With(fields map[string]interface{}) Logger                                         // Returns a new logger with added structured fields
}

type nopLogger struct{}

// Nop returns a Logger that discards everything. Fatal does not exit.
//
//nolint:ireturn
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, string, error, ...map[string]interface{}) {}
func (nopLogger) Fatal(context.Context, string, error, ...map[string]interface{}) {}
func (n nopLogger) With(map[string]interface{}) Logger                            { return n }
