package log

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// zerologAdapter wraps a zerolog.Logger to implement the custom Logger interface.
type zerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a new Logger implemented with zerolog writing to stderr.
func NewZerologAdapter(level zerolog.Level, pretty bool) Logger {
	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	zlog := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
	return &zerologAdapter{logger: zlog}
}

// FromZerolog wraps an existing zerolog.Logger.
func FromZerolog(zlog zerolog.Logger) Logger {
	return &zerologAdapter{logger: zlog}
}

// write attaches the trace of ctx and the fields to event and sends it.
// Trace information is read per call so it always names the current span.
func write(ctx context.Context, event *zerolog.Event, msg string, fields []map[string]interface{}) {
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		event = event.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	for _, f := range fields {
		event = event.Fields(f)
	}
	event.Msg(msg)
}

func (z *zerologAdapter) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	write(ctx, z.logger.Debug(), msg, fields)
}

func (z *zerologAdapter) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	write(ctx, z.logger.Info(), msg, fields)
}

func (z *zerologAdapter) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	write(ctx, z.logger.Warn(), msg, fields)
}

func (z *zerologAdapter) Error(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	write(ctx, z.logger.Error().Err(err), msg, fields)
}

// Fatal logs and exits the process through zerolog.
func (z *zerologAdapter) Fatal(ctx context.Context, msg string, err error, fields ...map[string]interface{}) {
	write(ctx, z.logger.Fatal().Err(err), msg, fields)
}

// With returns a logger that adds fields to every event.
func (z *zerologAdapter) With(fields map[string]interface{}) Logger {
	return &zerologAdapter{logger: z.logger.With().Fields(fields).Logger()}
}
