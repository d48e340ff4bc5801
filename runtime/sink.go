package runtime

import (
	"context"

	"go.uber.org/zap"
)

// Sink receives diagnostics emitted by the guest through index.log and
// env.trace.
type Sink interface {
	Log(ctx context.Context, msg string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg string)

func (f SinkFunc) Log(ctx context.Context, msg string) {
	f(ctx, msg)
}

// LoggerSink writes guest messages to the runtime logger at info level.
type LoggerSink struct{}

func (LoggerSink) Log(_ context.Context, msg string) {
	Logger().Info("guest log", zap.String("message", msg))
}
