package logging

import (
	"context"
	"log/slog"
	"os"
)

// Setup initializes the global slog logger with JSON output to stdout, fanned
// out to any extra handlers (the database handler in production).
func Setup(extra ...slog.Handler) {
	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}),
	}
	handlers = append(handlers, extra...)
	slog.SetDefault(slog.New(NewMultiHandler(handlers...)))
}

type requestIDKey struct{}

// WithRequestID tags ctx so records logged with it carry the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
