// Package logging defines the structured-logging seam the rest of the
// server depends on. Components take the interface; only the wiring in
// app setup knows the concrete backend.
package logging

import "context"

// Logger is a leveled, context-aware logger. Variadic args are
// alternating key/value pairs, in slog style:
//
//	log.Info(ctx, "token issued", "user_id", id, "ttl", ttl)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger whose records always carry the given
	// key/value pairs, typically a "module" tag.
	With(args ...any) Logger
}
