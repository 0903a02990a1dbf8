// Package logging wires a single zerolog.Logger for the process and
// threads it through context.Context so core operations can attach
// request-scoped fields without taking a logger parameter.
package logging

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Development mode gets a human-readable
// console writer; anything else gets structured JSON suitable for a log
// aggregator.
func New(environment, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var writer = os.Stdout
	if environment == "" || environment == "dev" || environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}).
			Level(lvl).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}

type ctxKey struct{}

// WithContext attaches logger to ctx so Ctx(ctx) retrieves it downstream.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx returns the logger attached to ctx, or zerolog's disabled logger if
// none was attached — mirrors zerolog.Ctx's own fallback behavior.
func Ctx(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return &logger
	}
	disabled := zerolog.Nop()
	return &disabled
}
