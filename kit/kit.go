// CLAUDE:SUMMARY Endpoint abstraction: middleware chaining and slog request logging.
// Package kit is the transport-neutral endpoint layer: every operation the
// service exposes is an Endpoint, and HTTP or MCP surfaces wrap the same
// endpoint with their own decoding.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is one invocable operation.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument is the outermost wrapper.
func Chain(mw ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// Logging logs one line per call with duration and outcome.
func Logging(logger *slog.Logger, op string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				logger.Error("endpoint failed",
					"op", op, "transport", GetTransport(ctx),
					"duration", time.Since(start), "error", err)
			} else {
				logger.Info("endpoint served",
					"op", op, "transport", GetTransport(ctx),
					"duration", time.Since(start))
			}
			return resp, err
		}
	}
}
