package server

import (
	"context"
	"log/slog"
)

type requestStateKey struct{}

// requestState travels with a request through every pipeline step.
type requestState struct {
	id      string
	logger  *slog.Logger
	errName string
}

func withRequestState(ctx context.Context, state *requestState) context.Context {
	return context.WithValue(ctx, requestStateKey{}, state)
}

func requestStateFrom(ctx context.Context) *requestState {
	state, _ := ctx.Value(requestStateKey{}).(*requestState)
	return state
}

// LoggerFrom returns the request-scoped logger, or the default logger
// outside of a request.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if state := requestStateFrom(ctx); state != nil && state.logger != nil {
		return state.logger
	}
	return slog.Default()
}

// RequestIDFrom returns the id assigned to the current request.
func RequestIDFrom(ctx context.Context) string {
	if state := requestStateFrom(ctx); state != nil {
		return state.id
	}
	return ""
}

// tag adds fields to every later log line of the request.
func tag(ctx context.Context, args ...any) {
	if state := requestStateFrom(ctx); state != nil && state.logger != nil {
		state.logger = state.logger.With(args...)
	}
}

func setErrorName(ctx context.Context, name string) {
	if state := requestStateFrom(ctx); state != nil {
		state.errName = name
	}
}
