// Package ratelimit counts upload attempts per account over a rolling window.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by Disabled so callers can log and carry on.
var ErrNotConfigured = errors.New("rate limiter not configured")

// Ticket is the limiter state after recording one hit.
type Ticket struct {
	Total     int
	Remaining int
	Reset     time.Time
}

// Limiter records one hit for id and reports the remaining quota.
// Remaining is computed from the hits seen before this one, so a fresh id
// reports the full quota.
type Limiter interface {
	Get(ctx context.Context, id string) (Ticket, error)
}

// Disabled is used when no backend is configured. Every call fails with
// ErrNotConfigured.
type Disabled struct{}

func (Disabled) Get(context.Context, string) (Ticket, error) {
	return Ticket{}, ErrNotConfigured
}

func remaining(max, count int) int {
	if count < max {
		return max - count
	}
	return 0
}
