// Package ratelimit implements sliding-window request limits.
package ratelimit

import (
	"context"
	"time"
)

// Rate allows Requests per Window.
type Rate struct {
	Requests int
	Window   time.Duration
}

// Info describes the state of a key after a call to Allow.
type Info struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter decides whether the next request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Rate) (bool, Info)
	Reset(ctx context.Context, key string) error
}
