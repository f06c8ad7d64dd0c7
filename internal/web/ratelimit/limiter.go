// Package ratelimit throttles mutating requests per client, in memory or
// across processes through redis.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether the next request for key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Info, error)
}

// Info is the limit state after a decision
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}
