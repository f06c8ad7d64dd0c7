package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TokenBucket is an in-memory Limiter. Each key holds up to Limit tokens,
// refilled continuously at Limit per Window.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a limiter allowing limit requests per window per key.
// Idle buckets are swept every 2*window.
func NewTokenBucket(limit int, window time.Duration) (*TokenBucket, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}

	tb := &TokenBucket{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go tb.sweep()
	return tb, nil
}

// Allow takes a token for key if one is available
func (tb *TokenBucket) Allow(ctx context.Context, key string) (Info, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.limit), lastRefill: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		b.tokens += float64(tb.limit) * elapsed.Seconds() / tb.window.Seconds()
		if b.tokens > float64(tb.limit) {
			b.tokens = float64(tb.limit)
		}
		b.lastRefill = now
	}

	info := Info{Limit: tb.limit}
	if b.tokens >= 1 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = int(b.tokens)

	// Time until the bucket is full again
	missing := float64(tb.limit) - b.tokens
	info.ResetAt = now.Add(time.Duration(missing / float64(tb.limit) * float64(tb.window)))

	return info, nil
}

// Close stops the sweep
func (tb *TokenBucket) Close() error {
	tb.once.Do(func() { close(tb.done) })
	return nil
}

func (tb *TokenBucket) sweep() {
	ticker := time.NewTicker(2 * tb.window)
	defer ticker.Stop()

	for {
		select {
		case <-tb.done:
			return
		case <-ticker.C:
			tb.mu.Lock()
			now := tb.now()
			for key, b := range tb.buckets {
				if now.Sub(b.lastRefill) > 2*tb.window {
					delete(tb.buckets, key)
				}
			}
			tb.mu.Unlock()
		}
	}
}
