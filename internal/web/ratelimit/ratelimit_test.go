package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/taskprovider/internal/web/auth"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	tb, err := NewTokenBucket(2, time.Minute)
	require.NoError(t, err)
	defer tb.Close()

	now := time.Unix(1000, 0)
	tb.now = func() time.Time { return now }

	info, err := tb.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 2, info.Limit)
	assert.Equal(t, 1, info.Remaining)

	info, _ = tb.Allow(ctx, "a")
	assert.True(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)

	info, _ = tb.Allow(ctx, "a")
	assert.False(t, info.Allowed)
	assert.Equal(t, now.Add(time.Minute), info.ResetAt)

	// Other keys have their own bucket
	info, _ = tb.Allow(ctx, "b")
	assert.True(t, info.Allowed)

	// Half a window refills one token
	now = now.Add(30 * time.Second)
	info, _ = tb.Allow(ctx, "a")
	assert.True(t, info.Allowed)
	info, _ = tb.Allow(ctx, "a")
	assert.False(t, info.Allowed)

	// Refill is capped at the limit
	now = now.Add(time.Hour)
	info, _ = tb.Allow(ctx, "a")
	assert.True(t, info.Allowed)
	assert.Equal(t, 1, info.Remaining)
}

func TestTokenBucket_InvalidConfig(t *testing.T) {
	_, err := NewTokenBucket(0, time.Minute)
	assert.Error(t, err)
	_, err = NewTokenBucket(1, 0)
	assert.Error(t, err)
}

func TestTokenBucket_CloseTwice(t *testing.T) {
	tb, err := NewTokenBucket(1, time.Minute)
	require.NoError(t, err)
	assert.NoError(t, tb.Close())
	assert.NoError(t, tb.Close())
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisLimiter(t *testing.T) {
	ctx := context.Background()
	client, mr := newRedis(t)

	rl, err := NewRedisLimiter(client, 2, time.Minute, "rl:")
	require.NoError(t, err)

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	info, err := rl.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 1, info.Remaining)

	info, err = rl.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)
	assert.Equal(t, 0, info.Remaining)

	info, err = rl.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, info.Allowed)

	assert.True(t, mr.Exists("rl:a"))

	// Entries slide out of the window
	now = now.Add(61 * time.Second)
	info, err = rl.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)

	require.NoError(t, rl.Reset(ctx, "a"))
	assert.False(t, mr.Exists("rl:a"))
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	client, _ := newRedis(t)

	first, err := NewRedisLimiter(client, 1, time.Minute, "rl:")
	require.NoError(t, err)
	second, err := NewRedisLimiter(client, 1, time.Minute, "rl:")
	require.NoError(t, err)

	info, err := first.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, info.Allowed)

	info, err = second.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, info.Allowed)
}

func TestNewRedisLimiter_InvalidConfig(t *testing.T) {
	client, _ := newRedis(t)

	_, err := NewRedisLimiter(nil, 1, time.Minute, "")
	assert.Error(t, err)
	_, err = NewRedisLimiter(client, 0, time.Minute, "")
	assert.Error(t, err)
	_, err = NewRedisLimiter(client, 1, 0, "")
	assert.Error(t, err)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/tasks", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "ip:10.0.0.1", ClientKey(req))

	req = req.WithContext(auth.WithClaims(req.Context(), auth.Claims{Subject: "ci"}))
	assert.Equal(t, "sub:ci", ClientKey(req))
}

type stubLimiter struct {
	info Info
	err  error
}

func (s stubLimiter) Allow(ctx context.Context, key string) (Info, error) {
	return s.info, s.err
}

func TestWrites(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	tb, err := NewTokenBucket(1, time.Minute)
	require.NoError(t, err)
	defer tb.Close()

	handler := Writes(tb, nil, nil)(ok)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tasks/1", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["code"])

	// Reads are never limited
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestWrites_LimiterErrorAllows(t *testing.T) {
	handler := Writes(stubLimiter{err: errors.New("redis down")}, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
