// Package ratelimit provides the fixed-window limiter guarding the public
// certificate verification endpoint.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"sealedrecord/internal/capture"
	"sealedrecord/internal/platform/redis"
)

const keyPrefix = "ratelimit:verify:"

// Limiter counts requests per key in fixed windows. With a redis client it
// is shared across instances; without one it falls back to an in-process
// window, which is enough for single-node and test deployments.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration

	mu      sync.Mutex
	local   map[string]int
	resetAt time.Time
}

func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
		local:  make(map[string]int),
	}
}

// Allow reports whether the caller identified by key may proceed. Redis
// failures fail open: verification availability beats strict limiting.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.client == nil {
		return l.allowLocal(key)
	}

	redisKey := keyPrefix + key + ":" + strconv.FormatInt(time.Now().Unix()/int64(l.window.Seconds()), 10)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, redisKey, l.window)
	}
	return count <= int64(l.limit)
}

func (l *Limiter) allowLocal(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.After(l.resetAt) {
		l.local = make(map[string]int)
		l.resetAt = now.Add(l.window)
	}
	l.local[key]++
	return l.local[key] <= l.limit
}

// Middleware rejects over-limit requests with 429, keyed by client IP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := capture.AddressFromRequest(r)
		if !ok {
			key = r.RemoteAddr
		}
		if !l.Allow(r.Context(), key) {
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			http.Error(w, `{"error":"rate_limited"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
