package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter counts requests per key in fixed windows. Each key's quota
// is passed on every call so one limiter serves every role.
type RateLimiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	interval time.Duration
	now      func() time.Time
}

type window struct {
	used    int
	resetAt time.Time
}

// NewRateLimiter creates a limiter whose windows last interval
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		windows:  make(map[string]*window),
		interval: interval,
		now:      time.Now,
	}
}

// Allow consumes one request for key under limit. It returns the requests
// left and when the window resets.
func (rl *RateLimiter) Allow(key string, limit int) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rl.interval)}
		rl.windows[key] = w
	}

	if w.used >= limit {
		return false, 0, w.resetAt
	}
	w.used++
	return true, limit - w.used, w.resetAt
}

// Sweep drops expired windows
func (rl *RateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// Run sweeps expired windows until ctx is done
func (rl *RateLimiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// tutorRateLimit limits tutor calls per learner, or per client address
// for anonymous callers, using the hourly quota of the caller's role
func tutorRateLimit(rl *RateLimiter, quota func(role string) int, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := r.Header.Get(RoleHeader)
			if role == "" {
				role = "guest"
			}
			limit := quota(role)
			key := rateLimitKey(r)

			ok, remaining, resetAt := rl.Allow(role+":"+key, limit)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				retry := max(int(time.Until(resetAt).Seconds()), 1)
				logger.Warn("rate limit exceeded",
					"key", key,
					"role", role,
					"path", r.URL.Path,
					"correlation_id", GetCorrelationID(r.Context()),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				jsonError(w, http.StatusTooManyRequests, "too many tutor requests, please try again later",
					fmt.Errorf("limit of %d per hour for role %s", limit, role))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey prefers the learner id and falls back to the client address
func rateLimitKey(r *http.Request) string {
	if id := r.Header.Get(LearnerHeader); id != "" {
		return "learner:" + id
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return "ip:" + strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return "ip:" + xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
