// ABOUTME: Fixed-window rate limiter interface and HTTP middleware for the auth endpoints
// ABOUTME: Keys requests by client IP and answers 429 with RateLimit headers when a window is exhausted

package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key in fixed windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Policy configures Middleware.
type Policy struct {
	Prefix     string // key namespace, e.g. "auth"
	Limit      int
	Window     time.Duration
	FailClosed bool // reject when the limiter errors
}

// Middleware limits requests per client IP. Limit <= 0 disables limiting.
func Middleware(limiter Limiter, policy Policy, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || policy.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := policy.Prefix + ":ip:" + clientIP(r)
			decision, err := limiter.Allow(r.Context(), key, policy.Limit, policy.Window)
			if err != nil {
				logger.Warn("rate limiter unavailable", "error", err, "key", key)
				if policy.FailClosed {
					writeLimited(w, "rate limiter unavailable")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			writeHeaders(w, decision, now())
			if !decision.Allowed {
				logger.Info("rate limit exceeded", "key", key, "path", r.URL.Path)
				writeLimited(w, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. Forwarding headers are not read
// here; the router rewrites RemoteAddr for trusted proxies only.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeHeaders(w http.ResponseWriter, d Decision, now time.Time) {
	h := w.Header()
	if d.Limit > 0 {
		h.Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	}
	if d.Remaining >= 0 {
		h.Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	}
	if !d.ResetAt.IsZero() {
		h.Set("RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.Allowed {
			retryAfter := int64(d.ResetAt.Sub(now).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}

func writeLimited(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
