package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/appauth/internal/api/response"
	"github.com/kiranshivaraju/appauth/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	defaultLoginsPerMinute   = 10
)

// RateLimit provides fixed-window rate limiting via Redis.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
	loginsPerMin   int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin, loginsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	if loginsPerMin <= 0 {
		loginsPerMin = defaultLoginsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin, loginsPerMin: loginsPerMin}
}

// Limit applies rate limiting per authenticated user.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r)
		if !ok {
			// No user means auth middleware didn't run; pass through
			next.ServeHTTP(w, r)
			return
		}
		rl.apply(w, r, next, cache.RateLimitKey(user.ID), rl.requestsPerMin)
	})
}

// LimitLogin applies rate limiting per client address to unauthenticated
// credential submissions.
func (rl *RateLimit) LimitLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.apply(w, r, next, cache.LoginRateLimitKey(clientIP(r)), rl.loginsPerMin)
	})
}

// LimitFailedAuth bounds credential guessing through the Authorization
// header. Rejected attempts are counted per client address against the login
// budget; once it is spent, every header attempt from that address gets 429
// until the window expires. Accepted attempts are not counted.
func (rl *RateLimit) LimitFailedAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := cache.AuthFailureKey(clientIP(r))
		failures, err := rl.cache.Count(r.Context(), key)
		if err == nil && failures >= int64(rl.loginsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many failed authentication attempts", nil)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusUnauthorized {
			if _, err := rl.cache.IncrWithExpiry(r.Context(), key, 60*time.Second); err != nil {
				slog.WarnContext(r.Context(), "count failed authentication", "error", err)
			}
		}
	})
}

func (rl *RateLimit) apply(w http.ResponseWriter, r *http.Request, next http.Handler, key string, limit int) {
	count, err := rl.cache.IncrWithExpiry(r.Context(), key, 60*time.Second)
	if err != nil {
		// On Redis error, allow the request (fail open)
		next.ServeHTTP(w, r)
		return
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	resetTime := time.Now().Add(60 * time.Second).Unix()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

	if count > int64(limit) {
		w.Header().Set("Retry-After", "60")
		response.Error(w, http.StatusTooManyRequests,
			"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
		return
	}

	next.ServeHTTP(w, r)
}

// clientIP is the socket peer address. Forwarding headers are client-supplied
// and are not consulted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
