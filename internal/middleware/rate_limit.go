package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"flower-storefront/internal/models"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerMinute applies to every API request of one client IP
	RequestsPerMinute int
	// SessionStartsPerMinute applies to POST /v1/session, which costs an identity exchange
	SessionStartsPerMinute int
}

// rateLimitEntry is one fixed window
type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// RateLimitInfo contains rate limit information for response headers
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime time.Time
}

// RateLimiter counts requests per client IP in one-minute fixed windows
type RateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()

	slog.Info("Rate limiter initialized",
		"enabled", config.Enabled,
		"requests_per_minute", config.RequestsPerMinute,
		"session_starts_per_minute", config.SessionStartsPerMinute)
	return rl
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.purgeExpired()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) purgeExpired() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	removed := 0
	for key, entry := range rl.entries {
		if now.After(entry.resetTime) {
			delete(rl.entries, key)
			removed++
		}
	}
	return removed
}

// Allow counts one request of clientIP against the limit of its class
func (rl *RateLimiter) Allow(clientIP string, sessionStart bool) (bool, RateLimitInfo) {
	if !rl.config.Enabled {
		return true, RateLimitInfo{Limit: -1, Remaining: -1}
	}

	limit, key := rl.config.RequestsPerMinute, "api|"+clientIP
	if sessionStart {
		limit, key = rl.config.SessionStartsPerMinute, "session|"+clientIP
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.entries[key]
	if !ok || now.After(entry.resetTime) {
		entry = &rateLimitEntry{resetTime: now.Add(time.Minute)}
		rl.entries[key] = entry
	}

	if entry.count >= limit {
		return false, RateLimitInfo{Limit: limit, Remaining: 0, ResetTime: entry.resetTime}
	}
	entry.count++
	return true, RateLimitInfo{Limit: limit, Remaining: limit - entry.count, ResetTime: entry.resetTime}
}

// RateLimitMiddleware rejects clients over their limit with 429
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := clientIPOf(r)
			sessionStart := r.Method == http.MethodPost && r.URL.Path == "/v1/session"

			allowed, info := rl.Allow(clientIP, sessionStart)
			setRateLimitHeaders(w, info)

			if !allowed {
				slog.Warn("Rate limit exceeded",
					"client_ip", clientIP,
					"path", r.URL.Path,
					"method", r.Method,
					"session_start", sessionStart,
					"limit", info.Limit,
					"reset_time", info.ResetTime.Format(time.RFC3339))

				retryAfter := max(int(info.ResetTime.Sub(rl.now()).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeErrorResponse(w, http.StatusTooManyRequests, "rate_limit_exceeded",
					"Rate limit exceeded. Please try again later.",
					[]models.ErrorDetail{{
						Field: "rate_limit",
						Issue: fmt.Sprintf("Exceeded %d requests per minute", info.Limit),
					}})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIPOf expects RealIP to have already resolved proxy headers into RemoteAddr
func clientIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func setRateLimitHeaders(w http.ResponseWriter, info RateLimitInfo) {
	if info.Limit < 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
}
