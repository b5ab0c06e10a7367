// Package middleware provides HTTP middleware for agentrunner.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"
)

// APIKeyMiddleware guards the API with a static key when one is configured.
type APIKeyMiddleware struct {
	key         string
	rateLimiter *RateLimiter
	skipPrefix  []string
}

// NewAPIKeyMiddleware creates middleware that checks requests against key.
// Paths listed in skipPrefix bypass the check entirely.
func NewAPIKeyMiddleware(key string, skipPrefix ...string) *APIKeyMiddleware {
	return &APIKeyMiddleware{
		key:         key,
		rateLimiter: NewRateLimiter(100, time.Minute), // 100 attempts per minute
		skipPrefix:  skipPrefix,
	}
}

// Authenticate is middleware that validates the API key on each request
func (m *APIKeyMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No key configured means the API is open
		if m.key == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Skip authentication for OPTIONS requests (CORS preflight)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		// Skip exempt paths such as the webhook proxy and metrics
		for _, prefix := range m.skipPrefix {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		// Check rate limiting
		clientIP := r.RemoteAddr
		if m.rateLimiter.IsLimited(clientIP) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		if !m.keyMatches(r) {
			m.rateLimiter.Record(clientIP)
			http.Error(w, "Invalid or missing API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// keyMatches accepts the key from the X-API-Key header or a bearer token.
func (m *APIKeyMiddleware) keyMatches(r *http.Request) bool {
	candidate := r.Header.Get("X-API-Key")
	if candidate == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			candidate = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(m.key)) == 1
}

// RateLimiter implements a simple rate limiting mechanism
type RateLimiter struct {
	attempts   map[string][]time.Time
	limit      int
	window     time.Duration
	mu         sync.Mutex
	cleanupInt time.Duration
	lastClean  time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:   make(map[string][]time.Time),
		limit:      limit,
		window:     window,
		cleanupInt: time.Minute * 5,
		lastClean:  time.Now(),
	}
}

// IsLimited checks if a client is rate limited
func (r *RateLimiter) IsLimited(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Clean up old entries periodically
	if time.Since(r.lastClean) > r.cleanupInt {
		r.cleanup()
		r.lastClean = time.Now()
	}

	// Get attempts for this client
	attempts := r.attempts[clientID]
	if len(attempts) == 0 {
		return false
	}

	// Count attempts within the window
	cutoff := time.Now().Add(-r.window)
	count := 0
	for _, t := range attempts {
		if t.After(cutoff) {
			count++
		}
	}

	return count >= r.limit
}

// Record records an authentication attempt
func (r *RateLimiter) Record(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts[clientID] = append(r.attempts[clientID], time.Now())
}

// cleanup removes old entries
func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-r.window)
	for clientID, attempts := range r.attempts {
		var valid []time.Time
		for _, t := range attempts {
			if t.After(cutoff) {
				valid = append(valid, t)
			}
		}
		if len(valid) > 0 {
			r.attempts[clientID] = valid
		} else {
			delete(r.attempts, clientID)
		}
	}
}
