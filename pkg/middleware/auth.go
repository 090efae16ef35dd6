// Package middleware provides HTTP middleware for flowsync.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/TPCMinistries/Perpetualcore-sub007/pkg/auth"
)

// Key type for context values
type contextKey string

// Context keys
const (
	AccountIDKey contextKey = "account_id"
)

// AuthLimits bounds failed authentication attempts per client
type AuthLimits struct {
	// MaxAttempts is the number of failed attempts allowed per window
	MaxAttempts int

	// Window is the sliding window the attempts are counted over
	Window time.Duration
}

// DefaultAuthLimits allows 100 failed attempts per client per minute
var DefaultAuthLimits = AuthLimits{MaxAttempts: 100, Window: time.Minute}

// AuthMiddleware authenticates requests via Bearer tokens or Basic
// credentials and throttles clients that keep failing
type AuthMiddleware struct {
	accountService auth.AccountService
	rateLimiter    *RateLimiter
}

// NewAuthMiddleware creates authentication middleware. Zero-value limits
// fall back to DefaultAuthLimits.
func NewAuthMiddleware(accountService auth.AccountService, limits AuthLimits) *AuthMiddleware {
	if limits.MaxAttempts <= 0 {
		limits.MaxAttempts = DefaultAuthLimits.MaxAttempts
	}
	if limits.Window <= 0 {
		limits.Window = DefaultAuthLimits.Window
	}

	return &AuthMiddleware{
		accountService: accountService,
		rateLimiter:    NewRateLimiter(limits.MaxAttempts, limits.Window),
	}
}

// Authenticate is middleware that authenticates requests
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS preflight requests carry no credentials
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		clientIP := r.RemoteAddr
		if m.rateLimiter.Limited(clientIP) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		accountID, err := m.resolveAccount(r)
		if err != nil {
			m.rateLimiter.Record(clientIP)
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveAccount maps the request's credentials onto an account ID. Bearer
// tokens may be API tokens or JWTs; Basic credentials are username/password.
func (m *AuthMiddleware) resolveAccount(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")

	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return m.accountService.ValidateToken(token)
	}

	if strings.HasPrefix(header, "Basic ") {
		username, password, ok := r.BasicAuth()
		if !ok {
			return "", fmt.Errorf("malformed basic credentials")
		}
		return m.accountService.Authenticate(username, password)
	}

	return "", fmt.Errorf("unsupported authentication scheme")
}

// GetAccountID retrieves the account ID from the request context
func GetAccountID(r *http.Request) (string, bool) {
	accountID, ok := r.Context().Value(AccountIDKey).(string)
	return accountID, ok
}

// RequireAccount is middleware that ensures an account ID is present in the context
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAccountID(r); !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimiter counts failed attempts per client over a sliding window
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Limited reports whether a client has exhausted its attempt budget. Stale
// attempts are pruned on the way.
func (r *RateLimiter) Limited(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	recent := r.prune(clientID)
	return len(recent) >= r.limit
}

// Record registers a failed attempt for a client
func (r *RateLimiter) Record(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts[clientID] = append(r.prune(clientID), time.Now())
}

// prune drops attempts older than the window and stores the survivors back.
// Callers must hold the mutex.
func (r *RateLimiter) prune(clientID string) []time.Time {
	cutoff := time.Now().Add(-r.window)

	recent := r.attempts[clientID][:0]
	for _, t := range r.attempts[clientID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) == 0 {
		delete(r.attempts, clientID)
		return nil
	}
	r.attempts[clientID] = recent

	return recent
}
