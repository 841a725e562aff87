package httpapi

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/Reality-Reimagined/voiceai/internal/auth"
)

// tokenQueryParam carries the credential for WebSocket clients, which cannot
// set headers from a browser.
const tokenQueryParam = "token"

const wildcardOrigin = "*"

// ErrRateLimited is returned when a user exceeds the request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

type userKey struct{}

// UserID returns the authenticated user stored in ctx, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)

	return id
}

// authenticate verifies the bearer credential and stores the user id in the
// request context. Without an authenticator every request is anonymous.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)

			return
		}

		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get(tokenQueryParam)
		}

		userID, err := s.auth.VerifyToken(r.Context(), token)
		if err != nil {
			s.writeError(w, err)

			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

// rateLimit rejects requests beyond the caller's token bucket with 429.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(UserID(r.Context())) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Detail: ErrRateLimited.Error()})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// corsPolicy answers preflight requests and tags responses for allowed
// origins. A "*" entry allows every origin but is sent back as a literal "*",
// so browsers never attach credentials to wildcard responses.
func (s *Server) corsPolicy() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   s.options.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
}

func (s *Server) originListed(origin string) bool {
	return slices.Contains(s.options.AllowedOrigins, wildcardOrigin) ||
		slices.ContainsFunc(s.options.AllowedOrigins, func(allowed string) bool {
			return strings.EqualFold(allowed, origin)
		})
}

// originAllowed is the WebSocket origin check. Requests without an Origin
// header come from non-browser clients and are accepted.
func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	return origin == "" || s.originListed(origin)
}

// userLimiter keeps one token bucket per user id.
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func newUserLimiter(requestsPerMinute, burst int) *userLimiter {
	return &userLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(time.Minute / time.Duration(max(requestsPerMinute, 1))),
		burst:    max(burst, 1),
	}
}

func (l *userLimiter) allow(userID string) bool {
	l.mu.Lock()

	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.every, l.burst)
		l.limiters[userID] = limiter
	}

	l.mu.Unlock()

	return limiter.Allow()
}

