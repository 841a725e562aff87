// Package auth verifies bearer tokens against Supabase Auth.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	supabaseauth "github.com/supabase-community/auth-go"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

var _ core.Authenticator = (*SupabaseAuthenticator)(nil)

const (
	authPath       = "/auth/v1"
	defaultTimeout = 10 * time.Second
	opVerifyToken  = "verify token"
)

// Static errors.
var (
	ErrEmptyToken   = errors.New("empty bearer token")
	ErrTokenInvalid = errors.New("token rejected")
	ErrNoUserID     = errors.New("user response has no id")
)

// SupabaseAuthenticator resolves an access token to its user id through the
// Supabase Auth user endpoint.
type SupabaseAuthenticator struct {
	client supabaseauth.Client
}

// NewSupabaseAuthenticator creates an authenticator for the project at baseURL.
// apiKey is sent as the apikey header Supabase requires on every request.
func NewSupabaseAuthenticator(baseURL, apiKey string) *SupabaseAuthenticator {
	client := supabaseauth.New("", apiKey).
		WithCustomAuthURL(strings.TrimRight(baseURL, "/") + authPath).
		WithClient(http.Client{Timeout: defaultTimeout})

	return &SupabaseAuthenticator{client: client}
}

// VerifyToken returns the user id owning token. A rejected or malformed
// credential wraps core.ErrAuth; an auth service that cannot be reached or
// fails on its side wraps core.ErrUnavailable.
func (a *SupabaseAuthenticator) VerifyToken(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", core.E(core.ErrAuth, opVerifyToken, "", ErrEmptyToken)
	}

	err := ctx.Err()
	if err != nil {
		return "", core.E(core.ErrUnavailable, opVerifyToken, "", err)
	}

	user, err := a.client.WithToken(token).GetUser()
	if err != nil {
		return "", classify(err)
	}

	if user.ID == uuid.Nil {
		return "", core.E(core.ErrAuth, opVerifyToken, "", ErrNoUserID)
	}

	return user.ID.String(), nil
}

// classify separates credential rejections from outages. The client reports
// non-2xx answers as "response status code <n>: <body>".
func classify(err error) error {
	var transportErr *url.Error
	if errors.As(err, &transportErr) {
		return core.E(core.ErrUnavailable, opVerifyToken, "", fmt.Errorf("auth service unreachable: %w", err))
	}

	var status int

	_, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &status)
	if scanErr == nil && status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return core.E(core.ErrAuth, opVerifyToken, "", fmt.Errorf("%w: %w", ErrTokenInvalid, err))
	}

	return core.E(core.ErrUnavailable, opVerifyToken, "", fmt.Errorf("auth service failed: %w", err))
}

// BearerToken extracts the token from an "Authorization: Bearer ..." value.
func BearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}
