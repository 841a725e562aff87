package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reality-Reimagined/voiceai/internal/auth"
	"github.com/Reality-Reimagined/voiceai/internal/core"
)

const testUserID = "4f8d2c1e-3b7a-4e5d-9c6f-1a2b3c4d5e6f"

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/auth/v1/user", request.URL.Path)
			assert.Equal(t, "anon-key", request.Header.Get("apikey"))

			responseWriter.Header().Set("Content-Type", "application/json")

			switch request.Header.Get("Authorization") {
			case "Bearer good-token":
				_, _ = responseWriter.Write([]byte(`{"id":"` + testUserID + `","email":"a@example.com"}`))
			case "Bearer no-id":
				_, _ = responseWriter.Write([]byte(`{"email":"a@example.com"}`))
			case "Bearer during-outage":
				http.Error(responseWriter, `{"msg":"database unavailable"}`, http.StatusServiceUnavailable)
			default:
				http.Error(responseWriter, `{"msg":"invalid JWT"}`, http.StatusUnauthorized)
			}
		},
	))
	t.Cleanup(server.Close)

	return server
}

func TestSupabaseAuthenticator_VerifyToken(t *testing.T) {
	t.Parallel()

	authenticator := auth.NewSupabaseAuthenticator(newAuthServer(t).URL+"/", "anon-key")

	userID, err := authenticator.VerifyToken(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, testUserID, userID)
}

func TestSupabaseAuthenticator_Failures(t *testing.T) {
	t.Parallel()

	authenticator := auth.NewSupabaseAuthenticator(newAuthServer(t).URL, "anon-key")

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "  ", wantErr: auth.ErrEmptyToken},
		{name: "rejected", token: "bad-token", wantErr: auth.ErrTokenInvalid},
		{name: "missing id", token: "no-id", wantErr: auth.ErrNoUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := authenticator.VerifyToken(context.Background(), tt.token)
			require.ErrorIs(t, err, core.ErrAuth)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSupabaseAuthenticator_OutageIsNotAnAuthFailure(t *testing.T) {
	t.Parallel()

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()

	tests := []struct {
		name    string
		baseURL string
		token   string
	}{
		{name: "unreachable", baseURL: closed.URL, token: "good-token"},
		{name: "server error", baseURL: newAuthServer(t).URL, token: "during-outage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			authenticator := auth.NewSupabaseAuthenticator(tt.baseURL, "anon-key")

			_, err := authenticator.VerifyToken(context.Background(), tt.token)
			require.ErrorIs(t, err, core.ErrUnavailable)
			assert.NotErrorIs(t, err, core.ErrAuth)
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", auth.BearerToken("bearer   abc "))
	assert.Empty(t, auth.BearerToken("Basic abc"))
	assert.Empty(t, auth.BearerToken("abc"))
	assert.Empty(t, auth.BearerToken(""))
}
