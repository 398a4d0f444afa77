package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeProvider returns a provider wired to an httptest server whose token
// endpoint runs the given handler; the userinfo endpoint serves a fixed
// principal.
func newFakeProvider(t *testing.T, tokenHandler http.HandlerFunc) *OAuth2Provider {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler)
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(genericUserInfoResponse{
			Sub:               "sub-1",
			PreferredUsername: "tester",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	provider, err := NewOAuth2Provider(OAuth2Config{
		AuthorizationURL: server.URL + "/authorize",
		TokenURL:         server.URL + "/token",
		UserInfoURL:      server.URL + "/userinfo",
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RedirectURI:      "https://example.com/",
	})
	require.NoError(t, err)
	return provider
}

func writeTokenResponse(w http.ResponseWriter, accessToken, refreshToken string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    expiresIn,
	})
}

func TestNewOAuth2Provider_RequiresEndpoints(t *testing.T) {
	_, err := NewOAuth2Provider(OAuth2Config{
		TokenURL:    "https://idp.example.com/token",
		UserInfoURL: "https://idp.example.com/userinfo",
	})
	assert.Error(t, err)
}

func TestOAuth2Provider_ExchangeCode(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "code-123", r.Form.Get("code"))
		writeTokenResponse(w, "access-1", "refresh-1", 3600)
	})

	token, err := provider.ExchangeCode(context.Background(), "code-123")
	require.NoError(t, err)

	assert.Equal(t, "access-1", token.AccessToken)
	assert.Equal(t, "refresh-1", token.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.Expiry, 10*time.Second)
}

func TestOAuth2Provider_ExchangeCodeRejected(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	})

	_, err := provider.ExchangeCode(context.Background(), "used-code")
	require.Error(t, err)
	assert.True(t, IsInvalidGrant(err))
}

func TestOAuth2Provider_ExchangeCodeProviderOutage(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := provider.ExchangeCode(context.Background(), "code-123")
	require.Error(t, err)
	// A 5xx is transient, not a grant rejection
	assert.False(t, IsInvalidGrant(err))
}

func TestOAuth2Provider_Refresh(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		writeTokenResponse(w, "access-2", "refresh-2", 3600)
	})

	token, err := provider.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)

	assert.Equal(t, "access-2", token.AccessToken)
	assert.Equal(t, "refresh-2", token.RefreshToken)
}

func TestOAuth2Provider_RefreshWithoutRotation(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		// Some providers return no refresh_token on refresh
		writeTokenResponse(w, "access-2", "", 3600)
	})

	token, err := provider.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", token.AccessToken)
}

func TestOAuth2Provider_RefreshRejected(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	})

	_, err := provider.Refresh(context.Background(), "revoked-refresh")
	require.Error(t, err)
	assert.True(t, IsInvalidGrant(err))
}

func TestOAuth2Provider_UserInfoUsernameFallback(t *testing.T) {
	provider := newFakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeTokenResponse(w, "access-1", "", 3600)
	})

	principal, err := provider.UserInfo(context.Background(), "access-1")
	require.NoError(t, err)

	assert.Equal(t, "oauth2", principal.Provider)
	assert.Equal(t, "sub-1", principal.Subject)
	assert.Equal(t, "tester", principal.Username)
}
