package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordProvider_Type(t *testing.T) {
	provider := NewDiscordProvider("client-id", "client-secret", "https://example.com/", nil)
	assert.Equal(t, "discord", provider.Type())
}

func TestDiscordProvider_AuthURL(t *testing.T) {
	provider := NewDiscordProvider("client-id", "client-secret", "https://example.com/", nil)

	authURL := provider.AuthURL("test-state")

	assert.Contains(t, authURL, "discord.com")
	assert.Contains(t, authURL, "state=test-state")
	assert.Contains(t, authURL, "client_id=client-id")
	assert.Contains(t, authURL, "scope=identify")
	assert.Contains(t, authURL, "prompt=none")
}

func TestDiscordProvider_UserInfo(t *testing.T) {
	tests := []struct {
		name             string
		userResp         discordUserResponse
		expectedUsername string
		expectedAvatar   string
	}{
		{
			name: "global_name_preferred",
			userResp: discordUserResponse{
				ID:         "81684",
				Username:   "handle",
				GlobalName: "Display Name",
				Avatar:     "abc123",
				Email:      "user@example.com",
			},
			expectedUsername: "Display Name",
			expectedAvatar:   "https://cdn.discordapp.com/avatars/81684/abc123.png",
		},
		{
			name: "falls_back_to_username",
			userResp: discordUserResponse{
				ID:       "81684",
				Username: "handle",
			},
			expectedUsername: "handle",
			expectedAvatar:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				err := json.NewEncoder(w).Encode(tt.userResp)
				require.NoError(t, err)
			}))
			defer server.Close()

			provider := NewDiscordProvider("client-id", "client-secret", "https://example.com/", nil)
			provider.userInfoURL = server.URL

			principal, err := provider.UserInfo(context.Background(), "test-token")
			require.NoError(t, err)

			assert.Equal(t, "discord", principal.Provider)
			assert.Equal(t, tt.userResp.ID, principal.Subject)
			assert.Equal(t, tt.expectedUsername, principal.Username)
			assert.Equal(t, tt.userResp.Email, principal.Email)
			assert.Equal(t, tt.expectedAvatar, principal.AvatarURL)
		})
	}
}

func TestDiscordProvider_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		writeTokenResponse(w, "access-2", "refresh-2", 3600)
	}))
	defer server.Close()

	provider := NewDiscordProvider("client-id", "client-secret", "https://example.com/", nil)
	provider.config.Endpoint.TokenURL = server.URL

	token, err := provider.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)

	assert.Equal(t, "access-2", token.AccessToken)
	assert.Equal(t, "refresh-2", token.RefreshToken)
}

func TestDiscordProvider_UserInfoRevokedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := NewDiscordProvider("client-id", "client-secret", "https://example.com/", nil)
	provider.userInfoURL = server.URL

	_, err := provider.UserInfo(context.Background(), "revoked-token")
	require.Error(t, err)
	assert.True(t, IsInvalidGrant(err))
}

func TestDiscordProvider_UserInfoServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewDiscordProvider("client-id", "client-secret", "https://example.com/", nil)
	provider.userInfoURL = server.URL

	_, err := provider.UserInfo(context.Background(), "test-token")
	require.Error(t, err)
	assert.False(t, IsInvalidGrant(err))
}
