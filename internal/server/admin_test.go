package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authfront/authfront/internal/config"
	"github.com/authfront/authfront/internal/crypto"
	"github.com/authfront/authfront/internal/session"
	"github.com/authfront/authfront/internal/storage"
)

func newAdminFixture(t *testing.T) (*AdminHandler, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	hash, err := crypto.HashPassword("admin-password")
	require.NoError(t, err)

	handler := NewAdminHandler(store, config.AdminConfig{
		Username:     "ops",
		PasswordHash: config.Secret(hash),
	})
	return handler, store
}

func TestAdminSessionsRequiresAuth(t *testing.T) {
	handler, _ := newAdminFixture(t)

	tests := []struct {
		name     string
		username string
		password string
		noAuth   bool
	}{
		{name: "no_credentials", noAuth: true},
		{name: "wrong_password", username: "ops", password: "wrong"},
		{name: "wrong_username", username: "intruder", password: "admin-password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
			if !tt.noAuth {
				req.SetBasicAuth(tt.username, tt.password)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
		})
	}
}

func TestAdminSessionsList(t *testing.T) {
	handler, store := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &session.Session{
		ID:        "anonymous-session-id-1234",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.Put(ctx, &session.Session{
		ID:        "authed-session-id-5678",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
		Grant: &session.Grant{
			State:        session.StateTokenAcquired,
			AccessToken:  "secret-access-token",
			RefreshToken: "secret-refresh-token",
			TokenExpiry:  time.Now().Add(10 * time.Minute),
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.SetBasicAuth("ops", "admin-password")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count    int `json:"count"`
		Sessions []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Sessions, 2)

	states := map[string]string{}
	for _, s := range resp.Sessions {
		// Ids are truncated for correlation, never usable as cookies
		assert.LessOrEqual(t, len(s.ID), 8)
		states[s.ID] = s.State
	}
	assert.Equal(t, "anonymous", states["anonymou"])
	assert.Equal(t, "token_acquired", states["authed-s"])

	// Tokens must never appear in the response
	body := rec.Body.String()
	assert.NotContains(t, body, "secret-access-token")
	assert.NotContains(t, body, "secret-refresh-token")
}

func TestAdminSessionsMethodNotAllowed(t *testing.T) {
	handler, _ := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/sessions", nil)
	req.SetBasicAuth("ops", "admin-password")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
