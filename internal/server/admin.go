package server

import (
	"net/http"
	"time"

	"github.com/authfront/authfront/internal/config"
	"github.com/authfront/authfront/internal/crypto"
	jsonwriter "github.com/authfront/authfront/internal/json"
	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
	"github.com/authfront/authfront/internal/storage"
)

// AdminHandler exposes read-only session inspection behind basic auth.
// Tokens are never included in the response.
type AdminHandler struct {
	store storage.Store
	cfg   config.AdminConfig
}

// NewAdminHandler creates the admin handler
func NewAdminHandler(store storage.Store, cfg config.AdminConfig) *AdminHandler {
	return &AdminHandler{store: store, cfg: cfg}
}

// sessionSummary is the wire form of a session for inspection. The id is
// truncated: enough to correlate with logs, not enough to hijack.
type sessionSummary struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenExpiry time.Time `json:"token_expiry,omitzero"`
}

// ServeHTTP implements http.Handler for GET /admin/sessions
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username, password, ok := r.BasicAuth()
	if !ok || username != h.cfg.Username ||
		!crypto.CheckPassword([]byte(h.cfg.PasswordHash), password) {
		w.Header().Set("WWW-Authenticate", `Basic realm="authfront admin"`)
		jsonwriter.WriteUnauthorized(w, "Invalid credentials")
		return
	}

	sessions, err := h.store.List(r.Context())
	if err != nil {
		log.LogError("Failed to list sessions: %v", err)
		jsonwriter.WriteInternalServerError(w, "Failed to list sessions")
		return
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, summarize(sess))
	}

	_ = jsonwriter.Write(w, map[string]any{
		"sessions": summaries,
		"count":    len(summaries),
	})
}

func summarize(sess *session.Session) sessionSummary {
	summary := sessionSummary{
		ID:        truncateID(sess.ID),
		State:     string(sess.State()),
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	}
	if sess.Grant != nil {
		summary.TokenExpiry = sess.Grant.TokenExpiry
	}
	return summary
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
