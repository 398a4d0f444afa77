package server

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/authfront/authfront/internal/cookie"
	"github.com/authfront/authfront/internal/idp"
	"github.com/authfront/authfront/internal/lifecycle"
	"github.com/authfront/authfront/internal/log"
	"github.com/authfront/authfront/internal/session"
)

// RootHandler serves the single user-facing endpoint. GET branches on the
// provider callback query parameters versus a plain view render; POST
// handles logout. Every failure resolves to a coherent view, never a raw
// error page.
type RootHandler struct {
	controller   *lifecycle.Controller
	providerName string
	cookieName   string
	preAuthTTL   time.Duration
	authTTL      time.Duration
	rolling      bool
}

// NewRootHandler creates the root handler
func NewRootHandler(
	controller *lifecycle.Controller,
	providerName string,
	cookieName string,
	preAuthTTL time.Duration,
	authTTL time.Duration,
	rolling bool,
) *RootHandler {
	if cookieName == "" {
		cookieName = cookie.DefaultSessionCookie
	}
	return &RootHandler{
		controller:   controller,
		providerName: providerName,
		cookieName:   cookieName,
		preAuthTTL:   preAuthTTL,
		authTTL:      authTTL,
		rolling:      rolling,
	}
}

// ServeHTTP implements http.Handler
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RootHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, isNew, err := h.controller.Load(ctx, cookie.GetSession(r, h.cookieName))
	if err != nil {
		log.LogErrorWithFields("server", "Failed to load session", map[string]any{
			"error": err.Error(),
		})
		h.renderLoginNotice(w, "Sign-in is temporarily unavailable. Please try again shortly.")
		return
	}
	if isNew {
		cookie.SetSession(w, h.cookieName, sess.ID, h.preAuthTTL)
	}

	query := r.URL.Query()

	// Provider error redirect: discard the pending attempt
	if errCode := query.Get("error"); errCode != "" {
		if err := h.controller.FailCallback(ctx, sess.ID, errCode, query.Get("error_description")); err != nil {
			log.LogErrorWithFields("server", "Failed to process provider error", map[string]any{
				"error": err.Error(),
			})
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	// Provider callback with code and state
	if query.Has("code") || query.Has("state") {
		h.handleCallback(w, r, sess.ID, query.Get("code"), query.Get("state"))
		return
	}

	h.renderView(w, r, sess)
}

func (h *RootHandler) handleCallback(w http.ResponseWriter, r *http.Request, sessionID, code, state string) {
	err := h.controller.HandleCallback(r.Context(), sessionID, code, state)
	if err == nil {
		// The session was upgraded to its long-lived form; the cookie
		// follows only now, keeping the anti-forgery window short.
		cookie.SetSession(w, h.cookieName, sessionID, h.authTTL)
	}
	// Success and failure both land back on the root view: it renders
	// whatever state the callback resolved to.
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *RootHandler) renderView(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	ctx := r.Context()

	switch sess.State() {
	case session.StateTokenAcquired, session.StateRefreshPending:
		principal, err := h.controller.Principal(ctx, sess.ID)
		if err == nil {
			if h.rolling {
				cookie.SetSession(w, h.cookieName, sess.ID, h.authTTL)
			}
			h.renderProfile(w, principal)
			return
		}
		if errors.Is(err, lifecycle.ErrProviderUnavailable) {
			// Degrade this request only; the grant survives for a retry
			h.renderLoginNotice(w, "We couldn't reach the identity provider. Please try again.")
			return
		}
		// Grant gone: fall through to a fresh login attempt
	}

	h.renderLogin(w, r, sess.ID)
}

func (h *RootHandler) renderLogin(w http.ResponseWriter, r *http.Request, sessionID string) {
	authURL, err := h.controller.BeginLogin(r.Context(), sessionID)
	switch {
	case err == nil:
		h.renderPage(w, loginTemplate, LoginPageData{
			ProviderName: h.providerName,
			AuthURL:      authURL,
		})
	case errors.Is(err, lifecycle.ErrAlreadyAuthenticated):
		// Stale client bookmark, not corruption
		log.LogWarnWithFields("server", "Login requested for authenticated session", map[string]any{
			"session": sessionID,
		})
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		log.LogErrorWithFields("server", "Failed to initiate login", map[string]any{
			"session": sessionID,
			"error":   err.Error(),
		})
		h.renderLoginNotice(w, "Sign-in is temporarily unavailable. Please try again shortly.")
	}
}

func (h *RootHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if r.PostForm.Get("logout") != "" {
		if id := cookie.GetSession(r, h.cookieName); id != "" {
			fresh, err := h.controller.Logout(r.Context(), id)
			if err != nil {
				log.LogErrorWithFields("server", "Logout failed", map[string]any{
					"session": id,
					"error":   err.Error(),
				})
				cookie.ClearSession(w, h.cookieName)
			} else {
				cookie.SetSession(w, h.cookieName, fresh.ID, h.preAuthTTL)
			}
		}
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *RootHandler) renderProfile(w http.ResponseWriter, principal *idp.Principal) {
	h.renderPage(w, profileTemplate, ProfilePageData{
		Username:  principal.Username,
		Email:     principal.Email,
		AvatarURL: principal.AvatarURL,
	})
}

func (h *RootHandler) renderLoginNotice(w http.ResponseWriter, notice string) {
	h.renderPage(w, loginTemplate, LoginPageData{
		ProviderName: h.providerName,
		Notice:       notice,
	})
}

// renderPage executes the template into a buffer first, so a template
// failure can still produce a clean error status instead of a torn page.
func (h *RootHandler) renderPage(w http.ResponseWriter, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.LogError("Failed to render template: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
