// Package session defines the server-side session and the per-session grant
// record that tracks a user's progress through the authorization-code flow.
package session

import (
	"time"
)

// State is the lifecycle state of a session's grant record
type State string

const (
	// StateAnonymous means no grant exists for the session
	StateAnonymous State = "anonymous"
	// StateAwaitingCallback means a login was initiated and the provider
	// has not yet redirected back
	StateAwaitingCallback State = "awaiting_callback"
	// StateCodeReceived means the callback delivered an authorization code
	// that has not been exchanged yet
	StateCodeReceived State = "code_received"
	// StateTokenAcquired means the session holds access/refresh credentials
	StateTokenAcquired State = "token_acquired"
	// StateRefreshPending means a refresh exchange is in flight
	StateRefreshPending State = "refresh_pending"
	// StateRevoked means the provider rejected the session's credentials
	StateRevoked State = "revoked"
)

// Grant is the per-session record of the authorization-code flow.
// AccessToken and TokenExpiry are always set together via SetTokens.
type Grant struct {
	State             State     `json:"state"`
	AuthorizationCode string    `json:"authorization_code,omitempty"`
	AccessToken       string    `json:"access_token,omitempty"`
	RefreshToken      string    `json:"refresh_token,omitempty"`
	TokenExpiry       time.Time `json:"token_expiry,omitzero"`
	PendingStateToken string    `json:"pending_state_token,omitempty"`
}

// Session is a server-side session bound to a browser via an opaque cookie.
// A nil Grant means the session is anonymous.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Grant     *Grant    `json:"grant,omitempty"`
}

// State returns the grant state, StateAnonymous when no grant exists
func (s *Session) State() State {
	if s.Grant == nil {
		return StateAnonymous
	}
	return s.Grant.State
}

// TokenExpired reports whether the session's access token has passed its
// local expiry horizon. Sessions without tokens are considered expired.
func (s *Session) TokenExpired(now time.Time) bool {
	if s.Grant == nil || s.Grant.AccessToken == "" {
		return true
	}
	return !now.Before(s.Grant.TokenExpiry)
}

// SetTokens installs a fresh credential pair. The access token and its
// expiry are never set independently. An empty refreshToken keeps the
// previous one, since providers only rotate refresh tokens sometimes.
func (g *Grant) SetTokens(accessToken, refreshToken string, expiry time.Time) {
	g.AccessToken = accessToken
	if refreshToken != "" {
		g.RefreshToken = refreshToken
	}
	g.TokenExpiry = expiry
	g.State = StateTokenAcquired
}

// ConsumeCode returns the pending authorization code and clears it.
// Codes are single-use: both successful and failed exchanges consume them.
func (g *Grant) ConsumeCode() string {
	code := g.AuthorizationCode
	g.AuthorizationCode = ""
	return code
}

// ConsumePendingState returns the anti-forgery token for the current login
// attempt and clears it, so a replayed callback never validates twice.
func (g *Grant) ConsumePendingState() string {
	token := g.PendingStateToken
	g.PendingStateToken = ""
	return token
}
