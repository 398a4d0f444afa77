// Package idp abstracts the upstream identity provider: building authorize
// URLs, exchanging authorization codes and refresh tokens, and fetching the
// authenticated principal.
package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrInvalidGrant marks a terminal exchange failure: the code or refresh
// token was rejected by the provider. The attempt must be discarded, not
// retried, since authorization codes are single-use.
var ErrInvalidGrant = errors.New("invalid grant")

// Principal is the authenticated identity behind an access token
type Principal struct {
	Provider  string `json:"provider"`
	Subject   string `json:"sub"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Token is a credential set returned by the provider's token endpoint
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier (e.g., "discord", "google", "oauth2").
	Type() string

	// AuthURL generates the authorization URL for the OAuth flow.
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	ExchangeCode(ctx context.Context, code string) (*Token, error)

	// Refresh exchanges a refresh token for a fresh token set.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)

	// UserInfo fetches the principal behind an access token.
	UserInfo(ctx context.Context, accessToken string) (*Principal, error)
}

// IsInvalidGrant reports whether an exchange failure is terminal for the
// grant, as opposed to a transient network or provider outage.
func IsInvalidGrant(err error) bool {
	return errors.Is(err, ErrInvalidGrant)
}

// classifyExchangeError maps oauth2 library failures onto the terminal /
// transient split. The provider answering 4xx means it understood the
// request and rejected the grant; anything else (timeouts, 5xx, connection
// resets) may succeed on a later attempt.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return fmt.Errorf("%w: %s", ErrInvalidGrant, retrieveErr.ErrorCode)
		}
	}
	return err
}

func fromOAuth2Token(token *oauth2.Token) *Token {
	return &Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
}

// refreshToken drives a refresh grant through the oauth2 library by handing
// its TokenSource an already-expired token carrying only the refresh token.
// The library decides HOW to refresh (request format, provider quirks,
// refresh token rotation); callers decide WHEN.
func refreshToken(ctx context.Context, config *oauth2.Config, refresh string) (*Token, error) {
	stale := &oauth2.Token{
		RefreshToken: refresh,
		Expiry:       time.Now().Add(-time.Minute),
	}

	token, err := config.TokenSource(ctx, stale).Token()
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	return fromOAuth2Token(token), nil
}

func decodeUserInfoStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Access token revoked or expired upstream despite local bookkeeping
		return fmt.Errorf("%w: userinfo status %d", ErrInvalidGrant, resp.StatusCode)
	}
	return fmt.Errorf("failed to get user info: status %d", resp.StatusCode)
}
