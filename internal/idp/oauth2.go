package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuth2Config configures a generic OAuth2/OIDC-shaped provider with
// explicitly specified endpoints.
type OAuth2Config struct {
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string

	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// OAuth2Provider implements the Provider interface for any provider
// exposing standard authorization-code and refresh-token grants plus a
// bearer-authenticated userinfo endpoint.
type OAuth2Provider struct {
	config      oauth2.Config
	userInfoURL string
}

// genericUserInfoResponse covers the standard OIDC userinfo claims
type genericUserInfoResponse struct {
	Sub               string `json:"sub"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Picture           string `json:"picture"`
}

// NewOAuth2Provider creates a generic provider from explicit endpoints
func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	if cfg.AuthorizationURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("authorizationUrl, tokenUrl and userInfoUrl are all required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile"}
	}

	return &OAuth2Provider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}, nil
}

// Type returns the provider type
func (p *OAuth2Provider) Type() string {
	return "oauth2"
}

// AuthURL generates the authorization URL
func (p *OAuth2Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode exchanges an authorization code for tokens
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	return fromOAuth2Token(token), nil
}

// Refresh exchanges a refresh token for a fresh token set
func (p *OAuth2Provider) Refresh(ctx context.Context, refresh string) (*Token, error) {
	return refreshToken(ctx, &p.config, refresh)
}

// UserInfo fetches the principal from the configured userinfo endpoint
func (p *OAuth2Provider) UserInfo(ctx context.Context, accessToken string) (*Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if err := decodeUserInfoStatus(resp); err != nil {
		return nil, err
	}

	var user genericUserInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	username := user.Name
	if username == "" {
		username = user.PreferredUsername
	}

	return &Principal{
		Provider:  "oauth2",
		Subject:   user.Sub,
		Username:  username,
		Email:     user.Email,
		AvatarURL: user.Picture,
	}, nil
}
