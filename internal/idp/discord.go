package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	discordAuthURL     = "https://discord.com/api/oauth2/authorize"
	discordTokenURL    = "https://discord.com/api/oauth2/token"
	discordUserInfoURL = "https://discord.com/api/users/@me"
	discordCDNBase     = "https://cdn.discordapp.com"
)

// DiscordProvider implements the Provider interface for Discord OAuth2
type DiscordProvider struct {
	config      oauth2.Config
	userInfoURL string
}

// discordUserResponse represents Discord's /users/@me response.
// GlobalName is the display name; Username is the unique handle.
type discordUserResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	Email      string `json:"email"`
}

// NewDiscordProvider creates a new Discord OAuth provider.
// Scopes default to "identify", which is all the profile view needs.
func NewDiscordProvider(clientID, clientSecret, redirectURI string, scopes []string) *DiscordProvider {
	if len(scopes) == 0 {
		scopes = []string{"identify"}
	}
	return &DiscordProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  discordAuthURL,
				TokenURL: discordTokenURL,
			},
		},
		userInfoURL: discordUserInfoURL,
	}
}

// Type returns the provider type
func (p *DiscordProvider) Type() string {
	return "discord"
}

// AuthURL generates the authorization URL. prompt=none skips the consent
// screen for users who already approved the application.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("prompt", "none"),
	)
}

// ExchangeCode exchanges an authorization code for tokens
func (p *DiscordProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	return fromOAuth2Token(token), nil
}

// Refresh exchanges a refresh token for a fresh token set
func (p *DiscordProvider) Refresh(ctx context.Context, refresh string) (*Token, error) {
	return refreshToken(ctx, &p.config, refresh)
}

// UserInfo fetches the Discord user behind an access token
func (p *DiscordProvider) UserInfo(ctx context.Context, accessToken string) (*Principal, error) {
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

	var user discordUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	username := user.GlobalName
	if username == "" {
		username = user.Username
	}

	var avatarURL string
	if user.Avatar != "" {
		avatarURL = fmt.Sprintf("%s/avatars/%s/%s.png", discordCDNBase, user.ID, user.Avatar)
	}

	return &Principal{
		Provider:  "discord",
		Subject:   user.ID,
		Username:  username,
		Email:     user.Email,
		AvatarURL: avatarURL,
	}, nil
}
