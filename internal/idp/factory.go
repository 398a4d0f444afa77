package idp

import (
	"fmt"

	"github.com/authfront/authfront/internal/config"
)

// NewProvider creates a Provider based on the ProviderConfig
func NewProvider(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case config.ProviderKindDiscord:
		return NewDiscordProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.Scopes,
		), nil

	case config.ProviderKindGoogle:
		return NewGoogleProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.Scopes,
		), nil

	case config.ProviderKindOAuth2:
		return NewOAuth2Provider(OAuth2Config{
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
		})

	default:
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Kind)
	}
}
