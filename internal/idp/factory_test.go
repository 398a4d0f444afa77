package idp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authfront/authfront/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name         string
		cfg          config.ProviderConfig
		wantErr      bool
		expectedType string
	}{
		{
			name: "discord",
			cfg: config.ProviderConfig{
				Kind:         config.ProviderKindDiscord,
				ClientID:     "id",
				ClientSecret: "secret",
				RedirectURI:  "https://example.com/",
			},
			expectedType: "discord",
		},
		{
			name: "google",
			cfg: config.ProviderConfig{
				Kind:         config.ProviderKindGoogle,
				ClientID:     "id",
				ClientSecret: "secret",
				RedirectURI:  "https://example.com/",
			},
			expectedType: "google",
		},
		{
			name: "generic_oauth2",
			cfg: config.ProviderConfig{
				Kind:             config.ProviderKindOAuth2,
				ClientID:         "id",
				ClientSecret:     "secret",
				RedirectURI:      "https://example.com/",
				AuthorizationURL: "https://idp.example.com/authorize",
				TokenURL:         "https://idp.example.com/token",
				UserInfoURL:      "https://idp.example.com/userinfo",
			},
			expectedType: "oauth2",
		},
		{
			name: "generic_oauth2_missing_endpoints",
			cfg: config.ProviderConfig{
				Kind:     config.ProviderKindOAuth2,
				ClientID: "id",
			},
			wantErr: true,
		},
		{
			name: "unknown_kind",
			cfg: config.ProviderConfig{
				Kind: "saml",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedType, provider.Type())
		})
	}
}
