package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// resolveValue parses a config value that may be either a plain JSON string
// or an environment reference of the form {"$env": "VAR_NAME"}.
// Environment references are resolved immediately at load time.
func resolveValue(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var ref struct {
		Env string `json:"$env"`
	}
	if err := json.Unmarshal(raw, &ref); err != nil || ref.Env == "" {
		return "", fmt.Errorf("value must be a string or {\"$env\": \"VAR_NAME\"}")
	}

	value, ok := os.LookupEnv(ref.Env)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", ref.Env)
	}
	return value, nil
}

func parseOptionalDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig,
// resolving env references for the client credentials
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Kind             ProviderKind    `json:"kind"`
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret"`
		RedirectURI      string          `json:"redirectUri,omitempty"`
		Scopes           []string        `json:"scopes,omitempty"`
		AuthorizationURL string          `json:"authorizationUrl,omitempty"`
		TokenURL         string          `json:"tokenUrl,omitempty"`
		UserInfoURL      string          `json:"userInfoUrl,omitempty"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.RedirectURI = raw.RedirectURI
	p.Scopes = raw.Scopes
	p.AuthorizationURL = raw.AuthorizationURL
	p.TokenURL = raw.TokenURL
	p.UserInfoURL = raw.UserInfoURL

	clientID, err := resolveValue(raw.ClientID)
	if err != nil {
		return fmt.Errorf("parsing clientId: %w", err)
	}
	p.ClientID = clientID

	clientSecret, err := resolveValue(raw.ClientSecret)
	if err != nil {
		return fmt.Errorf("parsing clientSecret: %w", err)
	}
	p.ClientSecret = Secret(clientSecret)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for SessionsConfig,
// parsing duration strings
func (s *SessionsConfig) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		CookieName          string `json:"cookieName,omitempty"`
		PreAuthTTL          string `json:"preAuthTtl,omitempty"`
		AuthenticatedTTL    string `json:"authenticatedTtl,omitempty"`
		Rolling             bool   `json:"rolling,omitempty"`
		TokenExpiryOverride string `json:"tokenExpiryOverride,omitempty"`
		ProviderTimeout     string `json:"providerTimeout,omitempty"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.CookieName = raw.CookieName
	s.Rolling = raw.Rolling

	var err error
	if s.PreAuthTTL, err = parseOptionalDuration(raw.PreAuthTTL, "preAuthTtl"); err != nil {
		return err
	}
	if s.AuthenticatedTTL, err = parseOptionalDuration(raw.AuthenticatedTTL, "authenticatedTtl"); err != nil {
		return err
	}
	if s.TokenExpiryOverride, err = parseOptionalDuration(raw.TokenExpiryOverride, "tokenExpiryOverride"); err != nil {
		return err
	}
	if s.ProviderTimeout, err = parseOptionalDuration(raw.ProviderTimeout, "providerTimeout"); err != nil {
		return err
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for RedisConfig,
// resolving the password env reference
func (r *RedisConfig) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Addr      string          `json:"addr"`
		Username  string          `json:"username,omitempty"`
		Password  json.RawMessage `json:"password,omitempty"`
		DB        int             `json:"db,omitempty"`
		KeyPrefix string          `json:"keyPrefix,omitempty"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Addr = raw.Addr
	r.Username = raw.Username
	r.DB = raw.DB
	r.KeyPrefix = raw.KeyPrefix

	password, err := resolveValue(raw.Password)
	if err != nil {
		return fmt.Errorf("parsing password: %w", err)
	}
	r.Password = Secret(password)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for AdminConfig,
// resolving the password hash env reference
func (a *AdminConfig) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Username     string          `json:"username"`
		PasswordHash json.RawMessage `json:"passwordHash"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Username = raw.Username

	hash, err := resolveValue(raw.PasswordHash)
	if err != nil {
		return fmt.Errorf("parsing passwordHash: %w", err)
	}
	a.PasswordHash = Secret(hash)

	return nil
}
