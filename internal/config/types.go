package config

import (
	"encoding/json"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderKind selects the identity provider implementation
type ProviderKind string

const (
	ProviderKindDiscord ProviderKind = "discord"
	ProviderKindGoogle  ProviderKind = "google"
	ProviderKindOAuth2  ProviderKind = "oauth2"
)

// StorageKind selects the session store backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindRedis     StorageKind = "redis"
	StorageKindFirestore StorageKind = "firestore"
)

// Config is the root configuration
type Config struct {
	Version  string         `json:"version"`
	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Sessions SessionsConfig `json:"sessions"`
	Storage  StorageConfig  `json:"storage"`
	Admin    *AdminConfig   `json:"admin,omitempty"`
}

// ServerConfig holds the HTTP surface settings
type ServerConfig struct {
	// BaseURL is this service's externally visible URL; the provider
	// redirects back to it with code and state query parameters.
	BaseURL string `json:"baseURL"`
	Addr    string `json:"addr"`
}

// ProviderConfig holds the upstream identity provider settings
type ProviderConfig struct {
	Kind         ProviderKind `json:"kind"`
	ClientID     string       `json:"clientId"`
	ClientSecret Secret       `json:"clientSecret"`

	// RedirectURI defaults to the server base URL
	RedirectURI string   `json:"redirectUri,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`

	// Endpoint URLs for the generic oauth2 kind
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	TokenURL         string `json:"tokenUrl,omitempty"`
	UserInfoURL      string `json:"userInfoUrl,omitempty"`
}

// SessionsConfig holds the session lifecycle policy
type SessionsConfig struct {
	CookieName string `json:"cookieName,omitempty"`

	// PreAuthTTL is the short-lived anti-forgery window before a code
	// exchange succeeds; AuthenticatedTTL applies afterwards.
	PreAuthTTL       time.Duration `json:"-"`
	AuthenticatedTTL time.Duration `json:"-"`

	// Rolling extends the authenticated TTL on activity
	Rolling bool `json:"rolling,omitempty"`

	// TokenExpiryOverride caps the provider-declared expires_in with a
	// shorter local horizon when positive
	TokenExpiryOverride time.Duration `json:"-"`

	// ProviderTimeout bounds network calls to the provider
	ProviderTimeout time.Duration `json:"-"`
}

// StorageConfig selects and configures the session store backend
type StorageConfig struct {
	Kind      StorageKind      `json:"kind,omitempty"`
	Redis     *RedisConfig     `json:"redis,omitempty"`
	Firestore *FirestoreConfig `json:"firestore,omitempty"`
}

// RedisConfig holds redis backend settings
type RedisConfig struct {
	Addr      string `json:"addr"`
	Username  string `json:"username,omitempty"`
	Password  Secret `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"keyPrefix,omitempty"`
}

// FirestoreConfig holds firestore backend settings
type FirestoreConfig struct {
	ProjectID  string `json:"projectId"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// AdminConfig protects the session inspection endpoint
type AdminConfig struct {
	Username string `json:"username"`

	// PasswordHash is a bcrypt hash of the admin password
	PasswordHash Secret `json:"passwordHash"`
}
