package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok || version == "" {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != "v1" {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// Parse directly into the typed Config struct; the custom
	// UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates structure before environment resolution.
// Secrets must come through env references so they never sit in the file.
func validateRawConfig(rawConfig map[string]any) error {
	checkEnvRef := func(section map[string]any, field, path string) error {
		value, exists := section[field]
		if !exists {
			return nil
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", path)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", path)
			}
		}
		return nil
	}

	if provider, ok := rawConfig["provider"].(map[string]any); ok {
		if err := checkEnvRef(provider, "clientSecret", "provider.clientSecret"); err != nil {
			return err
		}
	}
	if storage, ok := rawConfig["storage"].(map[string]any); ok {
		if redis, ok := storage["redis"].(map[string]any); ok {
			if err := checkEnvRef(redis, "password", "storage.redis.password"); err != nil {
				return err
			}
		}
	}
	if admin, ok := rawConfig["admin"].(map[string]any); ok {
		if err := checkEnvRef(admin, "passwordHash", "admin.passwordHash"); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the resolved configuration
func Validate(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if err := validateProvider(&config.Provider); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}

	if config.Provider.RedirectURI == "" {
		config.Provider.RedirectURI = config.Server.BaseURL
	}

	if err := validateStorage(&config.Storage); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if config.Admin != nil {
		if config.Admin.Username == "" {
			return fmt.Errorf("admin.username is required when admin is configured")
		}
		if config.Admin.PasswordHash == "" {
			return fmt.Errorf("admin.passwordHash is required when admin is configured")
		}
	}

	return nil
}

func validateProvider(p *ProviderConfig) error {
	kinds := []ProviderKind{ProviderKindDiscord, ProviderKindGoogle, ProviderKindOAuth2}
	if !slices.Contains(kinds, p.Kind) {
		return fmt.Errorf("unknown provider kind: %q", p.Kind)
	}
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if p.Kind == ProviderKindOAuth2 {
		if p.AuthorizationURL == "" || p.TokenURL == "" || p.UserInfoURL == "" {
			return fmt.Errorf("oauth2 provider requires authorizationUrl, tokenUrl and userInfoUrl")
		}
	}
	return nil
}

func validateStorage(s *StorageConfig) error {
	switch s.Kind {
	case "", StorageKindMemory:
		s.Kind = StorageKindMemory
	case StorageKindRedis:
		if s.Redis == nil || s.Redis.Addr == "" {
			return fmt.Errorf("redis storage requires storage.redis.addr")
		}
	case StorageKindFirestore:
		if s.Firestore == nil || s.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore storage requires storage.firestore.projectId")
		}
	default:
		return fmt.Errorf("unknown storage kind: %q", s.Kind)
	}
	return nil
}
