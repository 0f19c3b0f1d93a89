// Package config provides configuration loading and defaults for the
// MagicBell feed client and its MCP server.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/magicbell-io/magicbell-go/internal/identity"
)

// DefaultPageSize is the number of notifications requested per page when the
// store section does not set one.
const DefaultPageSize = 20

// ResourceFilter holds allowlist and denylist entries for a resource category.
type ResourceFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// SafetyConfig groups the filters applied to feed actions requested through
// MCP tools. Patterns match action names such as "archive" or "mark_all_*".
type SafetyConfig struct {
	Actions ResourceFilter `yaml:"actions"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// ServerConfig holds network and authentication settings for the MCP endpoint.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// MagicBellConfig holds connection details for the remote notification API.
type MagicBellConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	// Timeout is the HTTP request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// StoreConfig describes the default feed view. Read and Seen are tri-state:
// nil means no filter.
type StoreConfig struct {
	PageSize   int      `yaml:"page_size"`
	Read       *bool    `yaml:"read"`
	Seen       *bool    `yaml:"seen"`
	Archived   bool     `yaml:"archived"`
	Categories []string `yaml:"categories"`
	Topics     []string `yaml:"topics"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	MagicBell MagicBellConfig `yaml:"magicbell"`
	User      identity.User   `yaml:"user"`
	Store     StoreConfig     `yaml:"store"`
	Safety    SafetyConfig    `yaml:"safety"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// On error, nil is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a new Config populated with default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		MagicBell: MagicBellConfig{
			URL:     "https://api.magicbell.com",
			Timeout: 30,
		},
		Store: StoreConfig{
			PageSize: DefaultPageSize,
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "/config/audit.log",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - MAGICBELL_MCP_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - MAGICBELL_URL overrides cfg.MagicBell.URL
//   - MAGICBELL_API_KEY overrides cfg.MagicBell.APIKey
//   - MAGICBELL_API_SECRET overrides cfg.MagicBell.APISecret
//   - MAGICBELL_USER_EMAIL overrides cfg.User.Email
//   - MAGICBELL_USER_EXTERNAL_ID overrides cfg.User.ExternalID
//   - MAGICBELL_USER_HMAC overrides cfg.User.HMAC
//
// Empty values never override.
func ApplyEnvOverrides(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"MAGICBELL_MCP_AUTH_TOKEN", &cfg.Server.AuthToken},
		{"MAGICBELL_URL", &cfg.MagicBell.URL},
		{"MAGICBELL_API_KEY", &cfg.MagicBell.APIKey},
		{"MAGICBELL_API_SECRET", &cfg.MagicBell.APISecret},
		{"MAGICBELL_USER_EMAIL", &cfg.User.Email},
		{"MAGICBELL_USER_EXTERNAL_ID", &cfg.User.ExternalID},
		{"MAGICBELL_USER_HMAC", &cfg.User.HMAC},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Validate checks the settings every command needs before talking to the
// remote API. It fills in a default page size when none is set.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.MagicBell.URL) == "" {
		errs = append(errs, errors.New("magicbell.url is required"))
	}
	if c.MagicBell.APIKey == "" {
		errs = append(errs, errors.New("magicbell.api_key is required"))
	}
	if err := c.User.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Store.PageSize < 0 {
		errs = append(errs, fmt.Errorf("store.page_size must be positive, got %d", c.Store.PageSize))
	}
	if c.Store.PageSize == 0 {
		c.Store.PageSize = DefaultPageSize
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated).
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}

	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}

	cfg.Server.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
