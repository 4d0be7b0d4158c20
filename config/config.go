// Package config loads clippy's YAML configuration and applies CLIPPY_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	// PageURL is opened in the picking tab at startup.
	PageURL string `yaml:"page_url"`
	// Hosts adds Host headers the panel answers besides the loopback
	// names of Listen, e.g. a LAN address when listening on 0.0.0.0.
	Hosts []string `yaml:"hosts"`

	Browser BrowserConfig `yaml:"browser"`
	Chat    ChatConfig    `yaml:"chat"`
	Capture CaptureConfig `yaml:"capture"`
	Auth    AuthConfig    `yaml:"auth"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Audit   AuditConfig   `yaml:"audit"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Headless         bool     `yaml:"headless"`
	Stealth          *bool    `yaml:"stealth"`
	UserDataDir      string   `yaml:"user_data_dir"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// StealthEnabled defaults to true when unset.
func (b BrowserConfig) StealthEnabled() bool {
	return b.Stealth == nil || *b.Stealth
}

// ChatConfig selects the chat log backend.
type ChatConfig struct {
	Backend  string `yaml:"backend"` // sqlite | redis
	RedisURL string `yaml:"redis_url"`
	// Poll is how often the SQLite backend looks for entries written by
	// other processes.
	Poll time.Duration `yaml:"poll"`
}

// CaptureConfig controls what a pick stores.
type CaptureConfig struct {
	Format string `yaml:"format"` // text | markdown
}

// AuthConfig controls local sign-in.
type AuthConfig struct {
	// Secret signs session tokens. It is hashed to 32 bytes.
	Secret     string        `yaml:"secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	Revalidate time.Duration `yaml:"revalidate"`
	// SecureCookie marks the session cookie Secure. Enable behind TLS.
	SecureCookie bool `yaml:"secure_cookie"`
}

// BridgeConfig bounds request/response exchanges between surfaces.
type BridgeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// AuditConfig controls the audit log of captures and MCP tool calls.
type AuditConfig struct {
	Disabled bool `yaml:"disabled"`
	// Retention is how long entries are kept. Default: 30 days.
	Retention time.Duration `yaml:"retention"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path when it is non-empty, then applies the environment and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8787"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PageURL == "" {
		c.PageURL = "about:blank"
	}
	if c.Chat.Backend == "" {
		c.Chat.Backend = "sqlite"
	}
	if c.Chat.Poll <= 0 {
		c.Chat.Poll = 250 * time.Millisecond
	}
	if c.Capture.Format == "" {
		c.Capture.Format = "text"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.Revalidate <= 0 {
		c.Auth.Revalidate = 5 * time.Minute
	}
	if c.Bridge.Timeout <= 0 {
		c.Bridge.Timeout = 5 * time.Second
	}
	if c.Audit.Retention <= 0 {
		c.Audit.Retention = 30 * 24 * time.Hour
	}
}

// ApplyEnv overrides fields from CLIPPY_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("CLIPPY_LISTEN", &c.Listen)
	str("CLIPPY_DATA_DIR", &c.DataDir)
	str("CLIPPY_LOG_LEVEL", &c.LogLevel)
	str("CLIPPY_PAGE_URL", &c.PageURL)
	str("CLIPPY_BROWSER_REMOTE", &c.Browser.Remote)
	str("CLIPPY_CHAT_BACKEND", &c.Chat.Backend)
	str("CLIPPY_REDIS_URL", &c.Chat.RedisURL)
	str("CLIPPY_CAPTURE_FORMAT", &c.Capture.Format)
	str("CLIPPY_SECRET", &c.Auth.Secret)

	if v := getenv("CLIPPY_HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: CLIPPY_HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}
	if v := getenv("CLIPPY_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: CLIPPY_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = d
	}
	return nil
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Chat.Backend {
	case "sqlite":
	case "redis":
		if c.Chat.RedisURL == "" {
			errs = append(errs, errors.New("chat.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("chat.backend %q: want sqlite or redis", c.Chat.Backend))
	}
	switch c.Capture.Format {
	case "text", "markdown":
	default:
		errs = append(errs, fmt.Errorf("capture.format %q: want text or markdown", c.Capture.Format))
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret (or CLIPPY_SECRET) is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DBPath is the SQLite database under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "clippy.db")
}
