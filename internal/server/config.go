// Package server provides configuration loading for the chat relay. Values
// come from environment variables via envconfig, with sanitized defaults so
// a bare environment still yields a runnable server.
package server

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
)

// Config holds every runtime setting. Admin credentials are immutable after
// load; handlers only ever read them.
type Config struct {
	// ListenAddr is the TCP address for the line-protocol listener.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	// HTTPAddr serves the WebSocket bridge. Empty disables the bridge.
	HTTPAddr       string   `envconfig:"HTTP_ADDR" default:":8081"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8081"`

	// DataDir is the root under which the per-run log directory is created.
	DataDir string `envconfig:"DATA_DIR" default:"."`

	AdminUser string `envconfig:"ADMIN_USER" default:"admin"`
	// AdminPasswordHash is a bcrypt hash. When unset, AdminPassword is
	// hashed at startup instead.
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`
	AdminPassword     string `envconfig:"ADMIN_PASSWORD" default:"password123"`

	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"4s"`
	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"49"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// Load reads the environment and returns a validated configuration.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	cfg.sanitize()
	if err := cfg.finalizeCredentials(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewConfig returns a configuration populated with defaults, bypassing the
// environment. Used by tests and embedding callers.
func NewConfig() *Config {
	cfg := &Config{
		ListenAddr:      ":8080",
		HTTPAddr:        ":8081",
		AllowedOrigins:  []string{"http://localhost:8081"},
		DataDir:         ".",
		AdminUser:       "admin",
		AdminPassword:   "password123",
		RateLimitWindow: 4 * time.Second,
		RateLimitMax:    49,
		ShutdownTimeout: 5 * time.Second,
	}
	cfg.sanitize()
	return cfg
}

func (c *Config) sanitize() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 4 * time.Second
	}
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = 49
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// finalizeCredentials hashes the plaintext fallback when no hash was
// configured, so the rest of the server only ever compares against bcrypt.
func (c *Config) finalizeCredentials() error {
	if c.AdminPasswordHash != "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	c.AdminPasswordHash = string(hash)
	return nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.AdminUser == "" {
		return fmt.Errorf("ADMIN_USER must not be empty")
	}
	if c.AdminPasswordHash == "" && c.AdminPassword == "" {
		return fmt.Errorf("either ADMIN_PASSWORD_HASH or ADMIN_PASSWORD must be set")
	}
	return nil
}

// checkAdminCredentials compares a login attempt against the configured
// identity.
func (c *Config) checkAdminCredentials(username, password string) bool {
	if username != c.AdminUser {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.AdminPasswordHash), []byte(password)) == nil
}
