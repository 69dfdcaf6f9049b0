package config

import "time"

// Config is the root configuration for firstblood.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Admin     AdminConfig     `yaml:"admin"`
	APITokens []APITokenEntry `yaml:"api_tokens"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	MCP       MCPConfig       `yaml:"mcp"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// NotifierConfig controls outbound webhook delivery.
type NotifierConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RatePerMinute int           `yaml:"rate_per_minute"` // 0 disables the outbound limit
	Burst         int           `yaml:"burst"`
	Username      string        `yaml:"username"`

	// Webhook seeds the stored endpoint on first start only.
	Webhook string `yaml:"webhook"`
}

type AdminConfig struct {
	Username     string        `yaml:"username"`
	PasswordHash string        `yaml:"password_hash"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

// APITokenEntry is a machine credential. Only the SHA-256 hash of the token is stored.
type APITokenEntry struct {
	Name      string `yaml:"name"`
	TokenHash string `yaml:"token_hash"`
	Scope     string `yaml:"scope"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TunnelConfig exposes the server through an ngrok endpoint so a hosted
// platform can reach the ingestion API.
type TunnelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Provider  string `yaml:"provider"`
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
}

// Token scopes.
const (
	ScopePlatform = "platform"
	ScopeAdmin    = "admin"
	ScopeAll      = "*"
)

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8430,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Path: "~/.config/firstblood/firstblood.db",
		},
		Notifier: NotifierConfig{
			Timeout:       5 * time.Second,
			Burst:         5, // used once rate_per_minute is set
		},
		Admin: AdminConfig{
			Username:   "admin",
			SessionTTL: 12 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 300,
			Burst:             50,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		Tunnel: TunnelConfig{
			Provider: "ngrok",
		},
	}
}
