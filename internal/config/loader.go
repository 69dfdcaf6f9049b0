package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envRef matches ${VAR} references. The bare $VAR form is left alone so
// bcrypt hashes ($2a$10$...) can be written in the file verbatim.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/firstblood/firstblood.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "firstblood", "firstblood.yaml"))
	}

	paths = append(paths, "firstblood.yaml")

	if envPath := os.Getenv("FIRSTBLOOD_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/firstblood/firstblood.yaml < ~/.config/firstblood/firstblood.yaml < ./firstblood.yaml < $FIRSTBLOOD_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	return finish(cfg)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if hash := os.Getenv("FIRSTBLOOD_ADMIN_PASSWORD_HASH"); hash != "" {
		cfg.Admin.PasswordHash = hash
	}
	if webhook := os.Getenv("FIRSTBLOOD_WEBHOOK"); webhook != "" {
		cfg.Notifier.Webhook = webhook
	}
	if token := os.Getenv("FIRSTBLOOD_NGROK_AUTHTOKEN"); token != "" {
		cfg.Tunnel.AuthToken = token
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := envRef.ReplaceAllStringFunc(string(data), func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Notifier.Timeout <= 0 {
		return fmt.Errorf("notifier.timeout must be positive, got %s", cfg.Notifier.Timeout)
	}

	if cfg.Notifier.RatePerMinute < 0 || cfg.Notifier.Burst < 0 {
		return fmt.Errorf("notifier.rate_per_minute and notifier.burst must not be negative")
	}

	if cfg.Admin.PasswordHash != "" && cfg.Admin.Username == "" {
		return fmt.Errorf("admin.username is required when admin.password_hash is set")
	}

	for i, tok := range cfg.APITokens {
		if tok.TokenHash == "" {
			return fmt.Errorf("api_tokens[%d].token_hash is required", i)
		}
		switch tok.Scope {
		case ScopePlatform, ScopeAdmin, ScopeAll:
		default:
			return fmt.Errorf("api_tokens[%d].scope must be one of platform, admin, *; got %q", i, tok.Scope)
		}
	}

	if cfg.Tunnel.Enabled {
		if cfg.Tunnel.Provider != "ngrok" {
			return fmt.Errorf("tunnel.provider must be ngrok, got %q", cfg.Tunnel.Provider)
		}
		if cfg.Tunnel.AuthToken == "" {
			return fmt.Errorf("tunnel.authtoken is required when tunnel is enabled (or set FIRSTBLOOD_NGROK_AUTHTOKEN)")
		}
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Server.LogFile = ExpandHome(cfg.Server.LogFile)

	return nil
}
