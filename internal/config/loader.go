package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/taskpulse/taskpulse.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskpulse", "taskpulse.yaml"))
	}

	paths = append(paths, "taskpulse.yaml")

	if envPath := os.Getenv("TASKPULSE_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/taskpulse/taskpulse.yaml < ~/.config/taskpulse/taskpulse.yaml < ./taskpulse.yaml < $TASKPULSE_CONFIG
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
// A missing file is an error here, unlike the search path walk in Load.
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

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
	if v := os.Getenv("TASKPULSE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TASKPULSE_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("TASKPULSE_NGROK_AUTHTOKEN"); v != "" {
		cfg.Tunnel.AuthToken = v
	}
	if v := os.Getenv("TASKPULSE_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("TASKPULSE_FRONTEND_URL"); v != "" {
		cfg.Server.CORSOrigins = []string{v}
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

	expanded := os.ExpandEnv(string(data))

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

	switch cfg.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be one of debug, info, warn, error, got %q", cfg.Server.LogLevel)
	}

	if cfg.Auth.JWTSecret == "" && cfg.Auth.SecretDir == "" && cfg.Auth.JWKSURL == "" {
		return fmt.Errorf("auth requires one of jwt_secret, secret_dir or jwks_url")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if cfg.Redis.RelayChannel != "" && cfg.Redis.URL == "" {
		return fmt.Errorf("redis.relay_channel requires redis.url")
	}
	if cfg.Redis.CacheTTL < 0 {
		return fmt.Errorf("redis.cache_ttl must not be negative")
	}

	if cfg.Realtime.SendBuffer < 1 {
		return fmt.Errorf("realtime.send_buffer must be at least 1")
	}
	if cfg.Realtime.WriteTimeout <= 0 || cfg.Realtime.PingInterval <= 0 {
		return fmt.Errorf("realtime.write_timeout and realtime.ping_interval must be positive")
	}
	if cfg.Realtime.MaxMessageSize < 64 {
		return fmt.Errorf("realtime.max_message_size must be at least 64 bytes")
	}

	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	if cfg.Tunnel.Enabled && cfg.Tunnel.AuthToken == "" {
		return fmt.Errorf("tunnel.authtoken is required when the tunnel is enabled (or set TASKPULSE_NGROK_AUTHTOKEN)")
	}

	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	cfg.Auth.SecretDir = ExpandHome(cfg.Auth.SecretDir)

	return nil
}
