package config

import "time"

// Config is the root configuration for taskpulse.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	MCP       MCPConfig       `yaml:"mcp"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
}

type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	PublicURL   string   `yaml:"public_url"`
	LogLevel    string   `yaml:"log_level"`
	LogFile     string   `yaml:"log_file"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// AuthConfig configures bearer token verification. Tokens are HS256-signed
// with JWTSecret (or the secret stored under SecretDir), or RS256-signed by
// a provider publishing its keys at JWKSURL.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	SecretDir string        `yaml:"secret_dir"`
	JWKSURL   string        `yaml:"jwks_url"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig is optional. With an empty URL neither the read cache nor the
// cross-instance relay is started.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	RelayChannel string        `yaml:"relay_channel"`
}

type RealtimeConfig struct {
	SendBuffer     int           `yaml:"send_buffer"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TunnelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        3000,
			LogLevel:    "info",
			CORSOrigins: []string{"http://localhost:5173"},
		},
		Auth: AuthConfig{
			SecretDir: "~/.config/taskpulse",
			TokenTTL:  24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path: "~/.config/taskpulse/taskpulse.db",
		},
		Redis: RedisConfig{
			CacheTTL: 30 * time.Second,
		},
		Realtime: RealtimeConfig{
			SendBuffer:     64,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			MaxMessageSize: 4096,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 300,
			Burst:             100,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
	}
}
