package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskpulse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults_SetsExpectedValues(t *testing.T) {
	t.Parallel()

	cfg := Defaults()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 64, cfg.Realtime.SendBuffer)
	assert.Equal(t, 30*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, 300, cfg.RateLimit.RequestsPerMinute)
	assert.True(t, cfg.MCP.Enabled)
	assert.False(t, cfg.Tunnel.Enabled)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadFromFile_ParsesYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
server:
  port: 9000
  public_url: "https://tasks.example.com"
  log_level: "debug"
  cors_origins:
    - "https://app.example.com"

auth:
  jwt_secret: "s3cret"
  issuer: "https://id.example.com/"
  audience: "taskpulse"
  token_ttl: 2h

database:
  path: "/var/lib/taskpulse/tasks.db"

redis:
  url: "redis://localhost:6379/0"
  cache_ttl: 1m
  relay_channel: "taskpulse:events"

realtime:
  send_buffer: 16
  write_timeout: 5s
  ping_interval: 20s
  max_message_size: 1024
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://tasks.example.com", cfg.Server.PublicURL)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "taskpulse", cfg.Auth.Audience)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "/var/lib/taskpulse/tasks.db", cfg.Database.Path)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, "taskpulse:events", cfg.Redis.RelayChannel)
	assert.Equal(t, 16, cfg.Realtime.SendBuffer)
	assert.Equal(t, 5*time.Second, cfg.Realtime.WriteTimeout)
	assert.Equal(t, int64(1024), cfg.Realtime.MaxMessageSize)
}

func TestLoadFromFile_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TASKPULSE_TEST_SECRET", "super-secret-value")

	path := writeConfig(t, `
auth:
  jwt_secret: "${TASKPULSE_TEST_SECRET}"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "super-secret-value", cfg.Auth.JWTSecret)
}

func TestLoadFromFile_EnvOverridesWin(t *testing.T) {
	t.Setenv("TASKPULSE_JWT_SECRET", "from-env")
	t.Setenv("TASKPULSE_REDIS_URL", "redis://cache:6379")
	t.Setenv("TASKPULSE_FRONTEND_URL", "https://front.example.com")

	path := writeConfig(t, `
auth:
  jwt_secret: "from-file"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "redis://cache:6379", cfg.Redis.URL)
	assert.Equal(t, []string{"https://front.example.com"}, cfg.Server.CORSOrigins)
}

func TestLoadFromFile_WhenMissing_ReturnsError(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFromFile_RejectsInvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "server: [unterminated")

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing YAML")
}

func TestLoadFromFile_ValidationErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		content string
		want    string
	}{
		"invalid port": {
			content: "server:\n  port: 99999\n",
			want:    "server.port",
		},
		"unknown log level": {
			content: "server:\n  log_level: verbose\n",
			want:    "server.log_level",
		},
		"relay without redis": {
			content: "redis:\n  relay_channel: events\n",
			want:    "redis.relay_channel",
		},
		"zero send buffer": {
			content: "realtime:\n  send_buffer: 0\n",
			want:    "realtime.send_buffer",
		},
		"tunnel without token": {
			content: "tunnel:\n  enabled: true\n",
			want:    "tunnel.authtoken",
		},
		"no key material": {
			content: "auth:\n  secret_dir: \"\"\n",
			want:    "jwt_secret",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadFromFile(writeConfig(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFromFile_ExpandsHomeInPaths(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	path := writeConfig(t, `
database:
  path: "~/data/tasks.db"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "data", "tasks.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(home, ".config", "taskpulse"), cfg.Auth.SecretDir)
}

func TestExpandHome_LeavesAbsolutePathsAlone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/tmp/x", ExpandHome("/tmp/x"))
}
