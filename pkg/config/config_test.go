package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /var/lib/modchat
security:
  cors:
    allowed_origins: ["https://app.example"]
  rate_limit:
    rps: 2.5
    burst: 7
  api_keys:
    backend: [bk1]
    frontend: [fk1, fk2]
    admin: [ak1]
logging:
  level: debug
  audit_dir: /var/log/modchat
moderation:
  scan:
    workers: 4
    queue_capacity: 2048
    max_pooled_buffer_bytes: 64KB
    drain_timeout: 3s
retention:
  enabled: true
  cron: "0 3 * * *"
  period: 720h
  batch_size: 100
  dry_run: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadParsesFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
	require.Equal(t, "/var/lib/modchat", cfg.Server.DBPath)
	require.Equal(t, 2.5, cfg.Security.RateLimit.RPS)
	require.Equal(t, []string{"fk1", "fk2"}, cfg.Security.APIKeys.Frontend)
	require.Equal(t, "debug", cfg.Logging.Level)

	scan := cfg.Moderation.Scan
	require.Equal(t, 4, scan.Workers)
	require.Equal(t, int64(64000), scan.MaxPooledBufferBytes.Int64())
	require.Equal(t, 3*time.Second, scan.DrainTimeout.Duration())

	require.True(t, cfg.Retention.Enabled)
	require.Equal(t, 720*time.Hour, cfg.Retention.Period.Duration())
	require.True(t, cfg.Retention.DryRun)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestAddrDefaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestDurationNumericSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "moderation:\n  scan:\n    drain_timeout: 2\n"))
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.Moderation.Scan.DrainTimeout.Duration())
}

func TestSizeBytesPlainInteger(t *testing.T) {
	cfg, err := Load(writeConfig(t, "moderation:\n  scan:\n    max_pooled_buffer_bytes: 4096\n"))
	require.NoError(t, err)
	require.Equal(t, int64(4096), cfg.Moderation.Scan.MaxPooledBufferBytes.Int64())
}

func TestInvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "moderation:\n  scan:\n    drain_timeout: soon\n"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MODCHAT_ADDR", "10.0.0.5:7070")
	t.Setenv("MODCHAT_DB_PATH", "/tmp/envdb")
	t.Setenv("MODCHAT_LOG_LEVEL", "WARN")
	t.Setenv("MODCHAT_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MODCHAT_RATE_RPS", "9")
	t.Setenv("MODCHAT_RATE_BURST", "20")
	t.Setenv("MODCHAT_API_BACKEND_KEYS", "bk-env")
	t.Setenv("MODCHAT_API_ADMIN_KEYS", "ak-env1,ak-env2")

	var cfg Config
	require.True(t, LoadEnvOverrides(&cfg))

	require.Equal(t, "10.0.0.5:7070", cfg.Addr())
	require.Equal(t, "/tmp/envdb", cfg.Server.DBPath)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORS.AllowedOrigins)
	require.Equal(t, float64(9), cfg.Security.RateLimit.RPS)
	require.Equal(t, 20, cfg.Security.RateLimit.Burst)
	require.Equal(t, []string{"bk-env"}, cfg.Security.APIKeys.Backend)
	require.Equal(t, []string{"ak-env1", "ak-env2"}, cfg.Security.APIKeys.Admin)
}

func TestEnvOverridesNoneSet(t *testing.T) {
	var cfg Config
	require.False(t, LoadEnvOverrides(&cfg))
}

func TestLoadEffectiveMissingFileUsesEnv(t *testing.T) {
	t.Setenv("MODCHAT_DB_PATH", "/tmp/only-env")
	cfg, envUsed, err := LoadEffective(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.True(t, envUsed)
	require.Equal(t, "/tmp/only-env", cfg.Server.DBPath)
}

func TestResolveConfigPath(t *testing.T) {
	require.Equal(t, "/from/flag", ResolveConfigPath("/from/flag", true))

	t.Setenv("MODCHAT_CONFIG", "/from/env")
	require.Equal(t, "/from/env", ResolveConfigPath("/default", false))

	os.Unsetenv("MODCHAT_CONFIG")
	require.Equal(t, "/default", ResolveConfigPath("/default", false))
}
