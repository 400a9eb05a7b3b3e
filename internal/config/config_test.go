package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfm-portal/testportal/internal/config"
)

var envKeys = []string{
	"CONFIG_PATH",
	"APP_NAME", "APP_PORT", "APP_STORAGE", "APP_LOG_LEVEL",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "DB_MAX_CONN_LIFETIME", "DB_MIGRATIONS_PATH",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestNewConfig_MemoryDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_STORAGE", "memory")

	cfg, err := config.NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "testportal", cfg.App.Name)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, config.StorageMemory, cfg.App.Storage)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, int32(10), cfg.Postgres.MaxConns)
	assert.Equal(t, int32(2), cfg.Postgres.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.Postgres.MaxConnLifetime)
	assert.Equal(t, "migrations", cfg.Postgres.MigrationsPath)
}

func TestNewConfig_PostgresRequiresHost(t *testing.T) {
	clearEnv(t)

	_, err := config.NewConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST is required")
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_USER", "portal")
	t.Setenv("DB_NAME", "sfm")
	t.Setenv("DB_MAX_CONNS", "20")
	t.Setenv("DB_MAX_CONN_LIFETIME", "1h")

	cfg, err := config.NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, "5433", cfg.Postgres.Port)
	assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
	assert.Equal(t, time.Hour, cfg.Postgres.MaxConnLifetime)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
}

func TestNewConfig_YAMLFileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  name: portal
  port: "7000"
postgres:
  host: localhost
  port: "5432"
  user: postgres
  dbname: sfm
  max_conn_lifetime: 10m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DB_NAME", "sfm_override")

	cfg, err := config.NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "portal", cfg.App.Name)
	assert.Equal(t, "7000", cfg.App.Port)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "sfm_override", cfg.Postgres.DBName)
	assert.Equal(t, 10*time.Minute, cfg.Postgres.MaxConnLifetime)
}

func TestNewConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown_storage",
			env:     map[string]string{"APP_STORAGE": "mysql"},
			wantErr: `unknown storage "mysql"`,
		},
		{
			name:    "bad_max_conns",
			env:     map[string]string{"APP_STORAGE": "memory", "DB_MAX_CONNS": "many"},
			wantErr: "invalid DB_MAX_CONNS",
		},
		{
			name:    "bad_lifetime",
			env:     map[string]string{"APP_STORAGE": "memory", "DB_MAX_CONN_LIFETIME": "forever"},
			wantErr: "invalid DB_MAX_CONN_LIFETIME",
		},
		{
			name:    "missing_file",
			env:     map[string]string{"CONFIG_PATH": "/nonexistent/config.yaml"},
			wantErr: "failed to open config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.NewConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
