package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 Loader 测试
// =============================================================================

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "docroute", cfg.Engine.MetricsNamespace)
	assert.Equal(t, 5*time.Minute, cfg.Engine.DefinitionCacheTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Engine.CacheEnabled)
}

func TestLoader_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docroute.yaml")
	yaml := `
engine:
  definitions_dir: /etc/docroute/definitions
  metrics_namespace: routing
  cache_enabled: true
redis:
  addr: redis.internal:6379
database:
  driver: postgres
  host: db.internal
  port: 5432
  user: docroute
  name: docroute
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/etc/docroute/definitions", cfg.Engine.DefinitionsDir)
	assert.Equal(t, "routing", cfg.Engine.MetricsNamespace)
	assert.True(t, cfg.Engine.CacheEnabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未覆盖的字段保持默认值
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/docroute.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("DOCROUTE_DATABASE_DRIVER", "mysql")
	t.Setenv("DOCROUTE_DATABASE_PORT", "3307")
	t.Setenv("DOCROUTE_ENGINE_DEFINITION_CACHE_TTL", "90s")
	t.Setenv("DOCROUTE_ENGINE_CACHE_ENABLED", "true")
	t.Setenv("DOCROUTE_LOG_OUTPUT_PATHS", "stdout, /var/log/docroute.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, 90*time.Second, cfg.Engine.DefinitionCacheTTL)
	assert.True(t, cfg.Engine.CacheEnabled)
	assert.Equal(t, []string{"stdout", "/var/log/docroute.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	t.Setenv("DOCROUTE_LOG_LEVEL", "error")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("DOCROUTE_DATABASE_PORT", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCROUTE_DATABASE_PORT")
}

func TestLoader_CustomValidator(t *testing.T) {
	boom := errors.New("definitions dir is required")
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.Engine.DefinitionsDir == "" {
				return boom
			}
			return nil
		}).
		Load()
	require.NoError(t, err)

	_, err = NewLoader().
		WithValidator(func(*Config) error { return boom }).
		Load()
	require.ErrorIs(t, err, boom)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Database.Driver = "oracle"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Log.Level = "verbose"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Engine.CacheEnabled = true
	cfg.Redis.Addr = ""
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Engine.MetricsNamespace = ""
	require.Error(t, cfg.Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{
		Driver: "postgres", Host: "db", Port: 5432,
		User: "docroute", Password: "secret", Name: "docroute", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=db port=5432 user=docroute password=secret dbname=docroute sslmode=disable",
		pg.DSN())

	my := DatabaseConfig{
		Driver: "mysql", Host: "db", Port: 3306,
		User: "docroute", Password: "secret", Name: "docroute",
	}
	assert.Equal(t, "docroute:secret@tcp(db:3306)/docroute?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "archive.db"}
	assert.Equal(t, "archive.db", lite.DSN())

	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}

func TestMustLoad(t *testing.T) {
	cfg := MustLoad("")
	assert.NotNil(t, cfg)
}

func TestLogConfig_BuildLogger(t *testing.T) {
	logger, err := DefaultLogConfig().BuildLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Sync()

	console := LogConfig{Level: "debug", Format: "console"}
	logger, err = console.BuildLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotNil(t, LogConfig{}.MustBuildLogger())
}
