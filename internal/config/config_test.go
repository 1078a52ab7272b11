package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.OpenRouter.BaseURL)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.OpenRouter.Model)
	assert.Equal(t, 4096, cfg.OpenRouter.MaxTokens)
	assert.InDelta(t, 0.2, cfg.OpenRouter.Temperature, 0.001)
	assert.True(t, cfg.OpenRouter.UseSchema)
	assert.Equal(t, 60, cfg.OpenRouter.RequestsPerMinute)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5000, cfg.Pipeline.TotalLimit)
	assert.Equal(t, 5, cfg.Pipeline.Concurrency)
	assert.Equal(t, 5, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 2, cfg.Pipeline.CooldownSecs)
	assert.Equal(t, "2026-02-01", cfg.Pipeline.CutoffDate)
	assert.Equal(t, 3, cfg.Pipeline.MaxRetries)
	assert.Equal(t, 1000, cfg.Pipeline.RetryInitialMs)
	assert.Equal(t, "*/15 * * * 1-5", cfg.Scheduler.CronSpec)
	assert.Equal(t, "Asia/Kolkata", cfg.Scheduler.Timezone)
	assert.Equal(t, "21:00", cfg.Scheduler.WindowStart)
	assert.Equal(t, "06:30", cfg.Scheduler.WindowEnd)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  database_url: postgres://localhost/calls
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  batch_size: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/calls", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Pipeline.BatchSize)
	// Defaults still apply for unset values
	assert.Equal(t, 5, cfg.Pipeline.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
log:
  level: debug
openrouter:
  model: openai/gpt-4o-mini
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CALLTAG_LOG_LEVEL", "warn")
	t.Setenv("CALLTAG_OPENROUTER_MODEL", "anthropic/claude-sonnet-4")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "anthropic/claude-sonnet-4", cfg.OpenRouter.Model)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CALLTAG_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

// validDefaults returns a Config with sane values for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "postgres://localhost/calls"
	cfg.OpenRouter.Key = "sk-or-key"
	cfg.Pipeline.BatchSize = 10
	cfg.Pipeline.Concurrency = 5
	cfg.Pipeline.MaxAttempts = 5
	cfg.Scheduler.CronSpec = "*/15 * * * 1-5"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateMigrate(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateProcess_MissingKey(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("process"))

	cfg.OpenRouter.Key = ""
	err := cfg.Validate("process")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter.key is required")
}

func TestValidateProcess_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.Concurrency = 0
	err := cfg.Validate("process")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "concurrency must be between 1 and 50")

	cfg.Pipeline.Concurrency = 51
	err = cfg.Validate("process")
	assert.Error(t, err)

	cfg.Pipeline.Concurrency = 50
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidateSchedule_MissingCron(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("schedule"))

	cfg.Scheduler.CronSpec = ""
	err := cfg.Validate("schedule")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cron_spec is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
