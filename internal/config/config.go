package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" mapstructure:"openrouter"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OpenRouterConfig holds OpenRouter API settings.
type OpenRouterConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	UseSchema         bool    `yaml:"use_schema" mapstructure:"use_schema"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// PipelineConfig configures batch classification behavior.
type PipelineConfig struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	TotalLimit     int    `yaml:"total_limit" mapstructure:"total_limit"`
	Concurrency    int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	CooldownSecs   int    `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	CutoffDate     string `yaml:"cutoff_date" mapstructure:"cutoff_date"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	RetryInitialMs int    `yaml:"retry_initial_ms" mapstructure:"retry_initial_ms"`
}

// SchedulerConfig configures the windowed run scheduler.
type SchedulerConfig struct {
	CronSpec    string `yaml:"cron_spec" mapstructure:"cron_spec"`
	Timezone    string `yaml:"timezone" mapstructure:"timezone"`
	WindowStart string `yaml:"window_start" mapstructure:"window_start"`
	WindowEnd   string `yaml:"window_end" mapstructure:"window_end"`
}

// ServerConfig configures the operator API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CALLTAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.max_tokens", 4096)
	v.SetDefault("openrouter.temperature", 0.2)
	v.SetDefault("openrouter.use_schema", true)
	v.SetDefault("openrouter.requests_per_minute", 60)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.total_limit", 5000)
	v.SetDefault("pipeline.concurrency", 5)
	v.SetDefault("pipeline.max_attempts", 5)
	v.SetDefault("pipeline.cooldown_secs", 2)
	v.SetDefault("pipeline.cutoff_date", "2026-02-01")
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_initial_ms", 1000)
	v.SetDefault("scheduler.cron_spec", "*/15 * * * 1-5")
	v.SetDefault("scheduler.timezone", "Asia/Kolkata")
	v.SetDefault("scheduler.window_start", "21:00")
	v.SetDefault("scheduler.window_end", "06:30")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the fields required by the given run mode are set.
// Modes: migrate, process, schedule, serve.
func (c *Config) Validate(mode string) error {
	var problems []string

	needDB := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}
	needProvider := func() {
		if c.OpenRouter.Key == "" {
			problems = append(problems, "openrouter.key is required")
		}
		if c.Pipeline.BatchSize < 1 {
			problems = append(problems, "pipeline.batch_size must be >= 1")
		}
		if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 50 {
			problems = append(problems, "pipeline.concurrency must be between 1 and 50")
		}
		if c.Pipeline.MaxAttempts < 1 {
			problems = append(problems, "pipeline.max_attempts must be >= 1")
		}
	}

	switch mode {
	case "migrate":
		needDB()
	case "process":
		needDB()
		needProvider()
	case "schedule":
		needDB()
		needProvider()
		if c.Scheduler.CronSpec == "" {
			problems = append(problems, "scheduler.cron_spec is required")
		}
	case "serve":
		needDB()
		needProvider()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
