package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Forecast   ForecastConfig   `yaml:"forecast" mapstructure:"forecast"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Emissions  EmissionsConfig  `yaml:"emissions" mapstructure:"emissions"`
	Trajectory TrajectoryConfig `yaml:"trajectory" mapstructure:"trajectory"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               string `yaml:"port" mapstructure:"port"`
	Environment        string `yaml:"environment" mapstructure:"environment"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// RequestTimeout is the per-request deadline for pipeline calls.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// StoreConfig configures the metric store.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size"`
}

// ForecastConfig configures the external forecast service. An empty
// ServiceURL runs the local forecaster only.
type ForecastConfig struct {
	ServiceURL       string  `yaml:"service_url" mapstructure:"service_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Timeout is the overall deadline for one metric's external forecast.
func (c ForecastConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// InitialBackoff is the delay before the first retry.
func (c ForecastConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

// CacheConfig configures the forecast result cache. An empty
// FirestoreProject keeps the cache in memory only.
type CacheConfig struct {
	FirestoreProject string `yaml:"firestore_project" mapstructure:"firestore_project"`
	TTLMinutes       int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// PipelineConfig configures the target progress pipeline.
type PipelineConfig struct {
	MaxConcurrentMetrics int `yaml:"max_concurrent_metrics" mapstructure:"max_concurrent_metrics"`
	HistoryYears         int `yaml:"history_years" mapstructure:"history_years"`
}

// EmissionsConfig holds the default energy emission factors in kgCO2e/kWh.
type EmissionsConfig struct {
	RenewableKgPerKWh float64 `yaml:"renewable_kg_per_kwh" mapstructure:"renewable_kg_per_kwh"`
	FossilKgPerKWh    float64 `yaml:"fossil_kg_per_kwh" mapstructure:"fossil_kg_per_kwh"`
}

// TrajectoryConfig holds the exceedance percentages above which a metric is
// at risk and off track.
type TrajectoryConfig struct {
	AtRiskPct   float64 `yaml:"at_risk_pct" mapstructure:"at_risk_pct"`
	OffTrackPct float64 `yaml:"off_track_pct" mapstructure:"off_track_pct"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Disabled  bool   `yaml:"disabled" mapstructure:"disabled"`
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
	v.SetEnvPrefix("ESG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.page_size", 1000)
	v.SetDefault("forecast.service_url", "")
	v.SetDefault("forecast.timeout_secs", 10)
	v.SetDefault("forecast.max_attempts", 2)
	v.SetDefault("forecast.initial_backoff_ms", 250)
	v.SetDefault("forecast.rate_per_sec", 10)
	v.SetDefault("cache.firestore_project", "")
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("pipeline.max_concurrent_metrics", 8)
	v.SetDefault("pipeline.history_years", 3)
	v.SetDefault("emissions.renewable_kg_per_kwh", 0.02)
	v.SetDefault("emissions.fossil_kg_per_kwh", 0.4)
	v.SetDefault("trajectory.at_risk_pct", 0)
	v.SetDefault("trajectory.off_track_pct", 10)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.disabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command cannot run without. mode is the
// cobra command name.
func (c *Config) Validate(mode string) error {
	var problems []string
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if mode == "serve" {
		if c.Server.Port == "" {
			problems = append(problems, "server.port is required")
		}
		if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
			problems = append(problems, "auth.jwt_secret is required unless auth.disabled is set")
		}
	}
	if c.Trajectory.OffTrackPct < c.Trajectory.AtRiskPct {
		problems = append(problems, "trajectory.off_track_pct must not be below trajectory.at_risk_pct")
	}
	if c.Emissions.RenewableKgPerKWh < 0 || c.Emissions.FossilKgPerKWh < 0 {
		problems = append(problems, "emission factors must be non-negative")
	}
	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
