package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"dealfx/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Rate     RateConfig     `mapstructure:"rate"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig governs the HTTP boundary.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// WebhookConfig carries the shared webhook credentials.
type WebhookConfig struct {
	Token              string        `mapstructure:"token"`
	HMACSecret         string        `mapstructure:"hmac_secret"`
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance"`
}

// RateConfig parameterises rate resolution: the two upstream sources, retry
// policy, the shared time budget, and cache behaviour.
type RateConfig struct {
	PrimaryURL     string        `mapstructure:"primary_url"`
	PrimaryPath    string        `mapstructure:"primary_path"`
	SecondaryURL   string        `mapstructure:"secondary_url"`
	SecondaryPath  string        `mapstructure:"secondary_path"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	Budget         time.Duration `mapstructure:"budget"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	CachePath      string        `mapstructure:"cache_path"`
	WarmInterval   time.Duration `mapstructure:"warm_interval"`
	UserAgent      string        `mapstructure:"user_agent"`
	InsecureSSL    bool          `mapstructure:"insecure_ssl"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DEALFX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dealfx")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("webhook.timestamp_tolerance", "5m")

	v.SetDefault("rate.primary_url", "https://open.er-api.com/v6/latest/RUB")
	v.SetDefault("rate.primary_path", "rates.USD")
	v.SetDefault("rate.secondary_url", "https://www.cbr-xml-daily.ru/daily_json.js")
	v.SetDefault("rate.secondary_path", "Valute.USD.Value")
	v.SetDefault("rate.max_attempts", 3)
	v.SetDefault("rate.backoff_base", "200ms")
	v.SetDefault("rate.budget", "12s")
	v.SetDefault("rate.attempt_timeout", "10s")
	v.SetDefault("rate.cache_ttl", "2m")
	v.SetDefault("rate.cache_path", "storage/cache/rub_usd_rate.json")
	v.SetDefault("rate.warm_interval", "0s")
	v.SetDefault("rate.user_agent", "dealfx/1.0")
	v.SetDefault("rate.insecure_ssl", false)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}
	if c.Rate.MaxAttempts <= 0 {
		return fmt.Errorf("rate.max_attempts must be greater than zero")
	}
	if c.Rate.Budget <= 0 {
		return fmt.Errorf("rate.budget must be greater than zero")
	}
	if c.Rate.BackoffBase <= 0 {
		return fmt.Errorf("rate.backoff_base must be greater than zero")
	}
	if c.Rate.CacheTTL <= 0 {
		return fmt.Errorf("rate.cache_ttl must be greater than zero")
	}
	if c.Rate.PrimaryURL == "" {
		return fmt.Errorf("rate.primary_url must not be empty")
	}
	if c.Webhook.TimestampTolerance <= 0 {
		return fmt.Errorf("webhook.timestamp_tolerance must be greater than zero")
	}
	return nil
}
