package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingToken is returned when no Telegram bot token is configured.
// The relay cannot run without one.
var ErrMissingToken = errors.New("telegram_token is required (set VIGIL_TELEGRAM_TOKEN)")

// Config holds runtime configuration for the relay.
type Config struct {
	// Telegram bot API token (required)
	TelegramToken string `mapstructure:"telegram_token"`

	// Sensor feed endpoint returning a JSON array of readings
	SensorURL string `mapstructure:"sensor_url"`

	// Interval between evaluation ticks
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Timeout for one sensor feed fetch
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	// Admin HTTP server (health, stats, metrics)
	AdminAddr string `mapstructure:"admin_addr"`

	// Optional Kafka alert stream; disabled when no brokers are set
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	// Display names for sensors in status and alert texts,
	// e.g. sensor1 -> "Living Room"
	SensorNames map[string]string `mapstructure:"sensor_names"`

	// External chart URLs per metric for the /chart command
	ChartURLs map[string]string `mapstructure:"chart_urls"`
}

// Load reads configuration from an optional config.yaml and the
// VIGIL_-prefixed environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vigil/")

	v.SetEnvPrefix("vigil")
	v.AutomaticEnv()

	// Registered with an empty default so the env override is picked up
	// by Unmarshal.
	v.SetDefault("telegram_token", "")

	v.SetDefault("sensor_url", "http://localhost:8080/sensors")
	v.SetDefault("poll_interval", "600s")
	v.SetDefault("fetch_timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "vigil.log")
	v.SetDefault("admin_addr", ":9090")
	v.SetDefault("kafka_topic", "vigil.alerts")
	v.SetDefault("sensor_names", map[string]string{})
	v.SetDefault("chart_urls", map[string]string{})

	// Config file is optional; env and defaults are enough to run.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.TelegramToken == "" {
		return nil, ErrMissingToken
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}

	return &cfg, nil
}
