package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
// The env tag names the variable in validation errors.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" validate:"required"`
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	LogFile         string        `env:"LOG_FILE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" validate:"gt=0"`

	// MOENV ground-sensor provider. An empty key disables live ground data.
	MOENVAPIKey  string        `env:"MOENV_API_KEY"`
	MOENVBaseURL string        `env:"MOENV_BASE_URL" validate:"required,url"`
	MOENVDataset string        `env:"MOENV_DATASET" validate:"required"`
	MOENVTimeout time.Duration `env:"MOENV_TIMEOUT" validate:"gt=0,lte=10s"`

	// Open-Meteo satellite/model provider; enabling it selects multi-provider mode.
	OpenMeteoEnabled     bool          `env:"OPENMETEO_ENABLED"`
	OpenMeteoBaseURL     string        `env:"OPENMETEO_BASE_URL" validate:"required_if=OpenMeteoEnabled true,omitempty,url"`
	OpenMeteoAPIKey      string        `env:"OPENMETEO_API_KEY"`
	MultiProviderTimeout time.Duration `env:"MULTI_PROVIDER_TIMEOUT" validate:"gt=0,lte=3s"`

	CacheTTL  time.Duration `env:"CACHE_TTL" validate:"gt=0,lte=10m"`
	CacheSize int           `env:"CACHE_SIZE" validate:"gt=0"`
	// Zero disables the background station refresh.
	StationRefreshInterval time.Duration `env:"STATION_REFRESH_INTERVAL" validate:"gte=0"`

	// Snapshot publishing. No brokers disables it.
	KafkaBrokers       []string `env:"KAFKA_BROKERS"`
	KafkaSnapshotTopic string   `env:"KAFKA_SNAPSHOT_TOPIC" validate:"required_with=KafkaBrokers"`

	ForecastPastHours   int `env:"FORECAST_PAST_HOURS" validate:"oneof=6 12"`
	ForecastFutureHours int `env:"FORECAST_FUTURE_HOURS" validate:"oneof=6 8 12"`
}

// MOENVEnabled reports whether live ground queries are configured.
func (c *Config) MOENVEnabled() bool { return c.MOENVAPIKey != "" }

// KafkaEnabled reports whether snapshots are published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first and never
// overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var errs []error
	duration := func(name, def string) time.Duration {
		d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
		return d
	}
	integer := func(name string, def int) int {
		s := os.Getenv(name)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
		return n
	}

	openMeteoEnabled := false
	if v := os.Getenv("OPENMETEO_ENABLED"); v != "" {
		openMeteoEnabled, err = strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid OPENMETEO_ENABLED: %w", err))
		}
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: shutdownTimeout,

		MOENVAPIKey:  os.Getenv("MOENV_API_KEY"),
		MOENVBaseURL: sharedcfg.EnvOrDefault("MOENV_BASE_URL", "https://data.moenv.gov.tw/api/v2"),
		MOENVDataset: sharedcfg.EnvOrDefault("MOENV_DATASET", "aqx_p_432"),
		MOENVTimeout: duration("MOENV_TIMEOUT", "10s"),

		OpenMeteoEnabled:     openMeteoEnabled,
		OpenMeteoBaseURL:     sharedcfg.EnvOrDefault("OPENMETEO_BASE_URL", "https://air-quality-api.open-meteo.com/v1/air-quality"),
		OpenMeteoAPIKey:      os.Getenv("OPENMETEO_API_KEY"),
		MultiProviderTimeout: duration("MULTI_PROVIDER_TIMEOUT", "3s"),

		CacheTTL:  duration("CACHE_TTL", "5m"),
		CacheSize: integer("CACHE_SIZE", 256),

		StationRefreshInterval: duration("STATION_REFRESH_INTERVAL", "4m"),

		KafkaBrokers:       brokers,
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "air-quality-snapshots"),

		ForecastPastHours:   integer("FORECAST_PAST_HOURS", 6),
		ForecastFutureHours: integer("FORECAST_FUTURE_HOURS", 6),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	err := v.Struct(cfg)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}
