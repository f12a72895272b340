package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        string `env:"PORT" envDefault:"8788" validate:"required,numeric"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"authgate" validate:"required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Request gating (AUTH_ACCESS, JWT_SECRET, AUTH_BYPASS_PATHS)
	Admission Admission

	// Diagnostics backends, both optional
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// OpenTelemetry
	OTELEnabled          bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELSamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1" validate:"gte=0,lte=1"`

	// Prometheus scrape protection; open when empty
	MetricsToken string `env:"METRICS_TOKEN"`
}

var validate = validator.New()

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs tag and cross-field validation on the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Admission.Enabled() && c.Admission.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ACCESS enables verification")
	}

	for _, p := range c.Admission.BypassPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("AUTH_BYPASS_PATHS must not contain empty entries")
		}
	}

	return nil
}

// TelemetryEnabled reports whether OTLP exporters should be started
func (c *Config) TelemetryEnabled() bool {
	return c.OTELEnabled && c.OTELExporterEndpoint != ""
}

// IsDev reports whether the service runs in a development environment
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev" || c.AppEnv == "development"
}
