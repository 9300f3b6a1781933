// Package config loads service settings from the environment, an optional
// .env file and an optional checkoutflow.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/joao-fontenele/checkoutflow/internal/retry"
)

type Config struct {
	Port              string
	PostgresURL       string
	BackendServer     string
	KafkaBrokers      []string
	StatusTopic       string
	Retry             retry.Policy
	HTTPClientTimeout time.Duration
	EmailServiceURL   string
	JWTSecret         string
	OTLPEndpoint      string
	LogLevel          slog.Level
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("status_topic", "order.status_changed")
	v.SetDefault("retry_max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("retry_initial_interval", "500ms")
	v.SetDefault("retry_max_interval", "10s")
	v.SetDefault("http_client_timeout", "10s")
	v.SetDefault("otel_exporter_otlp_endpoint", "localhost:4317")
	v.SetDefault("log_level", "info")
}

// Load reads .env (when present) into the process environment, then resolves
// every setting with environment variables taking precedence over the config
// file and defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	v.SetConfigName("checkoutflow")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/checkoutflow")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:              v.GetString("port"),
		PostgresURL:       v.GetString("postgres_url"),
		BackendServer:     v.GetString("backend_server"),
		KafkaBrokers:      splitList(v.GetString("kafka_brokers")),
		StatusTopic:       v.GetString("status_topic"),
		HTTPClientTimeout: v.GetDuration("http_client_timeout"),
		EmailServiceURL:   v.GetString("email_service_url"),
		JWTSecret:         v.GetString("jwt_secret"),
		OTLPEndpoint:      v.GetString("otel_exporter_otlp_endpoint"),
		Retry: retry.Policy{
			MaxAttempts:     v.GetUint("retry_max_attempts"),
			InitialInterval: v.GetDuration("retry_initial_interval"),
			MaxInterval:     v.GetDuration("retry_max_interval"),
		},
	}

	if cfg.Retry.MaxAttempts == 0 {
		return nil, errors.New("RETRY_MAX_ATTEMPTS must be at least 1")
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// Require fails with the names of every listed setting that is empty.
// Names are the environment variable names, e.g. "POSTGRES_URL".
func (c *Config) Require(names ...string) error {
	values := map[string]bool{
		"POSTGRES_URL":      c.PostgresURL != "",
		"BACKEND_SERVER":    c.BackendServer != "",
		"KAFKA_BROKERS":     len(c.KafkaBrokers) > 0,
		"EMAIL_SERVICE_URL": c.EmailServiceURL != "",
	}

	var missing []string
	for _, name := range names {
		if set, known := values[name]; !known || !set {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
