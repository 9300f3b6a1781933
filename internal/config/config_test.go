package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://checkout@localhost/checkout")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "3000" {
		t.Fatalf("expected port 3000, got %s", cfg.Port)
	}
	if cfg.StatusTopic != "order.status_changed" {
		t.Fatalf("unexpected topic %s", cfg.StatusTopic)
	}
	if cfg.Retry.MaxAttempts != 10 || cfg.Retry.InitialInterval != 500*time.Millisecond || cfg.Retry.MaxInterval != 10*time.Second {
		t.Fatalf("unexpected retry policy %+v", cfg.Retry)
	}
	if cfg.HTTPClientTimeout != 10*time.Second {
		t.Fatalf("unexpected client timeout %s", cfg.HTTPClientTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected log level %s", cfg.LogLevel)
	}
	if cfg.PostgresURL != "postgres://checkout@localhost/checkout" {
		t.Fatalf("unexpected postgres url %s", cfg.PostgresURL)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("RETRY_INITIAL_INTERVAL", "10ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %s", cfg.Port)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialInterval != 10*time.Millisecond {
		t.Fatalf("unexpected retry policy %+v", cfg.Retry)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.LogLevel)
	}
}

func TestFromViper_Invalid(t *testing.T) {
	t.Run("zero attempts", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)
		v.Set("retry_max_attempts", 0)
		if _, err := fromViper(v); err == nil {
			t.Fatal("expected error for zero attempts")
		}
	})

	t.Run("unknown log level", func(t *testing.T) {
		v := viper.New()
		setDefaults(v)
		v.Set("log_level", "loud")
		if _, err := fromViper(v); err == nil {
			t.Fatal("expected error for unknown log level")
		}
	})
}

func TestConfig_Require(t *testing.T) {
	cfg := &Config{PostgresURL: "postgres://x", KafkaBrokers: []string{"k:9092"}}

	if err := cfg.Require("POSTGRES_URL", "KAFKA_BROKERS"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := cfg.Require("POSTGRES_URL", "BACKEND_SERVER", "EMAIL_SERVICE_URL")
	if err == nil {
		t.Fatal("expected error for missing settings")
	}
	if err.Error() != "missing required settings: BACKEND_SERVER, EMAIL_SERVICE_URL" {
		t.Fatalf("unexpected error: %v", err)
	}
}
