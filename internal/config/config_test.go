package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Matching.RadiusKm != 5.0 {
		t.Errorf("radius = %v, want 5", cfg.Matching.RadiusKm)
	}
	if cfg.Bus.Driver != BusKafka || len(cfg.Bus.Brokers) != 1 || cfg.Bus.Brokers[0] != "localhost:9092" {
		t.Errorf("unexpected bus config: %+v", cfg.Bus)
	}
	if cfg.Redis.Timeout != 3*time.Second {
		t.Errorf("redis timeout = %v", cfg.Redis.Timeout)
	}
	if cfg.Saga.MaxAttempts != 3 || cfg.Saga.Workers != 2 {
		t.Errorf("unexpected saga config: %+v", cfg.Saga)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TAXI_HTTP_ADDR", ":9090")
	t.Setenv("TAXI_BUS_DRIVER", "AMQP")
	t.Setenv("TAXI_BUS_BROKERS", "k1:9092, k2:9092")
	t.Setenv("TAXI_MATCHING_RADIUS_KM", "2.5")
	t.Setenv("TAXI_SAGA_BACKOFF", "1s")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Bus.Driver != BusAMQP {
		t.Errorf("bus driver = %q", cfg.Bus.Driver)
	}
	if len(cfg.Bus.Brokers) != 2 || cfg.Bus.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Bus.Brokers)
	}
	if cfg.Matching.RadiusKm != 2.5 {
		t.Errorf("radius = %v", cfg.Matching.RadiusKm)
	}
	if cfg.Saga.Backoff != time.Second {
		t.Errorf("backoff = %v", cfg.Saga.Backoff)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxi.yaml")
	content := "http:\n  addr: \":7070\"\nmatching:\n  radius_km: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TAXI_CONFIG_FILE", path)
	t.Setenv("TAXI_MATCHING_RADIUS_KM", "3")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Errorf("http addr from file = %q", cfg.HTTP.Addr)
	}
	if cfg.Matching.RadiusKm != 3 {
		t.Errorf("env must override file, radius = %v", cfg.Matching.RadiusKm)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"TAXI_BUS_DRIVER":         "nats",
		"TAXI_MATCHING_RADIUS_KM": "0",
		"TAXI_SAGA_MAX_ATTEMPTS":  "0",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := load(viper.New()); err == nil {
				t.Fatalf("expected error for %s=%s", key, val)
			}
		})
	}
}
