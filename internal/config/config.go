package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port           string        `yaml:"port"`
	StoreDriver    string        `yaml:"store_driver"`
	DatabaseURL    string        `yaml:"database_url"`
	SQLitePath     string        `yaml:"sqlite_path"`
	GoogleClientID string        `yaml:"google_client_id"`
	LoginDelay     time.Duration `yaml:"login_delay"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	SensorInterval time.Duration `yaml:"sensor_interval"`
	LogLevel       string        `yaml:"log_level"`
	ClientCookie   string        `yaml:"client_cookie"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint"`
	OTLPInsecure   bool          `yaml:"otlp_insecure"`
	TraceSampling  float64       `yaml:"trace_sampling"`

	MaxClients        int           `yaml:"max_clients"`
	ClientIdleTTL     time.Duration `yaml:"client_idle_ttl"`
	TrustForwardedFor bool          `yaml:"trust_forwarded_for"`

	RateLimitPerMinute       int `yaml:"rate_limit_per_minute"`
	RateLimitBurst           int `yaml:"rate_limit_burst"`
	ClientRateLimitPerMinute int `yaml:"client_rate_limit_per_minute"`
	ClientRateLimitBurst     int `yaml:"client_rate_limit_burst"`
}

// Load reads the environment, then overlays the YAML file named by
// DASHBOARD_CONFIG when it is set.
func Load() (Config, error) {
	port := os.Getenv("DASHBOARD_PORT")
	if port == "" {
		port = "8080"
	}

	cfg := Config{
		Port:           port,
		StoreDriver:    readString("DASHBOARD_STORE", DriverMemory),
		DatabaseURL:    os.Getenv("DB_DSN"),
		SQLitePath:     readString("DASHBOARD_SQLITE_PATH", "data/dashboard.db"),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		LoginDelay:     readDuration("DASHBOARD_LOGIN_DELAY", time.Second),
		GracePeriod:    readDuration("DASHBOARD_GRACE_PERIOD", 1500*time.Millisecond),
		SensorInterval: readDuration("DASHBOARD_SENSOR_INTERVAL", 5*time.Second),
		LogLevel:       readString("LOG_LEVEL", "info"),
		ClientCookie:   readString("DASHBOARD_CLIENT_COOKIE", "mpd_client"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:   readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSampling:  readFloat("OTEL_TRACES_SAMPLER_ARG", 1),

		MaxClients:        readInt("DASHBOARD_MAX_CLIENTS", 10000),
		ClientIdleTTL:     readDuration("DASHBOARD_CLIENT_IDLE_TTL", 30*time.Minute),
		TrustForwardedFor: readBool("DASHBOARD_TRUST_FORWARDED_FOR", false),

		RateLimitPerMinute:       readInt("DASHBOARD_RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("DASHBOARD_RATE_LIMIT_BURST", 30),
		ClientRateLimitPerMinute: readInt("DASHBOARD_CLIENT_RATE_LIMIT_PER_MIN", 300),
		ClientRateLimitBurst:     readInt("DASHBOARD_CLIENT_RATE_LIMIT_BURST", 60),
	}

	if path := strings.TrimSpace(os.Getenv("DASHBOARD_CONFIG")); path != "" {
		if err := cfg.overlay(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.StoreDriver == DriverSQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New("sqlite_path is required for the sqlite store"))
	}
	if c.LoginDelay < 0 || c.GracePeriod < 0 {
		errs = append(errs, errors.New("login_delay and grace_period must not be negative"))
	}
	if c.MaxClients < 0 || c.ClientIdleTTL < 0 {
		errs = append(errs, errors.New("max_clients and client_idle_ttl must not be negative"))
	}
	if c.TraceSampling < 0 || c.TraceSampling > 1 {
		errs = append(errs, fmt.Errorf("trace_sampling %g is outside [0, 1]", c.TraceSampling))
	}
	if c.ClientCookie == "" {
		errs = append(errs, errors.New("client_cookie must not be empty"))
	}
	return errors.Join(errs...)
}

func readString(key, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	return raw
}

// readDuration accepts Go durations ("1500ms") or whole milliseconds.
func readDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if value, err := time.ParseDuration(raw); err == nil {
		return value
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}
