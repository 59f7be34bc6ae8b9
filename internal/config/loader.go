package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "supportiq.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SUPPORTIQ_PORT")
	setString(&cfg.Server.CORSOrigin, "SUPPORTIQ_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SUPPORTIQ_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SUPPORTIQ_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SUPPORTIQ_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SUPPORTIQ_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SUPPORTIQ_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Sources.Mode, "SUPPORTIQ_SOURCES_MODE")
	setString(&cfg.Sources.FabricIQ.URL, "FABRICIQ_URL")
	setString(&cfg.Sources.FabricIQ.APIKey, "FABRICIQ_API_KEY")
	setString(&cfg.Sources.FoundryIQ.URL, "FOUNDRYIQ_URL")
	setString(&cfg.Sources.FoundryIQ.APIKey, "FOUNDRYIQ_API_KEY")
	setString(&cfg.Sources.ContentSafety.URL, "CONTENT_SAFETY_URL")
	setString(&cfg.Sources.ContentSafety.APIKey, "CONTENT_SAFETY_API_KEY")
	setString(&cfg.Logging.Level, "SUPPORTIQ_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SUPPORTIQ_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SUPPORTIQ_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "SUPPORTIQ_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SUPPORTIQ_BREAKER_TIMEOUT")
	setInt(&cfg.Breaker.HalfOpenMaxCalls, "SUPPORTIQ_BREAKER_HALF_OPEN_MAX_CALLS")
	setInt64(&cfg.Cache.L1MaxSizeMB, "SUPPORTIQ_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1Expire, "SUPPORTIQ_CACHE_L1_EXPIRE")
	setString(&cfg.Cache.L2Bucket, "SUPPORTIQ_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "SUPPORTIQ_CACHE_L2_TTL")
	setDuration(&cfg.Cache.RecommendationsTTL, "SUPPORTIQ_CACHE_RECOMMENDATIONS_TTL")
	setDuration(&cfg.Cache.UsageTrendsTTL, "SUPPORTIQ_CACHE_USAGE_TRENDS_TTL")
	setDuration(&cfg.Cache.ProfileTTL, "SUPPORTIQ_CACHE_PROFILE_TTL")
	setInt(&cfg.Orchestrator.AnalysisWindowDays, "SUPPORTIQ_ANALYSIS_WINDOW_DAYS")
	setInt(&cfg.Orchestrator.DedupWindowMonths, "SUPPORTIQ_DEDUP_WINDOW_MONTHS")
	setDuration(&cfg.Orchestrator.LatencyTarget, "SUPPORTIQ_LATENCY_TARGET")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Sources.Mode != "local" && cfg.Sources.Mode != "remote" {
		return fmt.Errorf("sources.mode must be local or remote, got %q", cfg.Sources.Mode)
	}
	if cfg.Sources.Mode == "remote" {
		if cfg.Sources.FabricIQ.URL == "" {
			return errors.New("sources.fabriciq.url is required in remote mode")
		}
		if cfg.Sources.FoundryIQ.URL == "" {
			return errors.New("sources.foundryiq.url is required in remote mode")
		}
		if cfg.Sources.ContentSafety.URL == "" {
			return errors.New("sources.content_safety.url is required in remote mode")
		}
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Breaker.HalfOpenMaxCalls < 1 {
		return errors.New("breaker.half_open_max_calls must be >= 1")
	}
	if cfg.Orchestrator.AnalysisWindowDays < 1 {
		return errors.New("orchestrator.analysis_window_days must be >= 1")
	}
	if cfg.Orchestrator.DedupWindowMonths < 1 || cfg.Orchestrator.DedupWindowMonths > 12 {
		return errors.New("orchestrator.dedup_window_months must be within 1..12")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
