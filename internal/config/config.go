// Package config loads the service configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// PathEnv names the variable holding the config file path.
const PathEnv = "LEADAGING_CONFIG"

// Load builds the configuration in three layers: tier defaults (community,
// or pro when LEADAGING_TIER=pro), the YAML file at path if one is given,
// then LEADAGING_* environment overrides.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv("LEADAGING_TIER"), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *domain.Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	setString("LEADAGING_HOST", &cfg.Server.Host)
	setString("LEADAGING_DB_DRIVER", &cfg.Repository.Driver)
	setString("LEADAGING_SQLITE_PATH", &cfg.Repository.SQLitePath)
	setString("LEADAGING_DATABASE_URL", &cfg.Repository.PostgresURL)
	setString("LEADAGING_POSTGRES_HOST", &cfg.Repository.PostgresHost)
	setString("LEADAGING_POSTGRES_USER", &cfg.Repository.PostgresUser)
	setString("LEADAGING_POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	setString("LEADAGING_POSTGRES_DB", &cfg.Repository.PostgresDB)
	setString("LEADAGING_CACHE_TYPE", &cfg.Cache.Type)
	setString("LEADAGING_REDIS_ADDR", &cfg.Cache.RedisAddr)
	setString("LEADAGING_REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	setString("LEADAGING_BUS_TYPE", &cfg.EventBus.Type)
	setString("LEADAGING_NATS_URL", &cfg.EventBus.NATSUrl)
	setString("LEADAGING_NATS_TOKEN", &cfg.EventBus.NATSToken)
	setString("LEADAGING_INSIGHT_ENDPOINT", &cfg.Insight.Endpoint)
	setString("LEADAGING_INSIGHT_MODEL", &cfg.Insight.Model)
	setString("LEADAGING_INSIGHT_API_KEY", &cfg.Insight.APIKey)
	setString("LEADAGING_KAFKA_TOPIC", &cfg.Export.Kafka.Topic)
	setString("LEADAGING_LOG_LEVEL", &cfg.Logging.Level)
	setString("LEADAGING_LOG_FORMAT", &cfg.Logging.Format)
	setList("LEADAGING_TENANTS", &cfg.Schedule.TenantIDs)
	setList("LEADAGING_KAFKA_BROKERS", &cfg.Export.Kafka.Brokers)

	if v := os.Getenv("LEADAGING_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEADAGING_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LEADAGING_MAX_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LEADAGING_MAX_WORKERS: %w", err)
		}
		cfg.Engine.MaxWorkers = n
	}
	if v := os.Getenv("LEADAGING_SCHEDULE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LEADAGING_SCHEDULE_INTERVAL: %w", err)
		}
		cfg.Schedule.Interval = d
		cfg.Schedule.Enabled = true
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"LEADAGING_FAIL_FAST", &cfg.Engine.FailFast},
		{"LEADAGING_INSIGHT_ENABLED", &cfg.Insight.Enabled},
		{"LEADAGING_KAFKA_ENABLED", &cfg.Export.Kafka.Enabled},
		{"LEADAGING_TRACING_ENABLED", &cfg.Tracing.Enabled},
	}
	for _, b := range bools {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
		*b.dst = parsed
	}

	return nil
}

func validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Engine.MaxWorkers < 0 {
		return fmt.Errorf("invalid engine maxWorkers %d", cfg.Engine.MaxWorkers)
	}
	if cfg.Schedule.Enabled && cfg.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule interval must be positive")
	}
	if cfg.Export.Kafka.Enabled && (len(cfg.Export.Kafka.Brokers) == 0 || cfg.Export.Kafka.Topic == "") {
		return fmt.Errorf("kafka export requires brokers and a topic")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
