package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server"`

	// Tier determines feature availability
	Tier Tier `yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository"`
	Cache      CacheConfig      `yaml:"cache"`
	EventBus   EventBusConfig   `yaml:"eventBus"`

	// Engine and its collaborators
	Engine   EngineConfig   `yaml:"engine"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Insight  InsightConfig  `yaml:"insight"`
	Export   ExportConfig   `yaml:"export"`

	// Seed data applied to the global tenant at startup when the
	// repository holds no rules or policies yet
	Rules    []*AgingRule    `yaml:"rules"`
	Policies []*ActionPolicy `yaml:"policies"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// EngineConfig tunes batch analysis.
type EngineConfig struct {
	// MaxWorkers bounds per-lead goroutines in one batch
	MaxWorkers int `yaml:"maxWorkers"`

	// FailFast aborts a batch on the first malformed lead
	FailFast bool `yaml:"failFast"`

	// UrgentLeads is how many leads a report lists as most urgent
	UrgentLeads int `yaml:"urgentLeads"`

	// Overrides for the recommendation table: category -> risk -> text
	Recommendations map[AgingCategory]map[RiskLevel]string `yaml:"recommendations"`
}

// ScheduleConfig controls periodic recomputation.
type ScheduleConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	TenantIDs []string      `yaml:"tenantIds"`
}

// InsightConfig configures the optional text-generation collaborator.
type InsightConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Endpoint           string        `yaml:"endpoint"`
	Model              string        `yaml:"model"`
	APIKey             string        `yaml:"apiKey"`
	SystemPrompt       string        `yaml:"systemPrompt"`
	Timeout            time.Duration `yaml:"timeout"`
	RateLimitPerMinute int           `yaml:"rateLimitPerMinute"`
}

// ExportConfig configures the analysis export sink.
type ExportConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig describes the Kafka topic analyses are exported to.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"serviceName"`
	ExporterType string `yaml:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `yaml:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./leadaging.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			AnalysisTTL:  time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Engine: EngineConfig{
			MaxWorkers:  16,
			FailFast:    false,
			UrgentLeads: 10,
		},
		Schedule: ScheduleConfig{
			Enabled:  false,
			Interval: time.Hour,
		},
		Insight: InsightConfig{
			Enabled:            false,
			Endpoint:           "https://api.openai.com/v1/chat/completions",
			Model:              "gpt-4o-mini",
			Timeout:            10 * time.Second,
			RateLimitPerMinute: 30,
		},
		Export: ExportConfig{
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "lead-aging-analyses",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "leadaging",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "leadaging",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		AnalysisTTL:    time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Schedule.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
