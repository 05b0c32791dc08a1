// Package domain defines the core interfaces and types for the lead aging engine.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Lead operations
	SaveLead(ctx context.Context, tenantID string, lead *Lead) error
	GetLead(ctx context.Context, tenantID string, leadID string) (*Lead, error)
	ListLeads(ctx context.Context, tenantID string, filter LeadFilter) ([]*Lead, error)
	DeleteLead(ctx context.Context, tenantID string, leadID string) error

	// Aging rule operations
	SaveAgingRule(ctx context.Context, tenantID string, rule *AgingRule) error
	GetAgingRule(ctx context.Context, tenantID string, ruleID string) (*AgingRule, error)
	ListAgingRules(ctx context.Context, tenantID string) ([]*AgingRule, error)
	DeleteAgingRule(ctx context.Context, tenantID string, ruleID string) error

	// Analysis results (latest per lead)
	SaveAnalyses(ctx context.Context, tenantID string, analyses []AgingAnalysis) error
	GetAnalysis(ctx context.Context, tenantID string, leadID string) (*AgingAnalysis, error)

	// Batch reports
	SaveReport(ctx context.Context, tenantID string, report *AgingReport) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*AgingReport, error)

	// Action policy operations
	SaveActionPolicy(ctx context.Context, tenantID string, policy *ActionPolicy) error
	ListActionPolicies(ctx context.Context, tenantID string) ([]*ActionPolicy, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific; ":memory:" keeps the store in process
	SQLitePath        string        `yaml:"sqlitePath"`
	SQLiteBusyTimeout time.Duration `yaml:"sqliteBusyTimeout"`

	// PostgreSQL specific. PostgresURL, when set, replaces the discrete fields.
	PostgresURL      string `yaml:"postgresURL"`
	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDB"`
	PostgresSSLMode  string `yaml:"postgresSSLMode"`

	// ConnectTimeout bounds the initial ping
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}
