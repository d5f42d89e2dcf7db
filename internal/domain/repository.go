// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Claim operations
	SaveClaim(ctx context.Context, tenantID string, claim *Claim) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)
	GetClaimsByProvider(ctx context.Context, tenantID string, doctorID string, since time.Time) ([]*Claim, error)

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, assessment *RiskAssessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*RiskAssessment, error)
	GetAssessmentByClaim(ctx context.Context, tenantID string, claimID string) (*RiskAssessment, error)

	// Screening rule configuration
	SaveScreenRule(ctx context.Context, tenantID string, rule *ScreenRule) error
	GetScreenRule(ctx context.Context, tenantID string, ruleID string) (*ScreenRule, error)
	ListScreenRules(ctx context.Context, tenantID string) ([]*ScreenRule, error)
	DeleteScreenRule(ctx context.Context, tenantID string, ruleID string) error

	// Provider history counters
	RecordProviderClaim(ctx context.Context, tenantID string, providerID string, highCost bool) error
	GetProviderStats(ctx context.Context, tenantID string, providerID string) (*ProviderStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
