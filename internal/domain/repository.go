package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence: transaction
// records, decisions, profile snapshots, and custom rules. The risk
// core itself keeps profiles in memory; the repository is the external
// collaborator that persists snapshots across restarts.
type Repository interface {
	// Transaction records
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)

	// Decisions
	SaveDecision(ctx context.Context, decision *FraudDecision) error
	GetDecision(ctx context.Context, decisionID string) (*FraudDecision, error)
	ListDecisionsByUser(ctx context.Context, userID string, since time.Time) ([]*FraudDecision, error)

	// Profile snapshots, used to seed the ProfileStore on startup
	SaveProfile(ctx context.Context, profile *UserProfile) error
	LoadProfiles(ctx context.Context) ([]*UserProfile, error)

	// Custom rule configuration
	SaveCustomRule(ctx context.Context, rule *CustomRule) error
	ListCustomRules(ctx context.Context) ([]*CustomRule, error)

	// Reporting
	Stats(ctx context.Context) (*FraudStats, error)

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
