// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ruralpay/kite/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction record.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (
			id, user_id, amount, device_id, description, location,
			timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.Amount,
		tx.DeviceID, tx.Description, tx.Location,
		tx.Timestamp, tx.CreatedAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, user_id, amount, device_id, description, location,
			   timestamp, created_at
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.UserID, &tx.Amount,
		&tx.DeviceID, &tx.Description, &tx.Location,
		&tx.Timestamp, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &tx, nil
}

// SaveDecision stores a fraud decision.
func (r *SQLRepository) SaveDecision(ctx context.Context, decision *domain.FraudDecision) error {
	if decision.ID == "" {
		return fmt.Errorf("%w: decision ID is required", ErrInvalidInput)
	}

	factors, _ := json.Marshal(decision.RiskFactors)

	isFraud := 0
	if decision.IsFraud {
		isFraud = 1
	}

	query := `
		INSERT INTO decisions (
			id, tx_id, user_id, is_fraud, risk_level, confidence,
			risk_factors, action, combined_score, rule_score,
			behavior_score, model_score, process_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		decision.ID, decision.TxID, decision.UserID,
		isFraud, decision.RiskLevel.String(), decision.Confidence,
		string(factors), string(decision.Action),
		decision.CombinedScore, decision.RuleScore,
		decision.BehaviorScore, decision.ModelScore,
		decision.ProcessMs, decision.Timestamp,
	)
	return err
}

// GetDecision retrieves a fraud decision by ID.
func (r *SQLRepository) GetDecision(ctx context.Context, decisionID string) (*domain.FraudDecision, error) {
	query := `
		SELECT id, tx_id, user_id, is_fraud, risk_level, confidence,
			   risk_factors, action, combined_score, rule_score,
			   behavior_score, model_score, process_ms, timestamp
		FROM decisions
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), decisionID)
	decision, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// ListDecisionsByUser retrieves decisions for a user since a point in
// time, most recent first.
func (r *SQLRepository) ListDecisionsByUser(ctx context.Context, userID string, since time.Time) ([]*domain.FraudDecision, error) {
	query := `
		SELECT id, tx_id, user_id, is_fraud, risk_level, confidence,
			   risk_factors, action, combined_score, rule_score,
			   behavior_score, model_score, process_ms, timestamp
		FROM decisions
		WHERE user_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*domain.FraudDecision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, decision)
	}

	return decisions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*domain.FraudDecision, error) {
	var decision domain.FraudDecision
	var isFraud int
	var level, factors, action string

	err := row.Scan(
		&decision.ID, &decision.TxID, &decision.UserID,
		&isFraud, &level, &decision.Confidence,
		&factors, &action,
		&decision.CombinedScore, &decision.RuleScore,
		&decision.BehaviorScore, &decision.ModelScore,
		&decision.ProcessMs, &decision.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	decision.IsFraud = isFraud == 1
	decision.Action = domain.Action(action)
	decision.RiskLevel, err = domain.ParseRiskLevel(level)
	if err != nil {
		return nil, err
	}
	if factors != "" {
		json.Unmarshal([]byte(factors), &decision.RiskFactors)
	}

	return &decision, nil
}

// SaveProfile upserts the latest profile snapshot for a user.
func (r *SQLRepository) SaveProfile(ctx context.Context, profile *domain.UserProfile) error {
	if profile.UserID == "" {
		return fmt.Errorf("%w: user ID is required", ErrInvalidInput)
	}

	hours, _ := json.Marshal(profile.Hours)
	days, _ := json.Marshal(profile.Days)
	intervals, _ := json.Marshal(profile.Intervals)
	amounts, _ := json.Marshal(profile.Amounts)

	query := `
		INSERT INTO profiles (
			user_id, total_count, avg_amount, max_amount, min_amount,
			hours, days, intervals, amounts, last_tx_time, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_count = excluded.total_count,
			avg_amount = excluded.avg_amount,
			max_amount = excluded.max_amount,
			min_amount = excluded.min_amount,
			hours = excluded.hours,
			days = excluded.days,
			intervals = excluded.intervals,
			amounts = excluded.amounts,
			last_tx_time = excluded.last_tx_time,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		profile.UserID, profile.TotalCount,
		profile.AvgAmount, profile.MaxAmount, profile.MinAmount,
		string(hours), string(days), string(intervals), string(amounts),
		profile.LastTxTime, time.Now().UTC(),
	)
	return err
}

// LoadProfiles retrieves all profile snapshots.
func (r *SQLRepository) LoadProfiles(ctx context.Context) ([]*domain.UserProfile, error) {
	query := `
		SELECT user_id, total_count, avg_amount, max_amount, min_amount,
			   hours, days, intervals, amounts, last_tx_time
		FROM profiles
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.UserProfile
	for rows.Next() {
		var p domain.UserProfile
		var hours, days, intervals, amounts string
		var lastTx sql.NullTime

		if err := rows.Scan(
			&p.UserID, &p.TotalCount,
			&p.AvgAmount, &p.MaxAmount, &p.MinAmount,
			&hours, &days, &intervals, &amounts, &lastTx,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(hours), &p.Hours)
		json.Unmarshal([]byte(days), &p.Days)
		json.Unmarshal([]byte(intervals), &p.Intervals)
		json.Unmarshal([]byte(amounts), &p.Amounts)
		if lastTx.Valid {
			p.LastTxTime = lastTx.Time
		}

		profiles = append(profiles, &p)
	}

	return profiles, rows.Err()
}

// SaveCustomRule upserts a custom rule configuration.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, rule *domain.CustomRule) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, name, description, expression, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Expression, rule.Weight, enabled,
		now, now,
	)
	return err
}

// ListCustomRules retrieves all enabled custom rules.
func (r *SQLRepository) ListCustomRules(ctx context.Context) ([]*domain.CustomRule, error) {
	query := `
		SELECT id, name, description, expression, weight, enabled
		FROM custom_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.CustomRule
	for rows.Next() {
		var rule domain.CustomRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Stats summarizes the decision history.
func (r *SQLRepository) Stats(ctx context.Context) (*domain.FraudStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(is_fraud), 0)
		FROM decisions
	`

	var stats domain.FraudStats
	if err := r.db.QueryRowContext(ctx, query).Scan(&stats.TotalDecisions, &stats.FraudCount); err != nil {
		return nil, err
	}

	if stats.TotalDecisions > 0 {
		stats.FraudRate = float64(stats.FraudCount) / float64(stats.TotalDecisions)
	}

	return &stats, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
