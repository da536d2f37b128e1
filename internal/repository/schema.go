package repository

// Schema definitions for the risk engine database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount REAL NOT NULL,
    device_id TEXT,
    description TEXT,
    location TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(user_id, timestamp);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    tx_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    is_fraud INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    confidence REAL NOT NULL,
    risk_factors TEXT,
    action TEXT NOT NULL,
    combined_score REAL NOT NULL,
    rule_score REAL NOT NULL,
    behavior_score REAL NOT NULL,
    model_score REAL NOT NULL,
    process_ms INTEGER NOT NULL DEFAULT 0,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_user ON decisions(user_id);
CREATE INDEX IF NOT EXISTS idx_decisions_tx ON decisions(tx_id);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(user_id, timestamp);
`

// schemaProfiles holds the latest snapshot per user. Snapshots seed the
// in-memory profile store across restarts; rolling windows are stored
// as JSON arrays.
const schemaProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    total_count INTEGER NOT NULL,
    avg_amount REAL NOT NULL,
    max_amount REAL NOT NULL,
    min_amount REAL NOT NULL,
    hours TEXT NOT NULL,
    days TEXT NOT NULL,
    intervals TEXT NOT NULL,
    amounts TEXT NOT NULL,
    last_tx_time TIMESTAMP,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 0.1,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaDecisions,
		schemaProfiles,
		schemaCustomRules,
	}
}
