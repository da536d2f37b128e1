package domain

import (
	"context"
	"time"
)

// Audit event types emitted by the risk core.
const (
	EventFraudAnalysis         = "FRAUD_ANALYSIS"
	EventFailedAuth            = "FAILED_AUTH"
	EventSuspiciousTransaction = "SUSPICIOUS_TRANSACTION"
)

// AuditEvent is a structured security event.
type AuditEvent struct {
	Type      string         `json:"eventType"`
	UserID    string         `json:"userId"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AuditSink accepts structured security events. Emission is
// fire-and-forget: the caller never fails a transaction because the
// sink did.
type AuditSink interface {
	Emit(ctx context.Context, event *AuditEvent)
}
