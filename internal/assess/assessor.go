// Package assess implements the risk aggregation core: it combines the
// rule, behavior, and model scores into a single fraud decision.
package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ruralpay/kite/internal/behavior"
	"github.com/ruralpay/kite/internal/domain"
	"github.com/ruralpay/kite/internal/model"
	"github.com/ruralpay/kite/internal/rules"
)

// Stage weights for the combined score.
const (
	behaviorWeight = 0.3
	ruleWeight     = 0.4
	modelWeight    = 0.3
)

// Risk-level thresholds on the combined score, evaluated high to low.
// The fraud boundary coincides with MEDIUM: medium-and-above are all
// fraud for blocking purposes while the action stays graduated.
const (
	criticalThreshold = 0.8
	highThreshold     = 0.6
	mediumThreshold   = 0.4
	fraudThreshold    = mediumThreshold
)

// Evidence thresholds for stage descriptors.
const (
	behaviorEvidenceMin = 0.5
	modelEvidenceMin    = 0.7
)

const decisionCacheTTL = time.Hour

// Assessor orchestrates a risk assessment. Each call is a pure
// function of (transaction, current profile) followed by exactly one
// profile mutation; there is no persistent state machine and no
// retries.
type Assessor struct {
	profiles domain.ProfileStore
	rules    *rules.Engine
	behavior *behavior.Scorer
	model    model.Scorer

	// Collaborators below are optional and best-effort: their
	// failures never fail an assessment.
	audit domain.AuditSink
	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus
}

// Option configures optional collaborators on an Assessor.
type Option func(*Assessor)

// WithAudit attaches the audit sink.
func WithAudit(sink domain.AuditSink) Option {
	return func(a *Assessor) { a.audit = sink }
}

// WithRepository attaches best-effort persistence of transactions,
// decisions, and profile snapshots.
func WithRepository(repo domain.Repository) Option {
	return func(a *Assessor) { a.repo = repo }
}

// WithCache attaches the decision cache.
func WithCache(cache domain.Cache) Option {
	return func(a *Assessor) { a.cache = cache }
}

// WithBus attaches decision/alert publication.
func WithBus(bus domain.EventBus) Option {
	return func(a *Assessor) { a.bus = bus }
}

// NewAssessor wires the three scoring stages around the profile store.
func NewAssessor(profiles domain.ProfileStore, ruleEngine *rules.Engine, behaviorScorer *behavior.Scorer, modelScorer model.Scorer, opts ...Option) *Assessor {
	a := &Assessor{
		profiles: profiles,
		rules:    ruleEngine,
		behavior: behaviorScorer,
		model:    modelScorer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess is the primary entry point. Invalid input is an error, never a
// "low risk" decision; scoring-stage faults degrade to neutral scores
// so every valid transaction receives a decision.
func (a *Assessor) Assess(ctx context.Context, tx *domain.Transaction) (*domain.FraudDecision, error) {
	start := time.Now()

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = start.UTC()
	}

	prof, err := a.profiles.Get(ctx, tx.UserID)
	if err != nil {
		return nil, fmt.Errorf("profile lookup failed: %w", err)
	}

	// The three stages score independently; none mutates the profile.
	behaviorRes := a.behavior.Score(tx, prof)
	ruleRes := a.rules.Evaluate(ctx, tx, prof)
	modelProb, modelConf := a.model.Score(ctx, tx, prof)

	combined := behaviorRes.Score*behaviorWeight + ruleRes.Score*ruleWeight + modelProb*modelWeight

	level, action := classify(combined)

	factors := append([]string(nil), ruleRes.Factors...)
	if behaviorRes.Score > behaviorEvidenceMin {
		factors = append(factors, fmt.Sprintf("Behavioral anomaly score: %.2f", behaviorRes.Score))
	}
	if modelProb > modelEvidenceMin {
		factors = append(factors, fmt.Sprintf("Model fraud probability: %.2f", modelProb))
	}

	decision := &domain.FraudDecision{
		ID:            uuid.New().String(),
		TxID:          tx.ID,
		UserID:        tx.UserID,
		IsFraud:       combined >= fraudThreshold,
		RiskLevel:     level,
		Confidence:    modelConf,
		RiskFactors:   factors,
		Action:        action,
		CombinedScore: combined,
		RuleScore:     ruleRes.Score,
		BehaviorScore: behaviorRes.Score,
		ModelScore:    modelProb,
		Timestamp:     time.Now().UTC(),
	}

	// The profile is updated after scoring, fraud or not, so future
	// scoring reflects full history including blocked attempts.
	if err := a.profiles.Update(ctx, tx.UserID, tx); err != nil {
		return nil, fmt.Errorf("profile update failed: %w", err)
	}

	decision.ProcessMs = time.Since(start).Milliseconds()

	a.persist(ctx, tx, decision)
	a.publish(ctx, decision)
	a.emitAudit(ctx, tx, decision)

	return decision, nil
}

// classify maps the combined score to (risk level, action). The
// default arm exists so an unenumerated level can never silently fall
// through to a permissive action.
func classify(combined float64) (domain.RiskLevel, domain.Action) {
	var level domain.RiskLevel
	switch {
	case combined >= criticalThreshold:
		level = domain.RiskCritical
	case combined >= highThreshold:
		level = domain.RiskHigh
	case combined >= mediumThreshold:
		level = domain.RiskMedium
	default:
		level = domain.RiskLow
	}
	return level, ActionFor(level)
}

// ActionFor returns the recommended action for a risk level.
func ActionFor(level domain.RiskLevel) domain.Action {
	switch level {
	case domain.RiskCritical:
		return domain.ActionBlockAndReview
	case domain.RiskHigh:
		return domain.ActionRequireAuth
	case domain.RiskMedium:
		return domain.ActionAlertMonitor
	case domain.RiskLow:
		return domain.ActionAllow
	default:
		return domain.ActionBlockAndReview
	}
}

// persist saves the transaction, decision, and refreshed profile
// snapshot. Persistence is best-effort relative to the decision.
func (a *Assessor) persist(ctx context.Context, tx *domain.Transaction, decision *domain.FraudDecision) {
	if a.repo != nil {
		if err := a.repo.SaveTransaction(ctx, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
		if err := a.repo.SaveDecision(ctx, decision); err != nil {
			slog.Error("failed to save decision", "decision_id", decision.ID, "error", err)
		}
		if snapshot, err := a.profiles.Get(ctx, tx.UserID); err == nil {
			if err := a.repo.SaveProfile(ctx, snapshot); err != nil {
				slog.Error("failed to save profile snapshot", "user_id", tx.UserID, "error", err)
			}
		}
	}

	if a.cache != nil {
		if err := a.cache.SetDecision(ctx, decision, decisionCacheTTL); err != nil {
			slog.Warn("failed to cache decision", "decision_id", decision.ID, "error", err)
		}
	}
}

// publish emits the decision, and an alert when fraud is flagged, onto
// the event bus.
func (a *Assessor) publish(ctx context.Context, decision *domain.FraudDecision) {
	if a.bus == nil {
		return
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		slog.Error("failed to encode decision", "decision_id", decision.ID, "error", err)
		return
	}

	if err := a.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
		slog.Warn("failed to publish decision", "decision_id", decision.ID, "error", err)
	}
	if decision.IsFraud {
		if err := a.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Warn("failed to publish alert", "decision_id", decision.ID, "error", err)
		}
	}
}

// emitAudit reports the analysis to the audit sink, fire-and-forget.
func (a *Assessor) emitAudit(ctx context.Context, tx *domain.Transaction, decision *domain.FraudDecision) {
	if a.audit == nil {
		return
	}

	a.audit.Emit(ctx, &domain.AuditEvent{
		Type:   domain.EventFraudAnalysis,
		UserID: tx.UserID,
		Details: map[string]any{
			"txId":          tx.ID,
			"amount":        tx.Amount,
			"combinedScore": decision.CombinedScore,
			"riskLevel":     decision.RiskLevel.String(),
			"isFraud":       decision.IsFraud,
		},
		Timestamp: time.Now().UTC(),
	})

	if decision.IsFraud {
		a.audit.Emit(ctx, &domain.AuditEvent{
			Type:   domain.EventSuspiciousTransaction,
			UserID: tx.UserID,
			Details: map[string]any{
				"txId":      tx.ID,
				"amount":    tx.Amount,
				"riskScore": decision.CombinedScore,
				"action":    string(decision.Action),
			},
			Timestamp: time.Now().UTC(),
		})
	}
}
