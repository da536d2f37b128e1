// Package rules provides the threshold rule table and the CEL custom
// rule engine for transaction risk scoring.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/ruralpay/kite/internal/domain"
)

// VelocityGetter returns the number of transactions the user has made
// in the trailing window, including the current one. A nil getter or a
// getter error disables the velocity rule for the call.
type VelocityGetter func(ctx context.Context, userID string, window time.Duration) (int64, error)

// Engine evaluates the built-in rule table, and any loaded custom CEL
// rules, against a transaction and the user's profile. Rule weights are
// additive and the total is clamped to [0,1]: simultaneous concerns
// compound but never exceed certainty.
type Engine struct {
	thresholds domain.RuleThresholds
	velocity   VelocityGetter
	custom     *CustomEngine
}

// NewEngine creates a rule engine with the given policy thresholds.
// velocity may be nil; custom may be nil when no CEL rules are used.
func NewEngine(thresholds domain.RuleThresholds, velocity VelocityGetter, custom *CustomEngine) *Engine {
	return &Engine{
		thresholds: thresholds,
		velocity:   velocity,
		custom:     custom,
	}
}

// Evaluate runs the rule table against (transaction, profile) and
// returns the clamped total with factor descriptions in table order.
// Evaluation never fails: unavailable inputs degrade to
// rule-not-triggered.
func (e *Engine) Evaluate(ctx context.Context, tx *domain.Transaction, profile *domain.UserProfile) domain.ScoreResult {
	t := e.thresholds
	var score float64
	var factors []string

	trigger := func(weight float64, format string, args ...any) {
		score += weight
		factors = append(factors, fmt.Sprintf(format, args...))
	}

	// High absolute amount
	if tx.Amount > t.HighAmount {
		trigger(t.HighAmountWeight, "High amount transaction: ₹%.2f", tx.Amount)
	}

	// Nighttime window (global policy, not personalized)
	hour := tx.Timestamp.Hour()
	if hour >= t.NightStartHour || hour <= t.NightEndHour {
		trigger(t.UnusualHourWeight, "Transaction at unusual hour: %02d:00", hour)
	}

	// Rapid succession
	if profile != nil && !profile.LastTxTime.IsZero() {
		gap := tx.Timestamp.Sub(profile.LastTxTime).Seconds()
		if gap < t.RapidIntervalSecs {
			trigger(t.RapidWeight, "Rapid transaction: %.0f seconds since last", gap)
		}
	}

	// Amount spike relative to the user's running average
	if profile != nil && profile.AvgAmount > 0 && tx.Amount > profile.AvgAmount*t.SpikeMultiplier {
		trigger(t.SpikeWeight, "Amount spike: %.1fx average", tx.Amount/profile.AvgAmount)
	}

	// Large weekend transaction
	wd := tx.Timestamp.Weekday()
	if (wd == time.Saturday || wd == time.Sunday) && tx.Amount > t.WeekendAmount {
		trigger(t.WeekendWeight, "Large weekend transaction: ₹%.2f", tx.Amount)
	}

	// Transactions per trailing hour. Counter failures disable the
	// rule rather than failing the evaluation.
	if e.velocity != nil && t.VelocityPerHour > 0 {
		count, err := e.velocity(ctx, tx.UserID, time.Hour)
		if err == nil && count > int64(t.VelocityPerHour) {
			trigger(t.VelocityWeight, "High velocity: %d transactions in the last hour", count)
		}
	}

	// Operator-defined CEL rules join the same additive total.
	if e.custom != nil {
		customScore, customFactors := e.custom.Evaluate(tx, profile)
		score += customScore
		factors = append(factors, customFactors...)
	}

	if score > 1.0 {
		score = 1.0
	}

	return domain.ScoreResult{Score: score, Factors: factors}
}
