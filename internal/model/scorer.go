// Package model provides the pluggable fraud-probability scorer. Every
// implementation neutralizes its own failures: fraud detection must
// degrade, never crash, a transaction flow.
package model

import (
	"context"

	"github.com/ruralpay/kite/internal/domain"
)

// Scorer estimates the fraud probability of a transaction.
//
// Implementations return (probability, confidence), both in [0,1].
// On any internal failure they must return the neutral (0, 0) pair
// rather than an error; the aggregator never special-cases an
// unavailable model.
type Scorer interface {
	Score(ctx context.Context, tx *domain.Transaction, profile *domain.UserProfile) (probability, confidence float64)
}

// Fallback thresholds on amount alone. Deterministic so behavior is
// testable without an external model.
const (
	veryHighAmount = 200000
	highAmount     = 100000
	midAmount      = 50000
)

// FallbackScorer is the deterministic rule-based scorer used when no
// external model is configured or the external call fails.
type FallbackScorer struct{}

// NewFallbackScorer creates the deterministic scorer.
func NewFallbackScorer() *FallbackScorer {
	return &FallbackScorer{}
}

// Score maps the amount onto fixed probability/confidence bands.
func (s *FallbackScorer) Score(ctx context.Context, tx *domain.Transaction, profile *domain.UserProfile) (float64, float64) {
	switch {
	case tx.Amount >= veryHighAmount:
		return 0.9, 0.8
	case tx.Amount >= highAmount:
		return 0.6, 0.6
	case tx.Amount >= midAmount:
		return 0.3, 0.5
	default:
		return 0.1, 0.4
	}
}
