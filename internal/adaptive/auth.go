// Package adaptive selects the authentication strength required for a
// transaction from a point-based contextual risk score.
package adaptive

import (
	"context"
	"sync"
	"time"

	"github.com/ruralpay/kite/internal/domain"
)

// Contextual risk points. The score is the plain sum of the signals
// below; thresholds map the sum onto the four risk levels.
const (
	lowTrustPoints      = 30 // device trust below 0.3
	midTrustPoints      = 15 // device trust below 0.7
	perFailurePoints    = 10
	maxFailurePoints    = 40
	veryLargeAmtPoints  = 25 // amount above 100,000
	largeAmtPoints      = 15 // amount above 50,000
	notableAmtPoints    = 10 // amount above 10,000
	oddHourPoints       = 20 // before 06:00 or after 22:00
	unusualPatternPoint = 25 // 3x the average amount, or back-to-back within 5 minutes
)

// Risk-score thresholds, evaluated high to low.
const (
	criticalScore = 70
	highScore     = 50
	mediumScore   = 30
)

// Device trust dynamics. Trust decays twice as fast as it builds, so a
// compromised device loses standing quickly.
const (
	defaultTrust   = 0.5
	trustOnSuccess = 0.1
	trustOnFailure = 0.2
)

const failureWindow = time.Hour

// Selector tracks per-device trust and recent authentication failures
// and maps a transaction's contextual risk onto a required auth level.
type Selector struct {
	mu             sync.Mutex
	deviceTrust    map[string]float64
	failedAttempts map[string][]time.Time

	audit domain.AuditSink
	now   func() time.Time
}

// NewSelector creates a selector. The audit sink may be nil.
func NewSelector(audit domain.AuditSink) *Selector {
	return &Selector{
		deviceTrust:    make(map[string]float64),
		failedAttempts: make(map[string][]time.Time),
		audit:          audit,
		now:            time.Now,
	}
}

// RiskScore computes the contextual risk score for a transaction.
func (s *Selector) RiskScore(tx *domain.Transaction, profile *domain.UserProfile) int {
	score := 0

	trust := s.DeviceTrust(tx.DeviceID)
	switch {
	case trust < 0.3:
		score += lowTrustPoints
	case trust < 0.7:
		score += midTrustPoints
	}

	failures := s.recentFailures(tx.UserID)
	penalty := failures * perFailurePoints
	if penalty > maxFailurePoints {
		penalty = maxFailurePoints
	}
	score += penalty

	switch {
	case tx.Amount > 100000:
		score += veryLargeAmtPoints
	case tx.Amount > 50000:
		score += largeAmtPoints
	case tx.Amount > 10000:
		score += notableAmtPoints
	}

	hour := tx.Timestamp.Hour()
	if hour < 6 || hour > 22 {
		score += oddHourPoints
	}

	if unusualPattern(tx, profile) {
		score += unusualPatternPoint
	}

	return score
}

// ClassifyScore maps a contextual risk score onto a risk level.
func ClassifyScore(score int) domain.RiskLevel {
	switch {
	case score >= criticalScore:
		return domain.RiskCritical
	case score >= highScore:
		return domain.RiskHigh
	case score >= mediumScore:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// LevelFor maps a risk level onto the required authentication level.
// Unknown levels demand full manual approval rather than defaulting
// open.
func LevelFor(level domain.RiskLevel) domain.AuthLevel {
	switch level {
	case domain.RiskLow:
		return domain.AuthPINOnly
	case domain.RiskMedium:
		return domain.AuthPINAndOTP
	case domain.RiskHigh:
		return domain.AuthPINOTPVerification
	case domain.RiskCritical:
		return domain.AuthFullManualApproval
	default:
		return domain.AuthFullManualApproval
	}
}

// Select computes the risk score for a transaction and returns the
// resulting risk level and required auth level.
func (s *Selector) Select(tx *domain.Transaction, profile *domain.UserProfile) (domain.AuthLevel, domain.RiskLevel, int) {
	score := s.RiskScore(tx, profile)
	level := ClassifyScore(score)
	return LevelFor(level), level, score
}

// RecordAttempt updates device trust from an authentication outcome.
// Failures also count toward the rolling failure window and are
// reported to the audit sink.
func (s *Selector) RecordAttempt(ctx context.Context, userID, deviceID string, success bool) {
	now := s.now()

	s.mu.Lock()
	trust, ok := s.deviceTrust[deviceID]
	if !ok {
		trust = defaultTrust
	}
	if success {
		trust += trustOnSuccess
		if trust > 1.0 {
			trust = 1.0
		}
	} else {
		trust -= trustOnFailure
		if trust < 0.0 {
			trust = 0.0
		}
		s.failedAttempts[userID] = append(s.pruneLocked(userID, now), now)
	}
	s.deviceTrust[deviceID] = trust
	s.mu.Unlock()

	if !success && s.audit != nil {
		s.audit.Emit(ctx, &domain.AuditEvent{
			Type:   domain.EventFailedAuth,
			UserID: userID,
			Details: map[string]any{
				"deviceId":    deviceID,
				"deviceTrust": trust,
			},
			Timestamp: now.UTC(),
		})
	}
}

// DeviceTrust returns the trust score for a device, defaulting to 0.5
// for devices never seen before.
func (s *Selector) DeviceTrust(deviceID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trust, ok := s.deviceTrust[deviceID]; ok {
		return trust
	}
	return defaultTrust
}

// recentFailures counts authentication failures inside the rolling
// window, pruning expired entries as a side effect.
func (s *Selector) recentFailures(userID string) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	recent := s.pruneLocked(userID, now)
	if len(recent) == 0 {
		delete(s.failedAttempts, userID)
	} else {
		s.failedAttempts[userID] = recent
	}
	return len(recent)
}

// pruneLocked drops failures outside the window. Callers hold s.mu.
func (s *Selector) pruneLocked(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-failureWindow)
	var recent []time.Time
	for _, at := range s.failedAttempts[userID] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	return recent
}

// unusualPattern reports whether the transaction deviates sharply from
// the user's history: triple the average amount, or arriving within
// five minutes of the previous transaction.
func unusualPattern(tx *domain.Transaction, profile *domain.UserProfile) bool {
	if profile == nil || profile.IsNew() {
		return false
	}
	if profile.AvgAmount > 0 && tx.Amount > profile.AvgAmount*3 {
		return true
	}
	if !profile.LastTxTime.IsZero() && tx.Timestamp.Sub(profile.LastTxTime) < 5*time.Minute {
		return true
	}
	return false
}
