package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel is the ordered severity classification attached to a
// scored transaction.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the canonical name of the risk level.
func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(l))
	}
}

// MarshalJSON encodes the level as its canonical name.
func (l RiskLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a canonical level name.
func (l *RiskLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRiskLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseRiskLevel converts a canonical name back to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch s {
	case "LOW":
		return RiskLow, nil
	case "MEDIUM":
		return RiskMedium, nil
	case "HIGH":
		return RiskHigh, nil
	case "CRITICAL":
		return RiskCritical, nil
	default:
		return 0, fmt.Errorf("unknown risk level: %q", s)
	}
}

// Action is the recommended response to a scored transaction.
type Action string

const (
	ActionAllow          Action = "ALLOW"
	ActionAlertMonitor   Action = "ALERT_AND_MONITOR"
	ActionRequireAuth    Action = "REQUIRE_ADDITIONAL_AUTH"
	ActionBlockAndReview Action = "BLOCK_AND_REVIEW"
)

// AuthLevel is the required authentication strength for a contextual
// risk level. Levels are ordered: each step adds factors on top of the
// previous one.
type AuthLevel int

const (
	AuthPINOnly AuthLevel = iota + 1
	AuthPINAndOTP
	AuthPINOTPVerification
	AuthFullManualApproval
)

// String returns the canonical name of the auth level.
func (a AuthLevel) String() string {
	switch a {
	case AuthPINOnly:
		return "PIN_ONLY"
	case AuthPINAndOTP:
		return "PIN_AND_OTP"
	case AuthPINOTPVerification:
		return "PIN_OTP_VERIFICATION"
	case AuthFullManualApproval:
		return "FULL_MANUAL_APPROVAL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(a))
	}
}

// MarshalJSON encodes the level as its canonical name.
func (a AuthLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// ScoreResult is the output of a single scoring stage. It is not
// persisted; the aggregator folds stage results into a FraudDecision.
type ScoreResult struct {
	Score   float64  `json:"score"`
	Factors []string `json:"factors,omitempty"`
}

// FraudDecision is the immutable output of a risk assessment.
type FraudDecision struct {
	ID     string `json:"id"`
	TxID   string `json:"txId"`
	UserID string `json:"userId"`

	IsFraud     bool      `json:"isFraud"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Confidence  float64   `json:"confidence"`
	RiskFactors []string  `json:"riskFactors,omitempty"`
	Action      Action    `json:"recommendedAction"`

	// Stage scores that produced the combined score
	CombinedScore float64 `json:"combinedScore"`
	RuleScore     float64 `json:"ruleScore"`
	BehaviorScore float64 `json:"behaviorScore"`
	ModelScore    float64 `json:"modelScore"`

	Timestamp time.Time `json:"timestamp"`

	// Processing metadata
	ProcessMs int64 `json:"processMs,omitempty"`
}

// FraudStats summarizes decision history for reporting.
type FraudStats struct {
	TotalDecisions int64   `json:"totalDecisions"`
	FraudCount     int64   `json:"fraudCount"`
	FraudRate      float64 `json:"fraudRate"`
}
