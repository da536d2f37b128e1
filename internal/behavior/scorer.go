// Package behavior computes anomaly scores from deviation between a
// transaction and the user's historical pattern.
package behavior

import (
	"math"

	"github.com/ruralpay/kite/internal/domain"
)

// NeutralScore is assigned to users with no history. Insufficient
// history is genuine uncertainty, neither "safe" nor "flagged".
const NeutralScore = 0.5

// Deviation signal increments. Signals are additive and the total is
// capped at 1.0.
const (
	largeDeviationBonus = 0.3 // amount deviates more than 200% from average
	smallDeviationBonus = 0.2 // amount deviates more than 100% from average
	unusualHourBonus    = 0.2 // hour seen in <10% of the user's own history
	velocityBonus       = 0.3 // gap under 10% of the user's own mean gap
	localSpikeBonus     = 0.2 // amount over 2x the max of the last 5 amounts
)

// Scorer scores behavioral deviation. It is stateless: all state lives
// in the profile it is handed.
type Scorer struct{}

// NewScorer creates a behavior scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns an anomaly score in [0,1] with descriptions of the
// signals that fired. New users receive the neutral default.
func (s *Scorer) Score(tx *domain.Transaction, profile *domain.UserProfile) domain.ScoreResult {
	if profile.IsNew() {
		return domain.ScoreResult{Score: NeutralScore}
	}

	var score float64
	var factors []string

	// Amount deviation from the running average. The larger tier does
	// not stack with the smaller.
	if profile.AvgAmount > 0 {
		deviation := math.Abs(tx.Amount-profile.AvgAmount) / profile.AvgAmount
		switch {
		case deviation > 2.0:
			score += largeDeviationBonus
			factors = append(factors, "amount deviates more than 200% from average")
		case deviation > 1.0:
			score += smallDeviationBonus
			factors = append(factors, "amount deviates more than 100% from average")
		}
	}

	// Hour unusual for this user, as opposed to the global nighttime
	// rule in the rule engine.
	if len(profile.Hours) > 0 {
		hour := tx.Timestamp.Hour()
		count := 0
		for _, h := range profile.Hours {
			if h == hour {
				count++
			}
		}
		if float64(count)/float64(len(profile.Hours)) < 0.1 {
			score += unusualHourBonus
			factors = append(factors, "transaction hour unusual for this user")
		}
	}

	// Velocity anomaly against the user's own cadence
	if !profile.LastTxTime.IsZero() && len(profile.Intervals) > 0 {
		gap := tx.Timestamp.Sub(profile.LastTxTime).Seconds()
		var sum float64
		for _, v := range profile.Intervals {
			sum += v
		}
		avgGap := sum / float64(len(profile.Intervals))
		if avgGap > 0 && gap < avgGap*0.1 {
			score += velocityBonus
			factors = append(factors, "transaction much faster than usual cadence")
		}
	}

	// Local spike against the last few amounts
	if len(profile.Amounts) >= 5 {
		recent := profile.Amounts[len(profile.Amounts)-5:]
		maxRecent := recent[0]
		for _, a := range recent[1:] {
			if a > maxRecent {
				maxRecent = a
			}
		}
		if tx.Amount > maxRecent*2 {
			score += localSpikeBonus
			factors = append(factors, "amount spikes above recent transactions")
		}
	}

	if score > 1.0 {
		score = 1.0
	}

	return domain.ScoreResult{Score: score, Factors: factors}
}
