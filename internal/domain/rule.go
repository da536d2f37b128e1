package domain

// RuleThresholds holds the tunable policy values for the built-in rule
// table. Thresholds are configuration; the rule set itself is fixed.
type RuleThresholds struct {
	// High absolute amount
	HighAmount       float64 `json:"highAmount"`
	HighAmountWeight float64 `json:"highAmountWeight"`

	// Nighttime window: hour >= NightStartHour or hour <= NightEndHour
	NightStartHour    int     `json:"nightStartHour"`
	NightEndHour      int     `json:"nightEndHour"`
	UnusualHourWeight float64 `json:"unusualHourWeight"`

	// Rapid succession: seconds since the user's previous transaction
	RapidIntervalSecs float64 `json:"rapidIntervalSecs"`
	RapidWeight       float64 `json:"rapidWeight"`

	// Amount spike relative to the user's running average
	SpikeMultiplier float64 `json:"spikeMultiplier"`
	SpikeWeight     float64 `json:"spikeWeight"`

	// Large transaction on a weekend
	WeekendAmount float64 `json:"weekendAmount"`
	WeekendWeight float64 `json:"weekendWeight"`

	// Transactions per trailing hour, counted via the cache
	VelocityPerHour int     `json:"velocityPerHour"`
	VelocityWeight  float64 `json:"velocityWeight"`
}

// DefaultRuleThresholds returns the stock policy values.
func DefaultRuleThresholds() RuleThresholds {
	return RuleThresholds{
		HighAmount:        100000,
		HighAmountWeight:  0.8,
		NightStartHour:    23,
		NightEndHour:      6,
		UnusualHourWeight: 0.3,
		RapidIntervalSecs: 300,
		RapidWeight:       0.4,
		SpikeMultiplier:   5,
		SpikeWeight:       0.4,
		WeekendAmount:     50000,
		WeekendWeight:     0.2,
		VelocityPerHour:   10,
		VelocityWeight:    0.5,
	}
}

// CustomRule is an operator-defined CEL rule evaluated alongside the
// built-in table. A triggered custom rule contributes its weight to the
// same clamped additive total.
type CustomRule struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}
