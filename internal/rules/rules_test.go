package rules

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ruralpay/kite/internal/domain"
)

// Tuesday 14:00 UTC: daytime, weekday. The quiet baseline for tests
// that want no rule to fire.
var safeTime = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(domain.DefaultRuleThresholds(), nil, nil)
}

func steadyProfile() *domain.UserProfile {
	return &domain.UserProfile{
		UserID:     "u1",
		TotalCount: 50,
		AvgAmount:  1000,
		MaxAmount:  2000,
		MinAmount:  500,
		LastTxTime: safeTime.Add(-2 * time.Hour),
	}
}

func TestNoRulesFireOnQuietTransaction(t *testing.T) {
	engine := newTestEngine()

	tx := &domain.Transaction{UserID: "u1", Amount: 1000, Timestamp: safeTime}
	res := engine.Evaluate(context.Background(), tx, steadyProfile())

	if res.Score != 0 {
		t.Errorf("expected score 0, got %.2f (factors: %v)", res.Score, res.Factors)
	}
	if len(res.Factors) != 0 {
		t.Errorf("expected no factors, got %v", res.Factors)
	}
}

func TestHighAmountRule(t *testing.T) {
	engine := newTestEngine()

	tx := &domain.Transaction{UserID: "u1", Amount: 100001, Timestamp: safeTime}
	res := engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})

	if res.Score != 0.8 {
		t.Errorf("expected score 0.8, got %.2f", res.Score)
	}
	if len(res.Factors) != 1 || !strings.Contains(res.Factors[0], "High amount") {
		t.Errorf("unexpected factors: %v", res.Factors)
	}

	// Exactly at the threshold must not trigger
	tx.Amount = 100000
	res = engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})
	if res.Score != 0 {
		t.Errorf("boundary amount should not trigger, got %.2f", res.Score)
	}
}

func TestUnusualHourRule(t *testing.T) {
	engine := newTestEngine()

	cases := []struct {
		hour    int
		trigger bool
	}{
		{23, true},
		{0, true},
		{3, true},
		{6, true},
		{7, false},
		{14, false},
		{22, false},
	}

	for _, tc := range cases {
		at := time.Date(2026, 3, 10, tc.hour, 0, 0, 0, time.UTC)
		tx := &domain.Transaction{UserID: "u1", Amount: 100, Timestamp: at}
		res := engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})

		fired := res.Score > 0
		if fired != tc.trigger {
			t.Errorf("hour %d: expected trigger=%v, score %.2f", tc.hour, tc.trigger, res.Score)
		}
	}
}

func TestRapidSuccessionRule(t *testing.T) {
	engine := newTestEngine()

	profile := steadyProfile()
	profile.LastTxTime = safeTime.Add(-60 * time.Second)

	tx := &domain.Transaction{UserID: "u1", Amount: 1000, Timestamp: safeTime}
	res := engine.Evaluate(context.Background(), tx, profile)

	if math.Abs(res.Score-0.4) > 1e-9 {
		t.Errorf("expected score 0.4, got %.2f", res.Score)
	}

	// A comfortable gap scores lower than a rapid one
	profile.LastTxTime = safeTime.Add(-time.Hour)
	slow := engine.Evaluate(context.Background(), tx, profile)
	if slow.Score >= res.Score {
		t.Errorf("slow gap (%.2f) should score below rapid gap (%.2f)", slow.Score, res.Score)
	}
}

func TestSpikeRule(t *testing.T) {
	engine := newTestEngine()

	profile := steadyProfile()
	tx := &domain.Transaction{UserID: "u1", Amount: 5001, Timestamp: safeTime}
	res := engine.Evaluate(context.Background(), tx, profile)

	if math.Abs(res.Score-0.4) > 1e-9 {
		t.Errorf("expected score 0.4, got %.2f (factors %v)", res.Score, res.Factors)
	}

	// A zero-average profile (new user) never spikes
	res = engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})
	if res.Score != 0 {
		t.Errorf("new user should not trigger spike, got %.2f", res.Score)
	}
}

func TestWeekendLargeRule(t *testing.T) {
	engine := newTestEngine()

	saturday := time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	tx := &domain.Transaction{UserID: "u1", Amount: 50001, Timestamp: saturday}
	res := engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})

	if math.Abs(res.Score-0.2) > 1e-9 {
		t.Errorf("expected score 0.2, got %.2f", res.Score)
	}

	// Same amount on a weekday does not trigger
	tx.Timestamp = safeTime
	res = engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})
	if res.Score != 0 {
		t.Errorf("weekday should not trigger weekend rule, got %.2f", res.Score)
	}
}

func TestVelocityRule(t *testing.T) {
	count := int64(0)
	getter := func(ctx context.Context, userID string, window time.Duration) (int64, error) {
		return count, nil
	}
	engine := NewEngine(domain.DefaultRuleThresholds(), getter, nil)

	tx := &domain.Transaction{UserID: "u1", Amount: 100, Timestamp: safeTime}

	count = 10
	res := engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})
	if res.Score != 0 {
		t.Errorf("10 per hour should not trigger, got %.2f", res.Score)
	}

	count = 11
	res = engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})
	if math.Abs(res.Score-0.5) > 1e-9 {
		t.Errorf("expected score 0.5, got %.2f", res.Score)
	}
}

func TestVelocityGetterErrorDisablesRule(t *testing.T) {
	getter := func(ctx context.Context, userID string, window time.Duration) (int64, error) {
		return 0, errors.New("counter backend down")
	}
	engine := NewEngine(domain.DefaultRuleThresholds(), getter, nil)

	tx := &domain.Transaction{UserID: "u1", Amount: 100, Timestamp: safeTime}
	res := engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})

	if res.Score != 0 {
		t.Errorf("counter failure must not add risk, got %.2f", res.Score)
	}
}

func TestScoreClampedToOne(t *testing.T) {
	engine := newTestEngine()

	// Saturday night, huge amount, rapid succession, spike: raw sum > 1
	saturdayNight := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	profile := steadyProfile()
	profile.LastTxTime = saturdayNight.Add(-30 * time.Second)

	tx := &domain.Transaction{UserID: "u1", Amount: 200000, Timestamp: saturdayNight}
	res := engine.Evaluate(context.Background(), tx, profile)

	if res.Score != 1.0 {
		t.Errorf("expected clamped score 1.0, got %.2f", res.Score)
	}
	if len(res.Factors) < 4 {
		t.Errorf("expected all triggered factors retained, got %v", res.Factors)
	}
}

func TestMonotonicInAmount(t *testing.T) {
	engine := newTestEngine()
	profile := steadyProfile()

	prev := -1.0
	for _, amount := range []float64{1000, 5001, 100001} {
		tx := &domain.Transaction{UserID: "u1", Amount: amount, Timestamp: safeTime}
		res := engine.Evaluate(context.Background(), tx, profile)
		if res.Score < prev {
			t.Errorf("score decreased as amount grew: %.2f after %.2f (amount %.0f)", res.Score, prev, amount)
		}
		prev = res.Score
	}
}

func TestCustomRuleJoinsTotal(t *testing.T) {
	custom, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("failed to create custom engine: %v", err)
	}
	if err := custom.LoadRule(&domain.CustomRule{
		ID:         "locations",
		Name:       "Unexpected location",
		Expression: `location == "offshore"`,
		Weight:     0.25,
		Enabled:    true,
	}); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	engine := NewEngine(domain.DefaultRuleThresholds(), nil, custom)

	tx := &domain.Transaction{UserID: "u1", Amount: 100, Timestamp: safeTime, Location: "offshore"}
	res := engine.Evaluate(context.Background(), tx, &domain.UserProfile{UserID: "u1"})

	if math.Abs(res.Score-0.25) > 1e-9 {
		t.Errorf("expected score 0.25 from custom rule, got %.2f", res.Score)
	}
	if len(res.Factors) != 1 || !strings.Contains(res.Factors[0], "Unexpected location") {
		t.Errorf("unexpected factors: %v", res.Factors)
	}
}
