package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/ruralpay/kite/internal/domain"
)

// CustomEngine compiles and evaluates operator-defined CEL rules.
// Expressions see the transaction and a flattened view of the user's
// profile; a boolean true (or a numeric result > 0) triggers the rule.
type CustomEngine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules map[string]*compiledRule
}

type compiledRule struct {
	config  *domain.CustomRule
	program cel.Program
}

// NewCustomEngine creates a CEL environment exposing the scoring
// variables available to custom rules.
func NewCustomEngine() (*CustomEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("device_id", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("avg_amount", cel.DoubleType),
		cel.Variable("max_amount", cel.DoubleType),
		cel.Variable("tx_count", cel.IntType),
		cel.Variable("gap_seconds", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CustomEngine{
		env:   env,
		rules: make(map[string]*compiledRule),
	}, nil
}

// LoadRule compiles and loads a custom rule.
func (e *CustomEngine) LoadRule(cfg *domain.CustomRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	compiled, err := e.compile(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *CustomEngine) LoadRules(configs []*domain.CustomRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces the loaded rule set atomically.
func (e *CustomEngine) ReloadRules(configs []*domain.CustomRule) error {
	next := make(map[string]*compiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compile(cfg)
		if err != nil {
			return err
		}
		next[cfg.ID] = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = next
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *CustomEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs all loaded rules and returns the summed weight of
// triggered rules with their factor descriptions. A rule that errors
// at evaluation time contributes nothing.
func (e *CustomEngine) Evaluate(tx *domain.Transaction, profile *domain.UserProfile) (float64, []string) {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return 0, nil
	}

	activation := activationFor(tx, profile)

	var score float64
	var factors []string
	for _, rule := range rules {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			continue
		}
		if triggered(out) {
			score += rule.config.Weight
			factors = append(factors, fmt.Sprintf("Custom rule triggered: %s", rule.config.Name))
		}
	}

	return score, factors
}

func (e *CustomEngine) compile(cfg *domain.CustomRule) (*compiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledRule{config: cfg, program: program}, nil
}

func activationFor(tx *domain.Transaction, profile *domain.UserProfile) map[string]any {
	var avg, maxAmt, gap float64
	var count int64
	if profile != nil {
		avg = profile.AvgAmount
		maxAmt = profile.MaxAmount
		count = profile.TotalCount
		if !profile.LastTxTime.IsZero() {
			gap = tx.Timestamp.Sub(profile.LastTxTime).Seconds()
		}
	}

	return map[string]any{
		"amount":      tx.Amount,
		"hour":        int64(tx.Timestamp.Hour()),
		"weekday":     int64(tx.Timestamp.Weekday()),
		"device_id":   tx.DeviceID,
		"location":    tx.Location,
		"avg_amount":  avg,
		"max_amount":  maxAmt,
		"tx_count":    count,
		"gap_seconds": gap,
	}
}

func triggered(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) > 0
	case types.Int:
		return int64(v) > 0
	default:
		return false
	}
}
