// Package rules provides the CEL based screening engine for analyst-supplied
// row expressions.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/mrh-2003/aml-system/internal/domain"
)

// Rule is one named screening expression. Expressions are boolean CEL
// predicates over a transaction row; a true result flags the row.
type Rule struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Enabled    bool   `json:"enabled"`
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    Rule
	Program cel.Program
}

// Flag is one rule hit on one row.
type Flag struct {
	RuleName string
	Tx       *domain.Transaction
}

// Engine compiles and evaluates screening rules. Safe for concurrent use;
// rules can be reloaded while evaluations run.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledRule
}

// NewEngine creates a screening engine with the transaction row variables
// bound into the CEL environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("op_group", cel.StringType),
		cel.Variable("direction", cel.StringType),
		cel.Variable("memo", cel.StringType),
		cel.Variable("activity", cel.StringType),
		cel.Variable("segment", cel.StringType),
		cel.Variable("branch", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledRule),
	}, nil
}

// Validate compiles a rule without loading it.
func (e *Engine) Validate(r Rule) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(r)
	return err
}

// Load compiles and loads one rule into the engine.
func (e *Engine) Load(r Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(r)
	if err != nil {
		return err
	}
	e.compiled[r.Name] = compiled
	return nil
}

// LoadAll compiles and loads every enabled rule.
func (e *Engine) LoadAll(rules []Rule) error {
	for _, r := range rules {
		if r.Enabled {
			if err := e.Load(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reload replaces the loaded rule set atomically.
func (e *Engine) Reload(rules []Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledRule)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		compiled, err := e.compile(r)
		if err != nil {
			return err
		}
		next[r.Name] = compiled
	}
	e.compiled = next
	return nil
}

// Rules returns the currently loaded rules.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]Rule, 0, len(e.compiled))
	for _, c := range e.compiled {
		rules = append(rules, c.Rule)
	}
	return rules
}

// Count returns the number of loaded rules.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// EvaluateRows runs every loaded rule against every row and returns the
// hits. Evaluation errors on a single row count against that row only; a
// malformed value in one row must not abort screening of the rest.
func (e *Engine) EvaluateRows(ctx context.Context, rows []*domain.Transaction) ([]Flag, error) {
	e.mu.RLock()
	compiled := make([]*CompiledRule, 0, len(e.compiled))
	for _, c := range e.compiled {
		compiled = append(compiled, c)
	}
	e.mu.RUnlock()

	if len(compiled) == 0 {
		return nil, nil
	}

	flags := make([]Flag, 0)
	for _, tx := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vars := activation(tx)
		for _, c := range compiled {
			out, _, err := c.Program.Eval(vars)
			if err != nil {
				continue
			}
			if isTrue(out) {
				flags = append(flags, Flag{RuleName: c.Rule.Name, Tx: tx})
			}
		}
	}
	return flags, nil
}

// Screen evaluates one ad-hoc expression against the rows without loading
// it, returning the matching rows. Used for interactive keyword and profile
// screening variants.
func (e *Engine) Screen(ctx context.Context, rows []*domain.Transaction, expression string) ([]*domain.Transaction, error) {
	e.mu.RLock()
	compiled, err := e.compile(Rule{Name: "adhoc", Expression: expression, Enabled: true})
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	matched := make([]*domain.Transaction, 0)
	for _, tx := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, _, err := compiled.Program.Eval(activation(tx))
		if err != nil {
			continue
		}
		if isTrue(out) {
			matched = append(matched, tx)
		}
	}
	return matched, nil
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compile(r Rule) (*CompiledRule, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}

	ast, issues := e.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.Name, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.Name, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.Name, err)
	}

	return &CompiledRule{Rule: r, Program: program}, nil
}

func activation(tx *domain.Transaction) map[string]any {
	return map[string]any{
		"tx": map[string]any{
			"client_id": tx.ClientID,
			"amount":    tx.Amount,
			"currency":  tx.Currency,
			"channel":   tx.Channel,
			"op_group":  tx.OpGroup,
			"direction": tx.Direction,
			"memo":      tx.NormalizedMemo,
			"activity":  tx.EconomicActivity,
			"segment":   tx.Segment,
			"branch":    tx.Branch,
			"tier":      tx.BankingTier,
			"operator":  tx.Operator,
		},
		"amount":    tx.Amount,
		"currency":  tx.Currency,
		"channel":   tx.Channel,
		"op_group":  tx.OpGroup,
		"direction": tx.Direction,
		"memo":      tx.NormalizedMemo,
		"activity":  tx.EconomicActivity,
		"segment":   tx.Segment,
		"branch":    tx.Branch,
	}
}

func isTrue(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}
