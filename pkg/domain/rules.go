package domain

import (
	"context"
	"fmt"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock rejects the write.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a problem but lets the write through.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Action enumerates the kinds of change a rule can observe.
type Action string

const (
	// ActionCreate indicates a record was stored under a new key.
	ActionCreate Action = "create"
	// ActionUpdate indicates an existing key was overwritten.
	ActionUpdate Action = "update"
)

// Change describes a single pending put as seen by rules.
type Change struct {
	Collection Collection
	Key        string
	Action     Action
	Before     Record
	After      Record
}

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   Collection
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("write blocked by rule %s: %s", v.Rule, v.Message)
		}
	}
	return "write blocked by rules"
}

// Rule inspects a pending change against the current store contents.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RecordReader, change Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names in evaluation order.
func (e *RulesEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RecordReader, change Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, change)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
