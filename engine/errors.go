/*
errors.go - Error types for the rule engine

PURPOSE:
  All engine errors in one place. Errors never escape Evaluate; they are
  recorded on the failed RuleResult so callers can report which rules
  failed and why.

ERROR CATEGORIES:
  1. Configuration errors - unknown rule type, bad conditions
  2. Systemic errors - topology unavailable, evaluator panic
  3. Row-level problems - never errors, the row is skipped

USAGE:
  for _, res := range analysis.Results {
      if engine.IsConfigError(res.Err) {
          // fix the rule definition
      }
  }

SEE ALSO:
  - engine.go: wraps evaluator failures in RuleError
  - factory/rules.go: produces ConditionError values
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTopologyUnavailable is returned when a rule needs the warehouse
	// topology and none was supplied, or the lookup itself failed.
	ErrTopologyUnavailable = errors.New("warehouse topology unavailable")

	// ErrUnknownRuleType is returned for a rule type with no evaluator.
	ErrUnknownRuleType = errors.New("unknown rule type")

	// ErrInvalidConditions is returned when a condition bag cannot be parsed
	// or fails validation.
	ErrInvalidConditions = errors.New("invalid rule conditions")

	// ErrConditionsMismatch is returned when a rule carries conditions
	// belonging to a different rule type.
	ErrConditionsMismatch = errors.New("conditions do not match rule type")

	// ErrEvaluatorPanic is recorded when an evaluator panics.
	ErrEvaluatorPanic = errors.New("evaluator panicked")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// RuleError is the failure recorded for one rule of an analysis run.
type RuleError struct {
	RuleID   string
	RuleType RuleType
	Err      error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s (%s): %v", e.RuleID, e.RuleType, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigError returns true if the rule failed because of its configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownRuleType) ||
		errors.Is(err, ErrInvalidConditions) ||
		errors.Is(err, ErrConditionsMismatch)
}

// IsSystemic returns true if the rule failed for reasons outside its
// configuration.
func IsSystemic(err error) bool {
	return errors.Is(err, ErrTopologyUnavailable) ||
		errors.Is(err, ErrEvaluatorPanic)
}
