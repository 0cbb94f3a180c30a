/*
engine.go - Rule evaluation orchestrator

PURPOSE:
  Runs a list of rules against one inventory snapshot for one warehouse
  and returns per-rule results plus a summary. Evaluate always returns an
  Analysis; a failing rule is recorded as failed and the run continues.

ALGORITHM:
  1. Create a fresh PrecedenceManager and topology cache for the run
  2. Drop out-of-scope rows (warehouse exclusion patterns)
  3. Order enabled rules by precedence, then rule id
  4. For each rule: resolve its evaluator, run it, recover panics;
     on success register its anomalies for precedence exclusion
  5. Summarize totals, per-type and per-priority counts, failures

TOPOLOGY FAILURE:
  A topology that cannot answer lookups fails only the rules that consult
  it, with ErrTopologyUnavailable. DATA_INTEGRITY and
  LOCATION_SPECIFIC_STAGNANT work from the inventory alone and still
  succeed, so a run with a broken topology is not all-failed when those
  rules are configured.

CONCURRENCY:
  Rules run sequentially: rule N's exclusions must be visible to rule N+1.
  Separate Evaluate calls share nothing and may run in parallel.

EXAMPLE:
  eng := engine.New(engine.WithPrecedence(true))
  analysis := eng.Evaluate(rows, engine.WarehouseContext{Topology: topo}, rules)
  for _, r := range analysis.Results {
      fmt.Println(r.RuleID, r.Success, len(r.Anomalies))
  }

SEE ALSO:
  - evaluator.go: Evaluator interface and RuleContext
  - precedence.go: exclusion registry
  - analysis/service.go: wall-clock budget around Evaluate
*/
package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/warewise/rule-engine/location"
	"go.uber.org/zap"
)

// Engine evaluates rules. It holds configuration only and is safe for
// concurrent use.
type Engine struct {
	logger     *zap.Logger
	clock      func() time.Time
	precedence bool
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the clock used for the run's reference time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.clock = now
		}
	}
}

// WithPrecedence enables or disables precedence exclusion. Enabled by default.
func WithPrecedence(enabled bool) Option {
	return func(e *Engine) { e.precedence = enabled }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		logger:     zap.NewNop(),
		clock:      time.Now,
		precedence: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WarehouseContext is what the engine knows about the warehouse under
// analysis. A nil Topology is allowed; rules that need it fail.
type WarehouseContext struct {
	WarehouseID       string
	Topology          location.Topology
	ExclusionPatterns []string
}

// =============================================================================
// RESULTS
// =============================================================================

// RuleResult is the outcome of one rule.
type RuleResult struct {
	RuleID     string        `json:"rule_id"`
	RuleName   string        `json:"rule_name,omitempty"`
	RuleType   RuleType      `json:"rule_type"`
	Precedence int           `json:"precedence"`
	Success    bool          `json:"success"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	Anomalies  []Anomaly     `json:"anomalies"`

	// Suppressed counts pallets skipped because an earlier rule flagged them.
	Suppressed int `json:"suppressed"`
}

func (r *RuleResult) fail(err error) {
	r.Success = false
	r.Err = err
	r.Error = err.Error()
	r.Anomalies = []Anomaly{}
}

// Analysis is the outcome of one Evaluate call.
type Analysis struct {
	WarehouseID   string        `json:"warehouse_id"`
	EvaluatedAt   time.Time     `json:"evaluated_at"`
	Duration      time.Duration `json:"duration"`
	InventoryRows int           `json:"inventory_rows"`
	ExcludedRows  int           `json:"excluded_rows"`
	Results       []RuleResult  `json:"results"`
	Summary       Summary       `json:"summary"`
}

type Summary struct {
	TotalAnomalies int              `json:"total_anomalies"`
	RulesEvaluated int              `json:"rules_evaluated"`
	RulesFailed    int              `json:"rules_failed"`
	ByRuleType     map[RuleType]int `json:"by_rule_type"`
	ByPriority     map[Priority]int `json:"by_priority"`
	Failures       []RuleFailure    `json:"failures,omitempty"`
}

type RuleFailure struct {
	RuleID   string   `json:"rule_id"`
	RuleType RuleType `json:"rule_type"`
	Reason   string   `json:"reason"`
}

// Anomalies returns every anomaly of every successful rule, in evaluation
// order.
func (a *Analysis) Anomalies() []Anomaly {
	var out []Anomaly
	for _, r := range a.Results {
		out = append(out, r.Anomalies...)
	}
	return out
}

// Result returns the result for ruleID.
func (a *Analysis) Result(ruleID string) (RuleResult, bool) {
	for _, r := range a.Results {
		if r.RuleID == ruleID {
			return r, true
		}
	}
	return RuleResult{}, false
}

// =============================================================================
// EVALUATE
// =============================================================================

// Evaluate runs every enabled rule against inventory.
func (e *Engine) Evaluate(inventory []InventoryRecord, wc WarehouseContext, rules []RuleConfig) *Analysis {
	started := time.Now()
	now := e.clock()
	log := e.logger.With(zap.String("warehouse_id", wc.WarehouseID))

	pm := NewPrecedenceManager(e.precedence)
	pm.Reset()
	res := newResolver(wc.Topology)

	scope, err := NewScopeFilter(wc.ExclusionPatterns)
	if err != nil {
		log.Warn("ignoring invalid exclusion patterns", zap.Error(err))
	}
	rows, excluded := scope.Apply(inventory)

	analysis := &Analysis{
		WarehouseID:   wc.WarehouseID,
		EvaluatedAt:   now,
		InventoryRows: len(inventory),
		ExcludedRows:  excluded,
	}

	for _, rule := range orderRules(rules) {
		result := e.runRule(rule, rows, now, res, pm)
		if result.Success {
			pm.Register(rule, result.Anomalies)
			log.Debug("rule evaluated",
				zap.String("rule_id", rule.ID),
				zap.String("rule_type", string(rule.Type)),
				zap.Int("anomalies", len(result.Anomalies)),
				zap.Int("suppressed", result.Suppressed),
				zap.Duration("duration", result.Duration))
		} else {
			log.Warn("rule failed",
				zap.String("rule_id", rule.ID),
				zap.String("rule_type", string(rule.Type)),
				zap.Error(result.Err))
		}
		analysis.Results = append(analysis.Results, result)
	}

	analysis.Summary = summarize(analysis.Results)
	analysis.Duration = time.Since(started)

	log.Info("analysis complete",
		zap.Int("rows", len(rows)),
		zap.Int("excluded_rows", excluded),
		zap.Int("rules", analysis.Summary.RulesEvaluated),
		zap.Int("failed", analysis.Summary.RulesFailed),
		zap.Int("anomalies", analysis.Summary.TotalAnomalies),
		zap.Duration("duration", analysis.Duration))
	return analysis
}

func (e *Engine) runRule(rule RuleConfig, rows []InventoryRecord, now time.Time, res *resolver, pm *PrecedenceManager) (result RuleResult) {
	started := time.Now()
	result = RuleResult{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		RuleType:   rule.Type,
		Precedence: rule.Precedence,
	}
	defer func() {
		if r := recover(); r != nil {
			result.fail(&RuleError{RuleID: rule.ID, RuleType: rule.Type, Err: fmt.Errorf("%w: %v", ErrEvaluatorPanic, r)})
		}
		result.Duration = time.Since(started)
	}()

	ev, err := NewEvaluator(rule)
	if err != nil {
		result.fail(&RuleError{RuleID: rule.ID, RuleType: rule.Type, Err: err})
		return result
	}

	rc := newRuleContext(rule, now, res, pm)
	anomalies, err := ev.Evaluate(rc, rows)
	result.Suppressed = rc.Suppressed()
	if err != nil {
		result.fail(&RuleError{RuleID: rule.ID, RuleType: rule.Type, Err: err})
		return result
	}

	if anomalies == nil {
		anomalies = []Anomaly{}
	}
	result.Success = true
	result.Anomalies = anomalies
	return result
}

// orderRules returns the enabled rules sorted by precedence, then id.
func orderRules(rules []RuleConfig) []RuleConfig {
	ordered := make([]RuleConfig, 0, len(rules))
	for _, r := range rules {
		if !r.Disabled {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Precedence != ordered[j].Precedence {
			return ordered[i].Precedence < ordered[j].Precedence
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

func summarize(results []RuleResult) Summary {
	s := Summary{
		RulesEvaluated: len(results),
		ByRuleType:     make(map[RuleType]int),
		ByPriority:     make(map[Priority]int),
	}
	for _, r := range results {
		if !r.Success {
			s.RulesFailed++
			s.Failures = append(s.Failures, RuleFailure{RuleID: r.RuleID, RuleType: r.RuleType, Reason: r.Error})
			continue
		}
		s.TotalAnomalies += len(r.Anomalies)
		for _, a := range r.Anomalies {
			s.ByRuleType[a.Type]++
			s.ByPriority[a.Priority]++
		}
	}
	return s
}
