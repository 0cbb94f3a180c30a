/*
evaluator.go - Evaluator interface and per-rule context

PURPOSE:
  Every rule type maps to exactly one evaluator implementation. The
  orchestrator resolves the evaluator with NewEvaluator, a closed switch
  over the typed conditions, and calls Evaluate with a RuleContext.

RULE CONTEXT:
  RuleContext gives an evaluator what it needs for one rule of one run:
  the rule, the run's clock reading, cached topology lookups and the
  cooperative exclusion check (Skip). Evaluators call Skip before emitting
  a finding for a pallet.

FAILURE CONTRACT:
  Malformed rows are skipped without a finding. A systemic problem (the
  topology is missing or its lookup fails) is returned as an error and the
  orchestrator records the rule as failed with zero anomalies.

SEE ALSO:
  - engine.go: orchestrator
  - one file per evaluator (stagnant.go, lots.go, overcapacity.go, ...)
*/
package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/warewise/rule-engine/location"
)

// Evaluator inspects an inventory and returns the anomalies it finds.
type Evaluator interface {
	Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error)
}

// NewEvaluator resolves the evaluator for rule. Nil conditions select the
// defaults for the rule type.
func NewEvaluator(rule RuleConfig) (Evaluator, error) {
	if rule.LoadErr != nil {
		if IsConfigError(rule.LoadErr) {
			return nil, rule.LoadErr
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidConditions, rule.LoadErr)
	}
	if !rule.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, rule.Type)
	}

	cond := rule.Conditions
	if cond == nil {
		var err error
		if cond, err = DefaultConditions(rule.Type); err != nil {
			return nil, err
		}
	}
	if cond.RuleType() != rule.Type {
		return nil, fmt.Errorf("%w: rule is %s, conditions are %s", ErrConditionsMismatch, rule.Type, cond.RuleType())
	}
	if err := cond.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}

	switch c := cond.(type) {
	case StagnantConditions:
		return &stagnantEvaluator{cond: c}, nil
	case UncoordinatedLotsConditions:
		return &lotsEvaluator{cond: c}, nil
	case OvercapacityConditions:
		return &overcapacityEvaluator{cond: c}, nil
	case InvalidLocationConditions:
		return &invalidLocationEvaluator{cond: c}, nil
	case LocationSpecificStagnantConditions:
		return newLocationStagnantEvaluator(c)
	case TemperatureZoneConditions:
		return newTemperatureEvaluator(c)
	case DataIntegrityConditions:
		return &integrityEvaluator{cond: c}, nil
	case LocationMappingConditions:
		return &mappingEvaluator{}, nil
	}
	return nil, fmt.Errorf("%w: unsupported conditions %T", ErrConditionsMismatch, cond)
}

// =============================================================================
// TOPOLOGY RESOLVER - per-run lookup cache
// =============================================================================

type lookupResult struct {
	desc location.Descriptor
	err  error
}

// resolver caches topology answers by canonical code so that every lookup
// of a code returns the same answer for the whole run.
type resolver struct {
	topology  location.Topology
	overrides location.OverrideSource

	lookups    map[string]lookupResult
	overridden map[string]*location.Descriptor
}

func newResolver(t location.Topology) *resolver {
	r := &resolver{
		topology:   t,
		lookups:    make(map[string]lookupResult),
		overridden: make(map[string]*location.Descriptor),
	}
	if o, ok := t.(location.OverrideSource); ok {
		r.overrides = o
	}
	return r
}

func (r *resolver) available() bool { return r.topology != nil }

func (r *resolver) lookup(code string) (location.Descriptor, error) {
	if r.topology == nil {
		return location.Descriptor{}, ErrTopologyUnavailable
	}
	canonical := location.ToCanonical(code)
	if hit, ok := r.lookups[canonical]; ok {
		return hit.desc, hit.err
	}

	d, err := r.topology.Lookup(canonical)
	if err != nil && !errors.Is(err, location.ErrUnknownLocation) {
		err = fmt.Errorf("%w: lookup %q: %v", ErrTopologyUnavailable, canonical, err)
	}
	r.lookups[canonical] = lookupResult{desc: d, err: err}
	return d, err
}

func (r *resolver) override(code string) (location.Descriptor, bool) {
	if r.overrides == nil {
		return location.Descriptor{}, false
	}
	canonical := location.ToCanonical(code)
	if hit, ok := r.overridden[canonical]; ok {
		if hit == nil {
			return location.Descriptor{}, false
		}
		return *hit, true
	}

	d, ok := r.overrides.Override(canonical)
	if !ok {
		r.overridden[canonical] = nil
		return location.Descriptor{}, false
	}
	r.overridden[canonical] = &d
	return d, true
}

// =============================================================================
// RULE CONTEXT
// =============================================================================

// RuleContext is the per-rule view of an analysis run.
type RuleContext struct {
	Rule RuleConfig
	Now  time.Time

	resolver   *resolver
	precedence *PrecedenceManager
	suppressed map[string]struct{}
}

// NewRuleContext builds a standalone context, mainly for running a single
// evaluator outside the orchestrator. A nil precedence manager disables
// exclusion.
func NewRuleContext(rule RuleConfig, now time.Time, topology location.Topology, pm *PrecedenceManager) *RuleContext {
	return newRuleContext(rule, now, newResolver(topology), pm)
}

func newRuleContext(rule RuleConfig, now time.Time, r *resolver, pm *PrecedenceManager) *RuleContext {
	if pm == nil {
		pm = NewPrecedenceManager(false)
	}
	return &RuleContext{
		Rule:       rule,
		Now:        now,
		resolver:   r,
		precedence: pm,
		suppressed: make(map[string]struct{}),
	}
}

// TopologyAvailable reports whether the run has a topology at all.
func (rc *RuleContext) TopologyAvailable() bool { return rc.resolver.available() }

// Lookup resolves code against the topology. Unknown codes return an error
// wrapping location.ErrUnknownLocation; any other error is systemic.
func (rc *RuleContext) Lookup(code string) (location.Descriptor, error) {
	return rc.resolver.lookup(code)
}

// Override returns the hand-registered location for code, if any.
func (rc *RuleContext) Override(code string) (location.Descriptor, bool) {
	return rc.resolver.override(code)
}

// Skip reports whether an earlier rule already flagged palletID in a way
// that suppresses this rule.
func (rc *RuleContext) Skip(palletID string) bool {
	if !rc.precedence.ShouldExclude(palletID, rc.Rule) {
		return false
	}
	rc.suppressed[palletID] = struct{}{}
	return true
}

// Suppressed returns how many distinct pallets Skip suppressed.
func (rc *RuleContext) Suppressed() int { return len(rc.suppressed) }

// locationType resolves the type of rec's location from the topology,
// falling back to the row's declared type for locations the topology does
// not know. The error is non-nil only for systemic failures.
func (rc *RuleContext) locationType(rec InventoryRecord) (location.Type, error) {
	d, err := rc.Lookup(rec.Location)
	switch {
	case err == nil:
		return d.Type, nil
	case errors.Is(err, location.ErrUnknownLocation):
		if rec.LocationType.IsKnown() {
			return rec.LocationType, nil
		}
		return location.TypeUnknown, nil
	default:
		return "", err
	}
}

func (rc *RuleContext) anomaly(rec InventoryRecord, description string, details Details) Anomaly {
	return Anomaly{
		PalletID:    rec.PalletID,
		Location:    rec.Location,
		Canonical:   location.ToCanonical(rec.Location),
		Type:        rc.Rule.Type,
		Priority:    rc.Rule.priority(),
		Description: description,
		RuleID:      rc.Rule.ID,
		Details:     details,
	}
}

func (rc *RuleContext) age(rec InventoryRecord) time.Duration {
	return rc.Now.Sub(rec.CreatedAt)
}

func roundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}
