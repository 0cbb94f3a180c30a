/*
precedence.go - Rule precedence and pallet exclusion

PURPOSE:
  Prevents the same pallet from being flagged redundantly. After each rule
  succeeds, the pallets it flagged are registered with the rule's
  precedence level. A later rule with a higher level (lower priority) asks
  ShouldExclude before emitting a finding for a pallet.

EXCLUSION DECISION:
  A pallet is excluded for rule R when the registry holds a record with
  precedence strictly lower than R's AND the record's rule type is in
  R.ExcludeIfFlaggedBy, or, when R declares no list, in the built-in
  default list for R's type.

  Suppression is one hop only. A pallet skipped by rule B is not
  registered for B, so it cannot in turn suppress rule C on B's behalf.

LIFETIME:
  One PrecedenceManager per analysis run. The orchestrator resets it at
  the start of every Evaluate call; it is never shared between runs.

SEE ALSO:
  - engine.go: registers anomalies after each successful rule
  - evaluator.go: RuleContext.Skip wraps ShouldExclude
*/
package engine

import "sync"

// ExclusionRecord notes that a rule flagged a pallet.
type ExclusionRecord struct {
	RuleID     string
	RuleType   RuleType
	Precedence int
	Reason     string
}

// defaultExclusions maps a rule type to the rule types that suppress it
// when the rule declares no explicit list.
var defaultExclusions = map[RuleType][]RuleType{
	RuleOvercapacity:             {RuleInvalidLocation, RuleDataIntegrity},
	RuleLocationMappingError:     {RuleInvalidLocation, RuleDataIntegrity},
	RuleTemperatureZoneMismatch:  {RuleInvalidLocation, RuleDataIntegrity},
	RuleLocationSpecificStagnant: {RuleStagnantPallets},
}

// DefaultExclusions returns the built-in suppressing rule types for t.
func DefaultExclusions(t RuleType) []RuleType {
	return append([]RuleType(nil), defaultExclusions[t]...)
}

// PrecedenceManager holds the exclusion registry for one run.
type PrecedenceManager struct {
	enabled bool

	mu       sync.RWMutex
	registry map[string][]ExclusionRecord
}

// NewPrecedenceManager creates a manager. When enabled is false the
// manager is a pass-through: ShouldExclude always returns false.
func NewPrecedenceManager(enabled bool) *PrecedenceManager {
	return &PrecedenceManager{
		enabled:  enabled,
		registry: make(map[string][]ExclusionRecord),
	}
}

func (p *PrecedenceManager) Enabled() bool { return p.enabled }

// Reset clears the registry.
func (p *PrecedenceManager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry = make(map[string][]ExclusionRecord)
}

// Register records every pallet in anomalies as flagged by rule.
func (p *PrecedenceManager) Register(rule RuleConfig, anomalies []Anomaly) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, a := range anomalies {
		if a.PalletID == "" || p.hasRecordLocked(a.PalletID, rule.ID) {
			continue
		}
		p.registry[a.PalletID] = append(p.registry[a.PalletID], ExclusionRecord{
			RuleID:     rule.ID,
			RuleType:   rule.Type,
			Precedence: rule.Precedence,
			Reason:     string(a.Type),
		})
	}
}

func (p *PrecedenceManager) hasRecordLocked(palletID, ruleID string) bool {
	for _, rec := range p.registry[palletID] {
		if rec.RuleID == ruleID {
			return true
		}
	}
	return false
}

// ShouldExclude reports whether rule must skip palletID.
func (p *PrecedenceManager) ShouldExclude(palletID string, rule RuleConfig) bool {
	if !p.enabled {
		return false
	}

	suppressors := rule.ExcludeIfFlaggedBy
	if suppressors == nil {
		suppressors = defaultExclusions[rule.Type]
	}
	if len(suppressors) == 0 {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, rec := range p.registry[palletID] {
		if rec.Precedence >= rule.Precedence {
			continue
		}
		for _, t := range suppressors {
			if rec.RuleType == t {
				return true
			}
		}
	}
	return false
}

// Records returns the exclusion records held for palletID.
func (p *PrecedenceManager) Records(palletID string) []ExclusionRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]ExclusionRecord(nil), p.registry[palletID]...)
}

// FlaggedPallets returns how many distinct pallets are in the registry.
func (p *PrecedenceManager) FlaggedPallets() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.registry)
}
