/*
Package engine evaluates warehouse inventory against a set of anomaly rules.

PURPOSE:
  An analysis run takes a materialized inventory snapshot, a warehouse
  topology lookup and a list of rule configurations, and returns the
  anomalies each rule found together with per-rule execution metadata.
  The engine owns no persistence and performs no I/O of its own.

KEY CONCEPTS IN THIS FILE (types.go):
  - InventoryRecord: one row of the uploaded snapshot (read-only)
  - RuleType: closed set of rule kinds, one evaluator each
  - Priority: alert severity carried by every anomaly
  - RuleConfig: rule identity, precedence and typed conditions
  - Anomaly: one finding, always about a pallet present in the input

DESIGN PRINCIPLES:
  1. Rules run sequentially in precedence order (lower first)
  2. Every run owns its own PrecedenceManager; nothing is process-wide
  3. Conditions are parsed into typed structs once, at load time
  4. Failures degrade a single rule, never the whole run

USAGE:
  eng := engine.New(engine.WithLogger(logger))
  analysis := eng.Evaluate(inventory, engine.WarehouseContext{
      WarehouseID: "WH1",
      Topology:    topology,
  }, rules)

SEE ALSO:
  - conditions.go: typed condition structs per rule type
  - engine.go: the orchestrator
  - precedence.go: exclusion registry
*/
package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warewise/rule-engine/location"
)

// =============================================================================
// INVENTORY
// =============================================================================

// InventoryRecord is one pallet row of an inventory snapshot.
type InventoryRecord struct {
	PalletID string
	Location string

	// LocationType is the type declared by the upload, if any. It is only
	// consulted for locations the topology does not know and by the
	// location-mapping rule.
	LocationType location.Type

	// CreatedAt is the creation/receipt time. The zero value means the
	// timestamp was missing or could not be parsed.
	CreatedAt time.Time

	ReceiptNumber string
	Description   string
	Quantity      decimal.NullDecimal
}

// HasTimestamp reports whether the row carries a usable creation time.
func (r InventoryRecord) HasTimestamp() bool {
	return !r.CreatedAt.IsZero()
}

// =============================================================================
// RULE TYPES
// =============================================================================

type RuleType string

const (
	RuleStagnantPallets          RuleType = "STAGNANT_PALLETS"
	RuleUncoordinatedLots        RuleType = "UNCOORDINATED_LOTS"
	RuleOvercapacity             RuleType = "OVERCAPACITY"
	RuleInvalidLocation          RuleType = "INVALID_LOCATION"
	RuleLocationSpecificStagnant RuleType = "LOCATION_SPECIFIC_STAGNANT"
	RuleTemperatureZoneMismatch  RuleType = "TEMPERATURE_ZONE_MISMATCH"
	RuleDataIntegrity            RuleType = "DATA_INTEGRITY"
	RuleLocationMappingError     RuleType = "LOCATION_MAPPING_ERROR"
)

// RuleTypes lists every rule type the engine can evaluate.
func RuleTypes() []RuleType {
	return []RuleType{
		RuleStagnantPallets,
		RuleUncoordinatedLots,
		RuleOvercapacity,
		RuleInvalidLocation,
		RuleLocationSpecificStagnant,
		RuleTemperatureZoneMismatch,
		RuleDataIntegrity,
		RuleLocationMappingError,
	}
}

// ParseRuleType normalizes s and reports whether it names a known rule type.
func ParseRuleType(s string) (RuleType, bool) {
	t := RuleType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

func (t RuleType) Valid() bool {
	for _, known := range RuleTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// =============================================================================
// PRIORITY
// =============================================================================

type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityVeryHigh Priority = "VERY_HIGH"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityWarning  Priority = "WARNING"
	PriorityInfo     Priority = "INFO"
)

// DefaultPriority is used for rules configured without a priority.
const DefaultPriority = PriorityMedium

// ParsePriority normalizes s. Unknown labels are rejected.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")))
	switch p {
	case PriorityCritical, PriorityVeryHigh, PriorityHigh, PriorityMedium,
		PriorityLow, PriorityWarning, PriorityInfo:
		return p, true
	}
	return "", false
}

// =============================================================================
// RULE CONFIG
// =============================================================================

// RuleConfig is one configured rule. It is supplied by the caller and only
// read by the engine.
type RuleConfig struct {
	ID       string
	Name     string
	Type     RuleType
	Priority Priority

	// Precedence orders evaluation: lower runs first and can suppress the
	// findings of later rules for the same pallet.
	Precedence int

	Disabled bool

	// Conditions holds the typed condition struct for Type. Nil means the
	// defaults for the rule type.
	Conditions Conditions

	// ExcludeIfFlaggedBy lists rule types whose earlier findings suppress
	// this rule for the same pallet. Nil selects the built-in defaults; an
	// empty non-nil slice disables exclusion for this rule.
	ExcludeIfFlaggedBy []RuleType

	// LoadErr records a configuration problem found while loading the rule.
	// A rule with a LoadErr is reported as failed without running.
	LoadErr error
}

func (r RuleConfig) priority() Priority {
	if r.Priority == "" {
		return DefaultPriority
	}
	return r.Priority
}

// =============================================================================
// ANOMALY
// =============================================================================

// Anomaly is one finding. PalletID and Location always come from an input
// row; Canonical is the canonical spelling of Location.
type Anomaly struct {
	PalletID    string   `json:"pallet_id"`
	Location    string   `json:"location"`
	Canonical   string   `json:"canonical_location"`
	Type        RuleType `json:"anomaly_type"`
	Priority    Priority `json:"priority"`
	Description string   `json:"description"`
	RuleID      string   `json:"rule_id"`
	Details     Details  `json:"details"`
}

// Details carries rule-specific diagnostics. Only the fields relevant to
// the anomaly type are set.
type Details struct {
	Reason       string        `json:"reason,omitempty"`
	LocationType location.Type `json:"location_type,omitempty"`
	Category     Category      `json:"category,omitempty"`
	Zone         string        `json:"zone,omitempty"`

	// Stagnant rules
	HoursStagnant  float64 `json:"hours_stagnant,omitempty"`
	ThresholdHours float64 `json:"threshold_hours,omitempty"`
	Pattern        string  `json:"pattern,omitempty"`

	// Uncoordinated lots
	LotID           string  `json:"lot_id,omitempty"`
	LotSize         int     `json:"lot_size,omitempty"`
	CompletionRatio float64 `json:"completion_ratio,omitempty"`

	// Overcapacity
	Capacity           int     `json:"capacity,omitempty"`
	Occupancy          int     `json:"occupancy,omitempty"`
	CapacityPercentage float64 `json:"capacity_percentage,omitempty"`
	AffectedPallets    int     `json:"affected_pallets,omitempty"`

	// Mapping errors
	DeclaredType location.Type `json:"declared_type,omitempty"`
	InferredType location.Type `json:"inferred_type,omitempty"`

	// Data integrity
	Occurrences int      `json:"occurrences,omitempty"`
	Locations   []string `json:"locations,omitempty"`
}
