/*
conditions.go - Typed rule conditions

PURPOSE:
  Each rule type has one condition struct. Condition bags from rule files
  or the database are parsed into these structs once, when rules are
  loaded (see factory/rules.go), so evaluators never look up keys by name.

DEFAULTS:
  DefaultConditions returns the defaulted struct for a rule type. A
  RuleConfig with nil Conditions runs with these defaults.

SEE ALSO:
  - evaluator.go: NewEvaluator checks Conditions against the rule type
  - factory/rules.go: condition bag parsing
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warewise/rule-engine/location"
)

// Conditions is implemented by every typed condition struct.
type Conditions interface {
	RuleType() RuleType
	Validate() error
}

const (
	DefaultStagnantHours         = 6.0
	DefaultAisleStagnantHours    = 4.0
	DefaultAislePattern          = "AISLE*"
	DefaultMaxLocationLength     = 30
	defaultCompletionThresholdPc = 80
)

// DefaultProductPatterns and DefaultProhibitedZones drive the temperature
// rule when no explicit lists are configured.
var (
	DefaultProductPatterns = []string{"*FROZEN*", "*REFRIGERATED*"}
	DefaultProhibitedZones = []string{"GENERAL", "AMBIENT"}
)

// DefaultConditions returns the default conditions for t.
func DefaultConditions(t RuleType) (Conditions, error) {
	switch t {
	case RuleStagnantPallets:
		return StagnantConditions{
			LocationTypes:  []location.Type{location.TypeReceiving},
			ThresholdHours: DefaultStagnantHours,
		}, nil
	case RuleUncoordinatedLots:
		return UncoordinatedLotsConditions{
			CompletionThreshold: decimal.New(defaultCompletionThresholdPc, -2),
			LocationTypes:       []location.Type{location.TypeReceiving},
		}, nil
	case RuleOvercapacity:
		return OvercapacityConditions{UseLocationDifferentiation: true}, nil
	case RuleInvalidLocation:
		return InvalidLocationConditions{MaxLength: DefaultMaxLocationLength}, nil
	case RuleLocationSpecificStagnant:
		return LocationSpecificStagnantConditions{
			LocationPattern: DefaultAislePattern,
			ThresholdHours:  DefaultAisleStagnantHours,
		}, nil
	case RuleTemperatureZoneMismatch:
		return TemperatureZoneConditions{
			ProductPatterns: append([]string(nil), DefaultProductPatterns...),
			ProhibitedZones: append([]string(nil), DefaultProhibitedZones...),
		}, nil
	case RuleDataIntegrity:
		return DataIntegrityConditions{
			CheckDuplicates:          true,
			CheckImpossibleLocations: true,
			MaxLocationLength:        DefaultMaxLocationLength,
		}, nil
	case RuleLocationMappingError:
		return LocationMappingConditions{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRuleType, t)
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func validateTypes(types []location.Type) error {
	if len(types) == 0 {
		return fmt.Errorf("location_types must not be empty")
	}
	for _, t := range types {
		if !t.IsKnown() {
			return fmt.Errorf("unknown location type %q", t)
		}
	}
	return nil
}

func containsType(types []location.Type, t location.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// =============================================================================
// STAGNANT PALLETS
// =============================================================================

type StagnantConditions struct {
	LocationTypes  []location.Type
	ThresholdHours float64
}

func (StagnantConditions) RuleType() RuleType { return RuleStagnantPallets }

func (c StagnantConditions) Validate() error {
	if c.ThresholdHours <= 0 {
		return fmt.Errorf("time_threshold_hours must be positive, got %v", c.ThresholdHours)
	}
	return validateTypes(c.LocationTypes)
}

func (c StagnantConditions) Threshold() time.Duration { return hoursToDuration(c.ThresholdHours) }

// =============================================================================
// UNCOORDINATED LOTS
// =============================================================================

type UncoordinatedLotsConditions struct {
	// CompletionThreshold is a fraction in (0, 1].
	CompletionThreshold decimal.Decimal
	LocationTypes       []location.Type
}

func (UncoordinatedLotsConditions) RuleType() RuleType { return RuleUncoordinatedLots }

func (c UncoordinatedLotsConditions) Validate() error {
	if !c.CompletionThreshold.IsPositive() || c.CompletionThreshold.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("completion_threshold must be in (0, 1], got %s", c.CompletionThreshold)
	}
	return validateTypes(c.LocationTypes)
}

// =============================================================================
// OVERCAPACITY
// =============================================================================

type OvercapacityConditions struct {
	// UseLocationDifferentiation alerts per pallet in storage slots and
	// once per location in special areas. When false every pallet at an
	// over-capacity location is flagged.
	UseLocationDifferentiation bool
}

func (OvercapacityConditions) RuleType() RuleType { return RuleOvercapacity }
func (OvercapacityConditions) Validate() error    { return nil }

// =============================================================================
// INVALID LOCATION
// =============================================================================

type InvalidLocationConditions struct {
	// MaxLength bounds codes in the pattern fallback used when no
	// topology is available. Zero means DefaultMaxLocationLength.
	MaxLength int
}

func (InvalidLocationConditions) RuleType() RuleType { return RuleInvalidLocation }

func (c InvalidLocationConditions) Validate() error {
	if c.MaxLength < 0 {
		return fmt.Errorf("max_location_length must not be negative")
	}
	return nil
}

// =============================================================================
// LOCATION-SPECIFIC STAGNANT
// =============================================================================

type LocationSpecificStagnantConditions struct {
	LocationPattern string
	ThresholdHours  float64
}

func (LocationSpecificStagnantConditions) RuleType() RuleType { return RuleLocationSpecificStagnant }

func (c LocationSpecificStagnantConditions) Validate() error {
	if c.ThresholdHours <= 0 {
		return fmt.Errorf("time_threshold_hours must be positive, got %v", c.ThresholdHours)
	}
	if _, err := location.CompileGlob(c.LocationPattern); err != nil {
		return fmt.Errorf("location_pattern: %w", err)
	}
	return nil
}

func (c LocationSpecificStagnantConditions) Threshold() time.Duration {
	return hoursToDuration(c.ThresholdHours)
}

// =============================================================================
// TEMPERATURE ZONE MISMATCH
// =============================================================================

type TemperatureZoneConditions struct {
	ProductPatterns []string
	ProhibitedZones []string
}

func (TemperatureZoneConditions) RuleType() RuleType { return RuleTemperatureZoneMismatch }

func (c TemperatureZoneConditions) Validate() error {
	if len(c.ProductPatterns) == 0 {
		return fmt.Errorf("product_patterns must not be empty")
	}
	if len(c.ProhibitedZones) == 0 {
		return fmt.Errorf("prohibited_zones must not be empty")
	}
	if _, err := location.CompileGlobs(c.ProductPatterns); err != nil {
		return fmt.Errorf("product_patterns: %w", err)
	}
	return nil
}

// =============================================================================
// DATA INTEGRITY
// =============================================================================

type DataIntegrityConditions struct {
	CheckDuplicates          bool
	CheckImpossibleLocations bool
	MaxLocationLength        int
}

func (DataIntegrityConditions) RuleType() RuleType { return RuleDataIntegrity }

func (c DataIntegrityConditions) Validate() error {
	if c.MaxLocationLength < 0 {
		return fmt.Errorf("max_location_length must not be negative")
	}
	if !c.CheckDuplicates && !c.CheckImpossibleLocations {
		return fmt.Errorf("at least one of check_duplicates, check_impossible_locations must be enabled")
	}
	return nil
}

// =============================================================================
// LOCATION MAPPING ERROR
// =============================================================================

// LocationMappingConditions has no settings; the rule compares declared and
// inferred location types.
type LocationMappingConditions struct{}

func (LocationMappingConditions) RuleType() RuleType { return RuleLocationMappingError }
func (LocationMappingConditions) Validate() error    { return nil }

// Compile-time interface checks
var (
	_ Conditions = StagnantConditions{}
	_ Conditions = UncoordinatedLotsConditions{}
	_ Conditions = OvercapacityConditions{}
	_ Conditions = InvalidLocationConditions{}
	_ Conditions = LocationSpecificStagnantConditions{}
	_ Conditions = TemperatureZoneConditions{}
	_ Conditions = DataIntegrityConditions{}
	_ Conditions = LocationMappingConditions{}
)
