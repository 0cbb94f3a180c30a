/*
presets.go - Default rule catalogue

PURPOSE:
  The rule set a new warehouse starts with. Precedence puts the data
  quality rules first so their findings can suppress redundant alerts
  from the capacity and zone rules.

AVAILABLE RULES (precedence order):
  1 scanner-errors        DATA_INTEGRITY              duplicates, impossible codes
  2 invalid-locations     INVALID_LOCATION            not in the warehouse
  3 forgotten-pallets     STAGNANT_PALLETS            >6h in receiving/transitional
  4 incomplete-lots       UNCOORDINATED_LOTS          stragglers of 80%-done lots
  5 aisle-stuck           LOCATION_SPECIFIC_STAGNANT  >4h in AISLE*
  6 overcapacity          OVERCAPACITY                differentiated by tier
  7 cold-chain            TEMPERATURE_ZONE_MISMATCH   frozen/refrigerated in GENERAL/AMBIENT
  8 location-type-mismatch LOCATION_MAPPING_ERROR     declared vs inferred type

EXAMPLE:
  rules := factory.DefaultRuleSet()
  rules[2].Conditions = engine.StagnantConditions{...} // customize
*/
package factory

import (
	"github.com/shopspring/decimal"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/location"
)

// DefaultRuleSet returns a fresh copy of the default catalogue.
func DefaultRuleSet() []engine.RuleConfig {
	return []engine.RuleConfig{
		{
			ID:         "scanner-errors",
			Name:       "Scanner Error Detection",
			Type:       engine.RuleDataIntegrity,
			Priority:   engine.PriorityMedium,
			Precedence: 1,
			Conditions: engine.DataIntegrityConditions{
				CheckDuplicates:          true,
				CheckImpossibleLocations: true,
				MaxLocationLength:        engine.DefaultMaxLocationLength,
			},
		},
		{
			ID:         "invalid-locations",
			Name:       "Invalid Locations Alert",
			Type:       engine.RuleInvalidLocation,
			Priority:   engine.PriorityHigh,
			Precedence: 2,
			Conditions: engine.InvalidLocationConditions{MaxLength: engine.DefaultMaxLocationLength},
		},
		{
			ID:         "forgotten-pallets",
			Name:       "Forgotten Pallets Alert",
			Type:       engine.RuleStagnantPallets,
			Priority:   engine.PriorityVeryHigh,
			Precedence: 3,
			Conditions: engine.StagnantConditions{
				LocationTypes:  []location.Type{location.TypeReceiving, location.TypeTransitional},
				ThresholdHours: engine.DefaultStagnantHours,
			},
		},
		{
			ID:         "incomplete-lots",
			Name:       "Incomplete Lots Alert",
			Type:       engine.RuleUncoordinatedLots,
			Priority:   engine.PriorityVeryHigh,
			Precedence: 4,
			Conditions: engine.UncoordinatedLotsConditions{
				CompletionThreshold: decimal.RequireFromString("0.8"),
				LocationTypes:       []location.Type{location.TypeReceiving},
			},
		},
		{
			ID:         "aisle-stuck",
			Name:       "AISLE Stuck Pallets",
			Type:       engine.RuleLocationSpecificStagnant,
			Priority:   engine.PriorityHigh,
			Precedence: 5,
			Conditions: engine.LocationSpecificStagnantConditions{
				LocationPattern: engine.DefaultAislePattern,
				ThresholdHours:  engine.DefaultAisleStagnantHours,
			},
		},
		{
			ID:         "overcapacity",
			Name:       "Overcapacity Alert",
			Type:       engine.RuleOvercapacity,
			Priority:   engine.PriorityHigh,
			Precedence: 6,
			Conditions: engine.OvercapacityConditions{UseLocationDifferentiation: true},
		},
		{
			ID:         "cold-chain",
			Name:       "Cold Chain Violations",
			Type:       engine.RuleTemperatureZoneMismatch,
			Priority:   engine.PriorityVeryHigh,
			Precedence: 7,
			Conditions: engine.TemperatureZoneConditions{
				ProductPatterns: append([]string(nil), engine.DefaultProductPatterns...),
				ProhibitedZones: append([]string(nil), engine.DefaultProhibitedZones...),
			},
		},
		{
			ID:         "location-type-mismatch",
			Name:       "Location Type Mismatches",
			Type:       engine.RuleLocationMappingError,
			Priority:   engine.PriorityHigh,
			Precedence: 8,
			Conditions: engine.LocationMappingConditions{},
		},
	}
}
