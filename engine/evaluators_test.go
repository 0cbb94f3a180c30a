package engine_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/location"
)

// =============================================================================
// STAGNANT PALLETS
// =============================================================================

func TestStagnant_ThresholdIsStrict(t *testing.T) {
	// GIVEN: A 10h threshold on RECEIVING
	// WHEN: One pallet is exactly 10h old, one is 10h and 1s old
	// THEN: Only the second is flagged

	r := rule("stagnant", engine.RuleStagnantPallets, 1, engine.StagnantConditions{
		LocationTypes:  []location.Type{location.TypeReceiving},
		ThresholdHours: 10,
	})

	anomalies, err := evaluate(r, testTopology(),
		row("P-AT", "RECV-01", 10*time.Hour),
		row("P-PAST", "RECV-1", 10*time.Hour+time.Second),
		row("P-STORED", "01-01-001A", 48*time.Hour),
	)

	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, "P-PAST", a.PalletID)
	assert.Equal(t, "RECV-1", a.Location, "anomaly keeps the location as uploaded")
	assert.Equal(t, "RECV-01", a.Canonical)
	assert.Equal(t, engine.RuleStagnantPallets, a.Type)
	assert.Equal(t, engine.PriorityHigh, a.Priority)
	assert.Equal(t, location.TypeReceiving, a.Details.LocationType)
	assert.InDelta(t, 10.0, a.Details.HoursStagnant, 0.01)
}

func TestStagnant_SkipsRowsWithoutTimestamp(t *testing.T) {
	r := rule("stagnant", engine.RuleStagnantPallets, 1, nil)

	anomalies, err := evaluate(r, testTopology(),
		engine.InventoryRecord{PalletID: "P-NOTIME", Location: "RECV-01"},
	)

	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestStagnant_UnregisteredLocationUsesDeclaredType(t *testing.T) {
	r := rule("stagnant", engine.RuleStagnantPallets, 1, engine.StagnantConditions{
		LocationTypes:  []location.Type{location.TypeReceiving},
		ThresholdHours: 2,
	})
	rec := row("P-1", "RECV-09", 3*time.Hour)
	rec.LocationType = location.TypeReceiving

	anomalies, err := evaluate(r, testTopology(), rec)

	require.NoError(t, err)
	assert.Equal(t, []string{"P-1"}, palletIDs(anomalies))
}

func TestStagnant_RequiresTopology(t *testing.T) {
	r := rule("stagnant", engine.RuleStagnantPallets, 1, nil)

	_, err := evaluate(r, nil, row("P-1", "RECV-01", 20*time.Hour))

	assert.ErrorIs(t, err, engine.ErrTopologyUnavailable)
}

func TestLocationSpecificStagnant_MatchesPattern(t *testing.T) {
	r := rule("aisle", engine.RuleLocationSpecificStagnant, 1, engine.LocationSpecificStagnantConditions{
		LocationPattern: "AISLE*",
		ThresholdHours:  4,
	})

	anomalies, err := evaluate(r, nil,
		row("P-STUCK", "aisle-1", 5*time.Hour),
		row("P-MOVING", "AISLE-01", 3*time.Hour),
		row("P-RECV", "RECV-01", 10*time.Hour),
	)

	require.NoError(t, err, "pattern rule needs no topology")
	require.Len(t, anomalies, 1)
	assert.Equal(t, "P-STUCK", anomalies[0].PalletID)
	assert.Equal(t, "AISLE*", anomalies[0].Details.Pattern)
}

// =============================================================================
// UNCOORDINATED LOTS
// =============================================================================

func lotInventory(lot string, stored, pending int) []engine.InventoryRecord {
	var rows []engine.InventoryRecord
	for i := 0; i < stored; i++ {
		rows = append(rows, lotRow(fmt.Sprintf("%s-S%d", lot, i), fmt.Sprintf("01-01-%03dA", i+1), lot))
	}
	for i := 0; i < pending; i++ {
		rows = append(rows, lotRow(fmt.Sprintf("%s-P%d", lot, i), "RECV-01", lot))
	}
	return rows
}

func lotsRule() engine.RuleConfig {
	return rule("lots", engine.RuleUncoordinatedLots, 1, engine.UncoordinatedLotsConditions{
		CompletionThreshold: decimal.RequireFromString("0.8"),
		LocationTypes:       []location.Type{location.TypeReceiving},
	})
}

func TestLots_ThresholdIsInclusive(t *testing.T) {
	// GIVEN: A lot of 10 with 8 stored and 2 still in receiving (80%)
	// WHEN: The completion threshold is 0.8
	// THEN: Both stragglers are flagged

	anomalies, err := evaluate(lotsRule(), testTopology(), lotInventory("LOT-A", 8, 2)...)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"LOT-A-P0", "LOT-A-P1"}, palletIDs(anomalies))
	assert.Equal(t, "LOT-A", anomalies[0].Details.LotID)
	assert.Equal(t, 10, anomalies[0].Details.LotSize)
	assert.InDelta(t, 0.8, anomalies[0].Details.CompletionRatio, 1e-9)
}

func TestLots_BelowThresholdNotFlagged(t *testing.T) {
	anomalies, err := evaluate(lotsRule(), testTopology(), lotInventory("LOT-B", 7, 3)...)

	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestLots_SinglePalletLotNeverFlagged(t *testing.T) {
	anomalies, err := evaluate(lotsRule(), testTopology(), lotInventory("LOT-C", 0, 1)...)

	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestLots_IgnoresRowsWithoutLot(t *testing.T) {
	inv := append(lotInventory("LOT-D", 9, 1), row("LOOSE", "RECV-01", time.Hour))

	anomalies, err := evaluate(lotsRule(), testTopology(), inv...)

	require.NoError(t, err)
	assert.Equal(t, []string{"LOT-D-P0"}, palletIDs(anomalies))
}

// =============================================================================
// OVERCAPACITY
// =============================================================================

func overcapacityRule(differentiate bool) engine.RuleConfig {
	return rule("overcap", engine.RuleOvercapacity, 1, engine.OvercapacityConditions{
		UseLocationDifferentiation: differentiate,
	})
}

func stagingCrowd(n int) []engine.InventoryRecord {
	rows := make([]engine.InventoryRecord, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, row(fmt.Sprintf("S-%02d", i+1), "STAGE-01", time.Hour))
	}
	return rows
}

func TestOvercapacity_DifferentiatedStorageIsPerPallet(t *testing.T) {
	anomalies, err := evaluate(overcapacityRule(true), testTopology(),
		row("P-1", "01-01-001A", time.Hour),
		row("P-2", "01A01A", time.Hour),
	)

	require.NoError(t, err)
	require.Len(t, anomalies, 2)
	for _, a := range anomalies {
		assert.Equal(t, engine.PriorityCritical, a.Priority)
		assert.Equal(t, engine.CategoryStorage, a.Details.Category)
		assert.Equal(t, 2, a.Details.Occupancy)
		assert.Equal(t, 1, a.Details.Capacity)
	}
}

func TestOvercapacity_DifferentiatedSpecialIsAggregated(t *testing.T) {
	// GIVEN: 12 pallets in STAGE-01 (capacity 10)
	// WHEN: Differentiation is on
	// THEN: Exactly one WARNING for the location

	anomalies, err := evaluate(overcapacityRule(true), testTopology(), stagingCrowd(12)...)

	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, engine.PriorityWarning, a.Priority)
	assert.Equal(t, engine.CategorySpecial, a.Details.Category)
	assert.Equal(t, 12, a.Details.AffectedPallets)
	assert.Equal(t, 120.0, a.Details.CapacityPercentage)
	assert.Equal(t, "S-01", a.PalletID, "representative pallet is the first one present")
}

func TestOvercapacity_LegacyFlagsEveryPallet(t *testing.T) {
	anomalies, err := evaluate(overcapacityRule(false), testTopology(), stagingCrowd(12)...)

	require.NoError(t, err)
	assert.Len(t, anomalies, 12)
	for _, a := range anomalies {
		assert.Equal(t, engine.PriorityHigh, a.Priority, "legacy mode keeps the rule priority")
	}
}

func TestOvercapacity_SkipsUnknownAndUntrackedLocations(t *testing.T) {
	anomalies, err := evaluate(overcapacityRule(true), testTopology(),
		row("U-1", "09-09-009Z", time.Hour),
		row("U-2", "09-09-009Z", time.Hour),
		row("A-1", "AISLE-01", time.Hour),
		row("A-2", "AISLE-01", time.Hour),
		row("OK-1", "STAGE-01", time.Hour),
	)

	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

// =============================================================================
// INVALID LOCATION
// =============================================================================

// overrideTopology knows nothing but reports hand-registered overrides.
type overrideTopology struct {
	*location.Registry
	manual map[string]bool
}

func (o overrideTopology) Override(code string) (location.Descriptor, bool) {
	canonical := location.ToCanonical(code)
	if !o.manual[canonical] {
		return location.Descriptor{}, false
	}
	return location.Descriptor{Code: canonical, Type: location.TypeStorage, Manual: true}, true
}

func TestInvalidLocation_TopologyMembership(t *testing.T) {
	r := rule("invalid", engine.RuleInvalidLocation, 1, nil)

	anomalies, err := evaluate(r, testTopology(),
		row("P-OK", "1-1-1A", time.Hour),
		row("P-SPECIAL", "recv-1", time.Hour),
		row("P-OUTSIDE", "09-09-009Z", time.Hour),
		row("P-EMPTY", "", time.Hour),
	)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"P-OUTSIDE", "P-EMPTY"}, palletIDs(anomalies))
	for _, a := range anomalies {
		if a.PalletID == "P-EMPTY" {
			assert.Equal(t, "missing location", a.Details.Reason)
		}
	}
}

func TestInvalidLocation_PhysicalOverrideWins(t *testing.T) {
	// GIVEN: A topology that does not contain MEZZ-7, but MEZZ-7 was
	//        registered by hand
	// WHEN: A pallet sits in MEZZ-7
	// THEN: It is valid; the override is checked before membership

	topo := overrideTopology{Registry: location.NewRegistry(), manual: map[string]bool{"MEZZ-7": true}}
	r := rule("invalid", engine.RuleInvalidLocation, 1, nil)

	anomalies, err := evaluate(r, topo,
		row("P-MANUAL", "mezz-7", time.Hour),
		row("P-GONE", "MEZZ-8", time.Hour),
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"P-GONE"}, palletIDs(anomalies))
}

func TestInvalidLocation_PatternFallbackWithoutTopology(t *testing.T) {
	r := rule("invalid", engine.RuleInvalidLocation, 1, nil)

	anomalies, err := evaluate(r, nil,
		row("P-OK", "01A01A", time.Hour),
		row("P-RECV", "RECV-01", time.Hour),
		row("P-ERR", "ERROR-LOC", time.Hour),
		row("P-NULL", "null", time.Hour),
		row("P-SYM", "bad loc!", time.Hour),
		row("P-LONG", strings.Repeat("X", 31), time.Hour),
		row("P-EMPTY", " ", time.Hour),
	)

	require.NoError(t, err, "no topology degrades to pattern checks, not failure")
	assert.ElementsMatch(t,
		[]string{"P-ERR", "P-NULL", "P-SYM", "P-LONG", "P-EMPTY"},
		palletIDs(anomalies))
}

func TestInvalidLocation_SystemicLookupFailure(t *testing.T) {
	r := rule("invalid", engine.RuleInvalidLocation, 1, nil)

	_, err := evaluate(r, failingTopology{}, row("P-1", "01-01-001A", time.Hour))

	assert.ErrorIs(t, err, engine.ErrTopologyUnavailable)
}

// =============================================================================
// DATA INTEGRITY
// =============================================================================

func TestDataIntegrity_Duplicates(t *testing.T) {
	r := rule("integrity", engine.RuleDataIntegrity, 1, nil)
	repeat := row("P-REPEAT", "01-01-003A", time.Hour)

	anomalies, err := evaluate(r, nil,
		row("P-DUP", "01-01-001A", time.Hour),
		row("P-DUP", "1-1-2A", time.Hour),
		repeat, repeat,
		row("", "01-01-004A", time.Hour),
		row("", "01-01-005A", time.Hour),
	)

	require.NoError(t, err)
	require.Len(t, anomalies, 1, "exact repeats and blank ids are not duplicates")
	a := anomalies[0]
	assert.Equal(t, "P-DUP", a.PalletID)
	assert.Equal(t, "01-01-001A", a.Location)
	assert.Equal(t, 2, a.Details.Occurrences)
	assert.Equal(t, []string{"01-01-001A", "01-01-002A"}, a.Details.Locations)
}

func TestDataIntegrity_SameLocationDifferentTimes(t *testing.T) {
	r := rule("integrity", engine.RuleDataIntegrity, 1, nil)

	anomalies, err := evaluate(r, nil,
		row("P-1", "STAGE-01", time.Hour),
		row("P-1", "STAGE-01", 2*time.Hour),
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"P-1"}, palletIDs(anomalies))
}

func TestDataIntegrity_ImpossibleLocations(t *testing.T) {
	r := rule("integrity", engine.RuleDataIntegrity, 1, engine.DataIntegrityConditions{
		CheckImpossibleLocations: true,
		MaxLocationLength:        12,
	})

	anomalies, err := evaluate(r, nil,
		row("P-HASH", "RACK#7", time.Hour),
		row("P-LONG", "AAAAAAAAAAAAA", time.Hour),
		row("P-OK", "01-01-001A", time.Hour),
		row("P-BLANK", "", time.Hour),
	)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"P-HASH", "P-LONG"}, palletIDs(anomalies))
}

// =============================================================================
// LOCATION MAPPING
// =============================================================================

func TestLocationMapping_DeclaredTypeContradictsCode(t *testing.T) {
	r := rule("mapping", engine.RuleLocationMappingError, 1, nil)
	declared := row("P-DECL", "01-01-001A", time.Hour)
	declared.LocationType = location.TypeReceiving

	topo := location.NewRegistry(
		location.Descriptor{Code: "DOCK-01", Type: location.TypeStorage},
		location.Descriptor{Code: "RECV-01", Type: location.TypeReceiving},
	)

	anomalies, err := evaluate(r, topo,
		declared,
		row("P-TOPO", "DOCK-1", time.Hour),
		row("P-FINE", "RECV-01", time.Hour),
		row("P-SHAPELESS", "MEZZ", time.Hour),
		row("P-UNKNOWN", "STAGE-04", time.Hour),
	)

	require.NoError(t, err)
	require.Len(t, anomalies, 2)
	assert.Equal(t, "P-DECL", anomalies[0].PalletID)
	assert.Equal(t, location.TypeReceiving, anomalies[0].Details.DeclaredType)
	assert.Equal(t, location.TypeStorage, anomalies[0].Details.InferredType)
	assert.Equal(t, "P-TOPO", anomalies[1].PalletID)
	assert.Equal(t, location.TypeStorage, anomalies[1].Details.DeclaredType)
	assert.Equal(t, location.TypeDock, anomalies[1].Details.InferredType)
}

// =============================================================================
// TEMPERATURE ZONE
// =============================================================================

func TestTemperatureZone_ProhibitedZone(t *testing.T) {
	r := rule("temp", engine.RuleTemperatureZoneMismatch, 1, nil)

	frozen := row("P-FROZEN", "01-01-001A", time.Hour)
	frozen.Description = "Frozen peas 2/lb"
	cold := row("P-COLD", "02-01-001A", time.Hour)
	cold.Description = "FROZEN fish"
	dry := row("P-DRY", "01-01-002A", time.Hour)
	dry.Description = "Dry pasta"
	lost := row("P-LOST", "09-09-009Z", time.Hour)
	lost.Description = "refrigerated milk"

	anomalies, err := evaluate(r, testTopology(), frozen, cold, dry, lost)

	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "P-FROZEN", anomalies[0].PalletID)
	assert.Equal(t, "GENERAL", anomalies[0].Details.Zone)
	assert.Equal(t, "*FROZEN*", anomalies[0].Details.Pattern)
}

// =============================================================================
// EVALUATOR RESOLUTION
// =============================================================================

func TestNewEvaluator_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		rule engine.RuleConfig
		want error
	}{
		{"unknown type", engine.RuleConfig{ID: "x", Type: "TELEPORTED"}, engine.ErrUnknownRuleType},
		{"mismatched conditions", rule("x", engine.RuleOvercapacity, 1, engine.StagnantConditions{}), engine.ErrConditionsMismatch},
		{"invalid conditions", rule("x", engine.RuleStagnantPallets, 1, engine.StagnantConditions{ThresholdHours: -1}), engine.ErrInvalidConditions},
		{"bad glob", rule("x", engine.RuleLocationSpecificStagnant, 1, engine.LocationSpecificStagnantConditions{ThresholdHours: 1}), engine.ErrInvalidConditions},
		{"load error", engine.RuleConfig{ID: "x", Type: engine.RuleOvercapacity, LoadErr: errors.New("bad json")}, engine.ErrInvalidConditions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.NewEvaluator(tt.rule)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, engine.IsConfigError(err))
		})
	}
}

func TestNewEvaluator_DefaultsForEveryType(t *testing.T) {
	for _, typ := range engine.RuleTypes() {
		_, err := engine.NewEvaluator(engine.RuleConfig{ID: string(typ), Type: typ})
		assert.NoError(t, err, typ)
	}
}
