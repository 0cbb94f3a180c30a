package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/location"
	"github.com/warewise/rule-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testTopology() factory.TopologyDefinition {
	return factory.TopologyDefinition{
		WarehouseID: "WH1",
		Template: &factory.TemplateDefinition{
			Aisles: 2, RacksPerAisle: 2, PositionsPerRack: 10, Levels: "AB", DefaultZone: "GENERAL",
		},
		Locations: []factory.LocationDefinition{
			{Code: "RECV-1", Type: "RECEIVING", Capacity: 20},
			{Code: "01A02B", Type: "STORAGE", Capacity: 1, Zone: "cold", Manual: true},
		},
		ExclusionPatterns: []string{"TEMP*", "*-TEST"},
	}
}

// =============================================================================
// TOPOLOGY
// =============================================================================

func TestTopology_RoundTrip(t *testing.T) {
	// GIVEN
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutTopology(ctx, testTopology()))

	// WHEN
	topo, err := store.Topology(ctx, "WH1")

	// THEN: template slots and explicit locations both resolve
	require.NoError(t, err)
	d, err := topo.Lookup("2-2-10B")
	require.NoError(t, err)
	assert.Equal(t, location.TypeStorage, d.Type)
	assert.Equal(t, "GENERAL", d.Zone)

	d, err = topo.Lookup("recv-01")
	require.NoError(t, err)
	assert.Equal(t, 20, d.Capacity)

	d, err = topo.Lookup("01-01-002B")
	require.NoError(t, err)
	assert.Equal(t, "COLD", d.Zone)

	_, err = topo.Lookup("03-01-001A")
	assert.ErrorIs(t, err, location.ErrUnknownLocation)

	patterns, err := store.ExclusionPatterns(ctx, "WH1")
	require.NoError(t, err)
	assert.Equal(t, []string{"TEMP*", "*-TEST"}, patterns)
}

func TestPutTopology_ReplacesPreviousLayout(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutTopology(ctx, testTopology()))

	require.NoError(t, store.PutTopology(ctx, factory.TopologyDefinition{
		WarehouseID: "WH1",
		Locations:   []factory.LocationDefinition{{Code: "DOCK-1", Type: "DOCK"}},
	}))

	topo, err := store.Topology(ctx, "WH1")
	require.NoError(t, err)
	_, err = topo.Lookup("RECV-01")
	assert.ErrorIs(t, err, location.ErrUnknownLocation)
	_, err = topo.Lookup("DOCK-01")
	assert.NoError(t, err)

	patterns, err := store.ExclusionPatterns(ctx, "WH1")
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestTopology_UnknownWarehouse(t *testing.T) {
	topo, err := newTestStore(t).Topology(context.Background(), "NOPE")

	require.NoError(t, err)
	assert.Nil(t, topo)
}

func TestFindLocation_SearchVariants(t *testing.T) {
	// GIVEN: locations stored under legacy spellings
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveLocation(ctx, "WH1", factory.LocationDefinition{Code: "01a01a", Type: "STORAGE"}))
	require.NoError(t, store.SaveLocation(ctx, "WH1", factory.LocationDefinition{Code: "RECV_01", Type: "RECEIVING", Capacity: 5}))

	tests := []struct {
		query string
		want  string
	}{
		{"01-01-001A", "01A01A"},
		{"1-1-1A", "01A01A"},
		{"recv-1", "RECV_01"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			loc, err := store.FindLocation(ctx, "WH1", tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.Code)
		})
	}

	_, err := store.FindLocation(ctx, "WH1", "DOCK-9")
	assert.ErrorIs(t, err, location.ErrUnknownLocation)
	_, err = store.FindLocation(ctx, "WH2", "01-01-001A")
	assert.ErrorIs(t, err, location.ErrUnknownLocation)
}

func TestSaveLocation_UpsertsByCanonicalCode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveLocation(ctx, "WH1", factory.LocationDefinition{Code: "STAGE-1", Type: "STAGING", Capacity: 4}))
	require.NoError(t, store.SaveLocation(ctx, "WH1", factory.LocationDefinition{Code: "STAGE-01", Type: "STAGING", Capacity: 9}))

	loc, err := store.FindLocation(ctx, "WH1", "STAGE-1")

	require.NoError(t, err)
	assert.Equal(t, "STAGE-01", loc.Code)
	assert.Equal(t, 9, loc.Capacity)
	assert.Error(t, store.SaveLocation(ctx, "WH1", factory.LocationDefinition{Code: ""}))
}

// =============================================================================
// RULES
// =============================================================================

func TestRules_SaveListAndVersion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, r := range factory.DefaultRuleSet() {
		require.NoError(t, store.SaveRule(ctx, factory.ToDefinition(r)))
	}

	defs, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 8)
	assert.Equal(t, "scanner-errors", defs[0].ID)

	// Updating bumps the version
	def := defs[0]
	def.Name = "Scanner errors v2"
	require.NoError(t, store.SaveRule(ctx, def))
	rec, err := store.GetRule(ctx, "scanner-errors")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Version)
	assert.Equal(t, "Scanner errors v2", rec.Definition.Name)

	missing, err := store.GetRule(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestActiveRules_ParsesEnabledOnly(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveRule(ctx, factory.RuleDefinition{
		ID: "lots", RuleType: "UNCOORDINATED_LOTS", Precedence: 2,
		Conditions: map[string]any{"completion_threshold": 0.9},
	}))
	require.NoError(t, store.SaveRule(ctx, factory.RuleDefinition{
		ID: "off", RuleType: "OVERCAPACITY", Precedence: 1, Disabled: true,
	}))
	require.NoError(t, store.SaveRule(ctx, factory.RuleDefinition{
		ID: "broken", RuleType: "STAGNANT_PALLETS", Precedence: 3,
		Conditions: map[string]any{"time_threshold_hours": -1},
	}))

	rules, err := store.ActiveRules(ctx)

	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "lots", rules[0].ID)
	require.NoError(t, rules[0].LoadErr)
	cond := rules[0].Conditions.(engine.UncoordinatedLotsConditions)
	assert.Equal(t, "0.9", cond.CompletionThreshold.String())
	assert.Equal(t, "broken", rules[1].ID)
	assert.ErrorIs(t, rules[1].LoadErr, engine.ErrInvalidConditions)

	require.NoError(t, store.DeleteRule(ctx, "lots"))
	rules, err = store.ActiveRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestReport_RoundTrip(t *testing.T) {
	// GIVEN: a real analysis with anomalies and one failed rule
	ctx := context.Background()
	store := newTestStore(t)
	evaluatedAt := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	eng := engine.New(engine.WithClock(func() time.Time { return evaluatedAt }))
	topo := location.NewRegistry(
		location.Descriptor{Code: "RECV-01", Type: location.TypeReceiving, Capacity: 20},
	)

	a := eng.Evaluate(
		[]engine.InventoryRecord{
			{PalletID: "P-1", Location: "RECV-1", CreatedAt: evaluatedAt.Add(-8 * time.Hour)},
			{PalletID: "P-2", Location: "RECV-1", CreatedAt: evaluatedAt.Add(-9 * time.Hour)},
			{PalletID: "P-1", Location: "RECV-2", CreatedAt: evaluatedAt.Add(-time.Hour)},
		},
		engine.WarehouseContext{WarehouseID: "WH1", Topology: topo},
		[]engine.RuleConfig{
			{ID: "dup", Type: engine.RuleDataIntegrity, Precedence: 1},
			{ID: "stale", Type: engine.RuleStagnantPallets, Precedence: 2},
			{ID: "bad", Type: engine.RuleType("TELEPORT"), Precedence: 3},
		},
	)
	report := &analysis.Report{
		ID:          "r-1",
		WarehouseID: "WH1",
		CreatedAt:   evaluatedAt,
		Inventory:   factory.InventoryStats{Rows: 3},
		Analysis:    a,
	}

	// WHEN
	require.NoError(t, store.SaveReport(ctx, report))
	got, err := store.Report(ctx, "r-1")

	// THEN
	require.NoError(t, err)
	assert.Equal(t, "WH1", got.WarehouseID)
	assert.True(t, evaluatedAt.Equal(got.Analysis.EvaluatedAt))
	assert.Equal(t, report.Inventory, got.Inventory)
	assert.Equal(t, a.Summary.TotalAnomalies, got.Analysis.Summary.TotalAnomalies)
	assert.Equal(t, 1, got.Analysis.Summary.RulesFailed)
	require.Len(t, got.Analysis.Results, 3)

	for i, want := range a.Results {
		have := got.Analysis.Results[i]
		assert.Equal(t, want.RuleID, have.RuleID)
		assert.Equal(t, want.Success, have.Success)
		assert.Equal(t, want.Error, have.Error)
		assert.Equal(t, want.Suppressed, have.Suppressed)
		require.Len(t, have.Anomalies, len(want.Anomalies))
		for j := range want.Anomalies {
			assert.Equal(t, want.Anomalies[j], have.Anomalies[j])
		}
	}

	dup, _ := got.Analysis.Result("dup")
	assert.NotEmpty(t, dup.Anomalies)
	stale, _ := got.Analysis.Result("stale")
	assert.Len(t, stale.Anomalies, 2)
	bad, _ := got.Analysis.Result("bad")
	assert.False(t, bad.Success)
	assert.NotEmpty(t, bad.Error)
}

func TestReport_NotFound(t *testing.T) {
	_, err := newTestStore(t).Report(context.Background(), "missing")

	assert.True(t, errors.Is(err, analysis.ErrReportNotFound))
}

func TestServiceOverSQLite(t *testing.T) {
	// GIVEN: a warehouse and the default rules in SQLite
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutTopology(ctx, testTopology()))
	for _, r := range factory.DefaultRuleSet() {
		require.NoError(t, store.SaveRule(ctx, factory.ToDefinition(r)))
	}
	now := time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)
	svc := analysis.NewService(store, engine.New(engine.WithClock(func() time.Time { return now })))

	// WHEN
	report, err := svc.Run(ctx, analysis.Request{
		WarehouseID: "WH1",
		Inventory: []engine.InventoryRecord{
			{PalletID: "P-1", Location: "RECV-1", CreatedAt: now.Add(-7 * time.Hour)},
			{PalletID: "P-2", Location: "BOGUS-LOC", CreatedAt: now.Add(-time.Hour)},
			{PalletID: "P-3", Location: "TEMP-1", CreatedAt: now.Add(-30 * time.Hour)},
		},
	})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 1, report.Analysis.ExcludedRows)
	assert.Zero(t, report.Analysis.Summary.RulesFailed)
	assert.Equal(t, 1, report.Analysis.Summary.ByRuleType[engine.RuleStagnantPallets])
	assert.Equal(t, 1, report.Analysis.Summary.ByRuleType[engine.RuleInvalidLocation])

	stored, err := store.Report(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, report.Analysis.Anomalies(), stored.Analysis.Anomalies())
}
