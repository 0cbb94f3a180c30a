/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Analysis upload and report retrieval
- Rule validation on create
- Location registration and variant lookup
- Error status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/location"
	"github.com/warewise/rule-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...analysis.Option) (*httptest.Server, *memory.Memory) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.PutTopology(ctx, factory.TopologyDefinition{
		WarehouseID: "WH1",
		Template:    &factory.TemplateDefinition{Aisles: 1, RacksPerAisle: 2, PositionsPerRack: 5, Levels: "AB"},
		Locations: []factory.LocationDefinition{
			{Code: "RECV-01", Type: "RECEIVING", Capacity: 10},
		},
	}))
	for _, r := range factory.DefaultRuleSet() {
		require.NoError(t, store.SaveRule(ctx, factory.ToDefinition(r)))
	}

	eng := engine.New(engine.WithClock(func() time.Time { return testNow }))
	h := NewHandler(store, analysis.NewService(store, eng, opts...))
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// =============================================================================
// ANALYSIS
// =============================================================================

func TestAnalyze_ReturnsAndStoresReport(t *testing.T) {
	// GIVEN: the default rules and an upload with a forgotten pallet and a bad code
	srv, _ := newTestServer(t)
	body := map[string]any{"inventory": []map[string]any{
		{"pallet_id": "P-1", "location": "recv-1", "creation_date": "2025-06-02 04:00:00"},
		{"pallet_id": "P-2", "location": "01A01A", "creation_date": "2025-06-02 11:00:00"},
		{"pallet_id": "P-3", "location": "NOWHERE", "creation_date": "2025-06-02 11:00:00"},
		{"pallet_id": "P-4", "location": "01A02B"},
	}}

	// WHEN
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/warehouses/WH1/analyses", body)

	// THEN
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	report := decode[ReportDTO](t, resp)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "WH1", report.WarehouseID)
	assert.Equal(t, 4, report.InventoryRows)
	assert.Equal(t, 1, report.Inventory.MissingTimestamp)
	assert.Len(t, report.Rules, 8)
	assert.Zero(t, report.Summary.RulesFailed)

	byType := make(map[engine.RuleType][]string)
	for _, a := range report.Anomalies {
		byType[a.Type] = append(byType[a.Type], a.PalletID)
	}
	assert.Equal(t, []string{"P-1"}, byType[engine.RuleStagnantPallets])
	assert.Equal(t, []string{"P-3"}, byType[engine.RuleInvalidLocation])

	// AND: the report can be fetched again
	again := doJSON(t, http.MethodGet, srv.URL+"/api/reports/"+report.ID, nil)
	require.Equal(t, http.StatusOK, again.StatusCode)
	stored := decode[ReportDTO](t, again)
	assert.Equal(t, report.Summary.TotalAnomalies, stored.Summary.TotalAnomalies)
}

func TestAnalyze_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/warehouses/WH1/analyses", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", decode[ErrorResponse](t, resp).Error)
}

func TestGetReport_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/reports/does-not-exist", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// RULES
// =============================================================================

func TestCreateRule_ValidatesConditions(t *testing.T) {
	srv, _ := newTestServer(t)

	bad := doJSON(t, http.MethodPost, srv.URL+"/api/rules", map[string]any{
		"id": "lots-95", "rule_type": "UNCOORDINATED_LOTS",
		"conditions": map[string]any{"completion_threshold": 9.5},
	})
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, bad).Details, "completion_threshold")

	good := doJSON(t, http.MethodPost, srv.URL+"/api/rules", map[string]any{
		"id": "lots-95", "rule_type": "UNCOORDINATED_LOTS", "precedence": 20,
		"conditions": map[string]any{"completion_threshold": 0.95},
	})
	require.Equal(t, http.StatusCreated, good.StatusCode)
	assert.True(t, decode[RuleDTO](t, good).Valid)

	list := doJSON(t, http.MethodGet, srv.URL+"/api/rules", nil)
	require.Equal(t, http.StatusOK, list.StatusCode)
	rules := decode[[]RuleDTO](t, list)
	require.Len(t, rules, 9)
	assert.Equal(t, "lots-95", rules[8].ID)
}

func TestListRules_ReportsEffectiveExclusions(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, http.MethodPost, srv.URL+"/api/rules", map[string]any{
		"id": "cap-all", "rule_type": "OVERCAPACITY", "precedence": 30,
		"exclude_if_flagged_by": []string{},
	})

	rules := decode[[]RuleDTO](t, doJSON(t, http.MethodGet, srv.URL+"/api/rules", nil))

	byID := make(map[string]RuleDTO)
	for _, r := range rules {
		byID[r.ID] = r
	}
	assert.Equal(t, []engine.RuleType{engine.RuleInvalidLocation, engine.RuleDataIntegrity},
		byID["overcapacity"].SuppressedBy)
	assert.Empty(t, byID["cap-all"].SuppressedBy)
	assert.NotNil(t, byID["cap-all"].ExcludeIfFlaggedBy)
}

func TestCreateRule_RequiresID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/rules", map[string]any{"rule_type": "OVERCAPACITY"})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// LOCATIONS
// =============================================================================

func TestLocations_RegisterAndLookupByVariant(t *testing.T) {
	// GIVEN
	srv, store := newTestServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/warehouses/WH1/locations", map[string]any{
		"code": "stage_03", "type": "staging", "capacity": 6,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[LocationDTO](t, resp)
	assert.Equal(t, "STAGE-03", created.Canonical)

	// WHEN: looked up by another spelling
	found := doJSON(t, http.MethodGet, srv.URL+"/api/warehouses/WH1/locations/STAGE-3", nil)

	// THEN
	require.Equal(t, http.StatusOK, found.StatusCode)
	loc := decode[LocationDTO](t, found)
	assert.Equal(t, location.TypeStaging, loc.Type)
	assert.Equal(t, 6, loc.Capacity)

	// AND: the new location is part of the topology
	topo, err := store.Topology(context.Background(), "WH1")
	require.NoError(t, err)
	_, err = topo.Lookup("STAGE-03")
	assert.NoError(t, err)

	missing := doJSON(t, http.MethodGet, srv.URL+"/api/warehouses/WH1/locations/DOCK-9", nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestListLocations(t *testing.T) {
	// GIVEN: WH1 has a 1x2x5 template on two levels and one receiving area
	srv, _ := newTestServer(t)

	// WHEN
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/warehouses/WH1/locations", nil)

	// THEN
	require.Equal(t, http.StatusOK, resp.StatusCode)
	topo := decode[TopologyDTO](t, resp)
	require.NotNil(t, topo.Template)
	assert.Equal(t, 20, topo.Template.Slots)
	assert.Equal(t, "GENERAL", topo.Template.DefaultZone)
	require.Len(t, topo.Locations, 1)
	assert.Equal(t, "RECV-01", topo.Locations[0].Code)
	assert.Equal(t, location.TypeReceiving, topo.Locations[0].Type)

	missing := doJSON(t, http.MethodGet, srv.URL+"/api/warehouses/WH9/locations", nil)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestRegisterLocation_RejectsUnknownType(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/warehouses/WH1/locations", map[string]any{
		"code": "X-1", "type": "basement",
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCanonical(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/locations/canonical?code=1-1-1A", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	dto := decode[CanonicalDTO](t, resp)
	assert.Equal(t, "01-01-001A", dto.Canonical)
	assert.Equal(t, location.FormatLoose, dto.Format)
	assert.Equal(t, location.TypeStorage, dto.InferredType)
	assert.Equal(t, "01-01-001A", dto.Variants[0])

	missing := doJSON(t, http.MethodGet, srv.URL+"/api/locations/canonical", nil)
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[HealthDTO](t, resp).Status)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", analysis.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", analysis.ErrReportNotFound), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", location.ErrUnknownLocation), http.StatusNotFound},
		{fmt.Errorf("wrap: %w", analysis.ErrAnalysisTimeout), http.StatusGatewayTimeout},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
