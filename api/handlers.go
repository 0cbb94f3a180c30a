/*
handlers.go - HTTP API handlers for the anomaly rule engine

PURPOSE:
  Exposes warehouse analysis via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the analysis service and the
  repository.

ENDPOINTS:
  Analysis:
    POST   /api/warehouses/{warehouseID}/analyses         Analyze an inventory upload
    GET    /api/reports/{reportID}                        Get a stored report

  Rules:
    GET    /api/rules                                     List rule definitions
    POST   /api/rules                                     Create or replace a rule

  Locations:
    GET    /api/warehouses/{warehouseID}/locations        List locations and template
    POST   /api/warehouses/{warehouseID}/locations        Register a location
    GET    /api/warehouses/{warehouseID}/locations/{code} Look up by any spelling
    GET    /api/locations/canonical?code=...              Canonicalization diagnostics

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, invalid rule configuration
  - 404: Unknown report or location
  - 504: Analysis exceeded its time budget
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - analysis/service.go: the analysis pipeline
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/location"
)

// maxBodyBytes bounds request bodies; inventory uploads are the large ones.
const maxBodyBytes = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need beyond the analysis repository.
type Store interface {
	analysis.Repository
	ListRules(ctx context.Context) ([]factory.RuleDefinition, error)
	SaveRule(ctx context.Context, def factory.RuleDefinition) error
	SaveLocation(ctx context.Context, warehouseID string, loc factory.LocationDefinition) error
	FindLocation(ctx context.Context, warehouseID, code string) (factory.LocationDefinition, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Analysis *analysis.Service

	// TimeZone reads inventory timestamps that carry no zone. Defaults to UTC.
	TimeZone *time.Location
}

// NewHandler creates a new handler.
func NewHandler(store Store, svc *analysis.Service) *Handler {
	return &Handler{Store: store, Analysis: svc, TimeZone: time.UTC}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// ANALYSIS HANDLERS
// =============================================================================

// Analyze runs every active rule against the uploaded inventory.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	warehouseID := chi.URLParam(r, "warehouseID")

	var req AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	records, stats := factory.ToRecords(req.Inventory, h.TimeZone)
	report, err := h.Analysis.Run(r.Context(), analysis.Request{
		WarehouseID: warehouseID,
		Inventory:   records,
		Stats:       stats,
	})
	if err != nil {
		writeError(w, statusFor(err), "Analysis failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toReportDTO(report))
}

// GetReport returns a stored report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reportID")

	report, err := h.Analysis.Report(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get report", err)
		return
	}

	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns all stored rule definitions.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Store.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	dtos := make([]RuleDTO, 0, len(defs))
	for _, def := range defs {
		dtos = append(dtos, toRuleDTO(def))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule validates and stores a rule definition.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var def factory.RuleDefinition
	if err := decodeBody(w, r, &def); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	def.ID = strings.TrimSpace(def.ID)
	if def.ID == "" {
		writeError(w, http.StatusBadRequest, "Rule id is required", nil)
		return
	}

	// Validate by parsing
	if rc := factory.ParseRule(def); rc.LoadErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule configuration", rc.LoadErr)
		return
	}

	if err := h.Store.SaveRule(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rule", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRuleDTO(def))
}

// =============================================================================
// LOCATION HANDLERS
// =============================================================================

// ListLocations returns the registered locations and storage template of
// a warehouse.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	warehouseID := chi.URLParam(r, "warehouseID")

	topo, err := h.Store.Topology(r.Context(), warehouseID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to load topology", err)
		return
	}
	if topo == nil {
		writeError(w, http.StatusNotFound, "Warehouse has no topology", nil)
		return
	}

	dto := TopologyDTO{WarehouseID: warehouseID, Locations: []LocationDTO{}}
	if t, ok := topo.(interface{ Template() location.Template }); ok {
		dto.Template = toTemplateDTO(t.Template())
	}
	if l, ok := topo.(interface{ Descriptors() []location.Descriptor }); ok {
		for _, d := range l.Descriptors() {
			dto.Locations = append(dto.Locations, descriptorToDTO(d))
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// RegisterLocation adds or replaces a location in a warehouse.
func (h *Handler) RegisterLocation(w http.ResponseWriter, r *http.Request) {
	warehouseID := chi.URLParam(r, "warehouseID")

	var loc factory.LocationDefinition
	if err := decodeBody(w, r, &loc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if location.ToCanonical(loc.Code) == "" {
		writeError(w, http.StatusBadRequest, "Location code is required", nil)
		return
	}
	if !location.ParseType(loc.Type).IsKnown() {
		writeError(w, http.StatusBadRequest, "Unknown location type", errors.New(loc.Type))
		return
	}

	if err := h.Store.SaveLocation(r.Context(), warehouseID, loc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save location", err)
		return
	}

	writeJSON(w, http.StatusCreated, toLocationDTO(loc))
}

// GetLocation finds a location by any known spelling of its code.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	warehouseID := chi.URLParam(r, "warehouseID")
	code := chi.URLParam(r, "code")

	loc, err := h.Store.FindLocation(r.Context(), warehouseID, code)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get location", err)
		return
	}

	writeJSON(w, http.StatusOK, toLocationDTO(loc))
}

// Canonical reports how a code canonicalizes.
func (h *Handler) Canonical(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		writeError(w, http.StatusBadRequest, "Query parameter code is required", nil)
		return
	}

	writeJSON(w, http.StatusOK, toCanonicalDTO(code))
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrReportNotFound), errors.Is(err, location.ErrUnknownLocation):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrAnalysisTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
