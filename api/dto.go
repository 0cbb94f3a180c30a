/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Reports are
  flattened for clients: one list of rule executions and one list of
  anomalies instead of the engine's nested results.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go, factory/topology.go: serialized rule and location forms
*/
package api

import (
	"time"

	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/location"
)

// =============================================================================
// ANALYSIS
// =============================================================================

// AnalyzeRequest is the body of POST /api/warehouses/{id}/analyses.
type AnalyzeRequest struct {
	Inventory []factory.InventoryRow `json:"inventory"`
}

// ReportDTO represents a stored analysis.
type ReportDTO struct {
	ID            string                 `json:"id"`
	WarehouseID   string                 `json:"warehouse_id"`
	EvaluatedAt   string                 `json:"evaluated_at"`
	DurationMS    float64                `json:"duration_ms"`
	InventoryRows int                    `json:"inventory_rows"`
	ExcludedRows  int                    `json:"excluded_rows"`
	Inventory     factory.InventoryStats `json:"inventory"`
	Summary       engine.Summary         `json:"summary"`
	Rules         []RuleExecutionDTO     `json:"rules"`
	Anomalies     []engine.Anomaly       `json:"anomalies"`
}

// RuleExecutionDTO is one rule's outcome within a report.
type RuleExecutionDTO struct {
	RuleID       string          `json:"rule_id"`
	RuleName     string          `json:"rule_name,omitempty"`
	RuleType     engine.RuleType `json:"rule_type"`
	Precedence   int             `json:"precedence"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	DurationMS   float64         `json:"duration_ms"`
	AnomalyCount int             `json:"anomaly_count"`
	Suppressed   int             `json:"suppressed"`
}

func toReportDTO(r *analysis.Report) ReportDTO {
	a := r.Analysis
	dto := ReportDTO{
		ID:            r.ID,
		WarehouseID:   r.WarehouseID,
		EvaluatedAt:   a.EvaluatedAt.UTC().Format(time.RFC3339),
		DurationMS:    millis(a.Duration),
		InventoryRows: a.InventoryRows,
		ExcludedRows:  a.ExcludedRows,
		Inventory:     r.Inventory,
		Summary:       a.Summary,
		Rules:         make([]RuleExecutionDTO, 0, len(a.Results)),
		Anomalies:     a.Anomalies(),
	}
	if dto.Anomalies == nil {
		dto.Anomalies = []engine.Anomaly{}
	}
	for _, res := range a.Results {
		dto.Rules = append(dto.Rules, RuleExecutionDTO{
			RuleID:       res.RuleID,
			RuleName:     res.RuleName,
			RuleType:     res.RuleType,
			Precedence:   res.Precedence,
			Success:      res.Success,
			Error:        res.Error,
			DurationMS:   millis(res.Duration),
			AnomalyCount: len(res.Anomalies),
			Suppressed:   res.Suppressed,
		})
	}
	return dto
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// =============================================================================
// RULES
// =============================================================================

// RuleDTO is a stored rule definition plus whether it currently loads.
// SuppressedBy is the effective exclusion list: the declared one, or the
// built-in defaults when the rule declares none.
type RuleDTO struct {
	factory.RuleDefinition
	Valid        bool              `json:"valid"`
	LoadError    string            `json:"load_error,omitempty"`
	SuppressedBy []engine.RuleType `json:"suppressed_by"`
}

func toRuleDTO(def factory.RuleDefinition) RuleDTO {
	dto := RuleDTO{RuleDefinition: def, Valid: true}
	rc := factory.ParseRule(def)
	if rc.LoadErr != nil {
		dto.Valid = false
		dto.LoadError = rc.LoadErr.Error()
		return dto
	}
	if rc.ExcludeIfFlaggedBy != nil {
		dto.SuppressedBy = rc.ExcludeIfFlaggedBy
	} else {
		dto.SuppressedBy = engine.DefaultExclusions(rc.Type)
	}
	return dto
}

// =============================================================================
// LOCATIONS
// =============================================================================

// LocationDTO represents a registered location.
type LocationDTO struct {
	Code      string        `json:"code"`
	Canonical string        `json:"canonical"`
	Type      location.Type `json:"type"`
	Capacity  int           `json:"capacity"`
	Zone      string        `json:"zone,omitempty"`
	Manual    bool          `json:"manual,omitempty"`
}

func toLocationDTO(l factory.LocationDefinition) LocationDTO {
	d := l.Descriptor()
	return LocationDTO{
		Code:      l.Code,
		Canonical: location.ToCanonical(l.Code),
		Type:      d.Type,
		Capacity:  d.Capacity,
		Zone:      l.Zone,
		Manual:    l.Manual,
	}
}

func descriptorToDTO(d location.Descriptor) LocationDTO {
	return LocationDTO{
		Code:      d.Code,
		Canonical: d.Code,
		Type:      d.Type,
		Capacity:  d.Capacity,
		Zone:      d.Zone,
		Manual:    d.Manual,
	}
}

// TemplateDTO describes the storage grid of a warehouse.
type TemplateDTO struct {
	Aisles           int    `json:"aisles"`
	RacksPerAisle    int    `json:"racks_per_aisle"`
	PositionsPerRack int    `json:"positions_per_rack"`
	Levels           string `json:"levels"`
	DefaultCapacity  int    `json:"default_capacity"`
	DefaultZone      string `json:"default_zone"`
	Slots            int    `json:"slots"`
}

// TopologyDTO lists the registered locations of a warehouse. Template
// slots are summarized, not enumerated.
type TopologyDTO struct {
	WarehouseID string        `json:"warehouse_id"`
	Template    *TemplateDTO  `json:"template,omitempty"`
	Locations   []LocationDTO `json:"locations"`
}

func toTemplateDTO(t location.Template) *TemplateDTO {
	return &TemplateDTO{
		Aisles:           t.Aisles,
		RacksPerAisle:    t.RacksPerAisle,
		PositionsPerRack: t.PositionsPerRack,
		Levels:           t.Levels,
		DefaultCapacity:  t.DefaultCapacity,
		DefaultZone:      t.DefaultZone,
		Slots:            t.SlotCount(),
	}
}

// CanonicalDTO is the diagnostic view of one location code.
type CanonicalDTO struct {
	Input        string          `json:"input"`
	Canonical    string          `json:"canonical"`
	Format       location.Format `json:"format"`
	Parseable    bool            `json:"parseable"`
	InferredType location.Type   `json:"inferred_type"`
	Variants     []string        `json:"variants"`
}

func toCanonicalDTO(code string) CanonicalDTO {
	res := location.ValidateFormat(code)
	variants := location.SearchVariants(code)
	if variants == nil {
		variants = []string{}
	}
	return CanonicalDTO{
		Input:        code,
		Canonical:    res.Canonical,
		Format:       res.Format,
		Parseable:    res.Parseable,
		InferredType: location.InferType(code),
		Variants:     variants,
	}
}

// =============================================================================
// COMMON
// =============================================================================

type HealthDTO struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
