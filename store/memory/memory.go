// Package memory provides an in-memory repository (for testing/dev and the CLI).
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/location"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	warehouses map[string]*warehouse
	rules      map[string]factory.RuleDefinition
	reports    map[string]analysis.Report
}

type warehouse struct {
	template   *factory.TemplateDefinition
	locations  []factory.LocationDefinition
	exclusions []string
}

func New() *Memory {
	return &Memory{
		warehouses: make(map[string]*warehouse),
		rules:      make(map[string]factory.RuleDefinition),
		reports:    make(map[string]analysis.Report),
	}
}

func (m *Memory) warehouseLocked(id string) *warehouse {
	w, ok := m.warehouses[id]
	if !ok {
		w = &warehouse{}
		m.warehouses[id] = w
	}
	return w
}

// =============================================================================
// TOPOLOGY
// =============================================================================

// PutTopology replaces everything known about a warehouse.
func (m *Memory) PutTopology(_ context.Context, def factory.TopologyDefinition) error {
	if strings.TrimSpace(def.WarehouseID) == "" {
		return fmt.Errorf("warehouse id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	w := &warehouse{
		locations:  append([]factory.LocationDefinition(nil), def.Locations...),
		exclusions: append([]string(nil), def.ExclusionPatterns...),
	}
	if def.Template != nil {
		t := *def.Template
		w.template = &t
	}
	m.warehouses[def.WarehouseID] = w
	return nil
}

// SaveLocation registers a location, replacing any location with the same
// canonical code. The code is kept as given.
func (m *Memory) SaveLocation(_ context.Context, warehouseID string, loc factory.LocationDefinition) error {
	canonical := location.ToCanonical(loc.Code)
	if canonical == "" {
		return fmt.Errorf("location code is required")
	}
	loc.Code = strings.ToUpper(strings.TrimSpace(loc.Code))

	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.warehouseLocked(warehouseID)
	for i, existing := range w.locations {
		if location.ToCanonical(existing.Code) == canonical {
			w.locations[i] = loc
			return nil
		}
	}
	w.locations = append(w.locations, loc)
	return nil
}

// FindLocation looks a code up by its search variants, so a location stored
// under a legacy spelling is still found.
func (m *Memory) FindLocation(_ context.Context, warehouseID, code string) (factory.LocationDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.warehouses[warehouseID]
	if ok {
		for _, variant := range location.SearchVariants(code) {
			for _, loc := range w.locations {
				if loc.Code == variant {
					return loc, nil
				}
			}
		}
	}
	return factory.LocationDefinition{}, fmt.Errorf("%w: %q", location.ErrUnknownLocation, code)
}

func (m *Memory) Topology(_ context.Context, warehouseID string) (location.Topology, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.warehouses[warehouseID]
	if !ok || (w.template == nil && len(w.locations) == 0) {
		return nil, nil
	}
	return factory.TopologyDefinition{
		WarehouseID: warehouseID,
		Template:    w.template,
		Locations:   w.locations,
	}.Build()
}

func (m *Memory) SetExclusionPatterns(_ context.Context, warehouseID string, patterns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warehouseLocked(warehouseID).exclusions = append([]string(nil), patterns...)
	return nil
}

func (m *Memory) ExclusionPatterns(_ context.Context, warehouseID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.warehouses[warehouseID]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), w.exclusions...), nil
}

// =============================================================================
// RULES
// =============================================================================

func (m *Memory) SaveRule(_ context.Context, def factory.RuleDefinition) error {
	if strings.TrimSpace(def.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[def.ID] = def
	return nil
}

// ListRules returns every stored definition ordered by precedence, then id.
func (m *Memory) ListRules(_ context.Context) ([]factory.RuleDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make([]factory.RuleDefinition, 0, len(m.rules))
	for _, def := range m.rules {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Precedence != defs[j].Precedence {
			return defs[i].Precedence < defs[j].Precedence
		}
		return defs[i].ID < defs[j].ID
	})
	return defs, nil
}

// ActiveRules parses the enabled definitions. Definitions that fail to
// parse are returned with LoadErr set so the run reports them.
func (m *Memory) ActiveRules(ctx context.Context) ([]engine.RuleConfig, error) {
	defs, err := m.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	rules := make([]engine.RuleConfig, 0, len(defs))
	for _, def := range defs {
		if def.Disabled {
			continue
		}
		rules = append(rules, factory.ParseRule(def))
	}
	return rules, nil
}

// =============================================================================
// REPORTS
// =============================================================================

func (m *Memory) SaveReport(_ context.Context, report *analysis.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.ID] = *report
	return nil
}

func (m *Memory) Report(_ context.Context, id string) (*analysis.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", analysis.ErrReportNotFound, id)
	}
	return &r, nil
}

var _ analysis.Repository = (*Memory)(nil)
