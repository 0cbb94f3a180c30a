/*
topology.go - Warehouse topology lookup

PURPOSE:
  The rule engine never owns warehouse layout data. It consumes a lookup
  capability, Topology, supplied per warehouse by whoever does (the SQLite
  store, a YAML file, a test fixture).

IMPLEMENTATIONS:
  Registry: explicit set of descriptors, one per canonical code.
  Virtual:  a warehouse template (aisles x racks x positions x levels)
            that validates storage slots algorithmically, plus explicit
            special areas and hand-registered physical locations.

PHYSICAL OVERRIDES:
  A location registered by hand (Descriptor.Manual) is reported through
  OverrideSource. The invalid-location rule checks overrides before asking
  the template, so a manually created location is always valid even when
  its code falls outside the template.

SEE ALSO:
  - engine/invalid_location.go: two-stage validity check
  - store/sqlite: loads a Registry per warehouse
*/
package location

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownLocation is returned by Lookup when the code is not part of the
// topology. Any other error from Lookup means the topology itself failed.
var ErrUnknownLocation = errors.New("unknown location")

// Topology looks up locations by code. Implementations canonicalize the
// code before looking it up and must return the same answer for the same
// code for the duration of an evaluation run.
type Topology interface {
	Lookup(code string) (Descriptor, error)
}

// OverrideSource exposes hand-registered physical locations.
type OverrideSource interface {
	Override(code string) (Descriptor, bool)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is an in-memory topology keyed by canonical code.
type Registry struct {
	mu     sync.RWMutex
	byCode map[string]Descriptor
}

// NewRegistry creates a registry holding descs.
func NewRegistry(descs ...Descriptor) *Registry {
	r := &Registry{byCode: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		r.Add(d)
	}
	return r
}

// Add registers d under its canonical code, replacing any previous entry.
// Descriptors with an empty code are ignored.
func (r *Registry) Add(d Descriptor) {
	d = d.normalized()
	if d.Code == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCode[d.Code] = d
}

func (r *Registry) Lookup(code string) (Descriptor, error) {
	canonical := ToCanonical(code)
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byCode[canonical]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownLocation, canonical)
	}
	return d, nil
}

func (r *Registry) Override(code string) (Descriptor, bool) {
	canonical := ToCanonical(code)
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byCode[canonical]
	if !ok || !d.Manual {
		return Descriptor{}, false
	}
	return d, true
}

// Len returns the number of registered locations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}

// Descriptors returns every registered location ordered by code.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.byCode))
	for _, d := range r.byCode {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// =============================================================================
// TEMPLATE + VIRTUAL TOPOLOGY
// =============================================================================

// Template describes the storage grid of a warehouse. Every combination of
// aisle (1..Aisles), rack (1..RacksPerAisle), position (1..PositionsPerRack)
// and level (one letter of Levels) is a valid storage slot.
type Template struct {
	Aisles           int
	RacksPerAisle    int
	PositionsPerRack int
	Levels           string
	DefaultCapacity  int
	DefaultZone      string
}

// Validate checks that the template describes at least one slot.
func (t Template) Validate() error {
	if t.Aisles <= 0 || t.RacksPerAisle <= 0 || t.PositionsPerRack <= 0 {
		return fmt.Errorf("template dimensions must be positive (aisles=%d racks=%d positions=%d)",
			t.Aisles, t.RacksPerAisle, t.PositionsPerRack)
	}
	if strings.TrimSpace(t.Levels) == "" {
		return fmt.Errorf("template levels must not be empty")
	}
	return nil
}

// Contains reports whether code is a storage slot inside the template grid.
func (t Template) Contains(code string) bool {
	slot, ok := ParseStorage(code)
	if !ok {
		return false
	}
	return slot.Aisle >= 1 && slot.Aisle <= t.Aisles &&
		slot.Rack >= 1 && slot.Rack <= t.RacksPerAisle &&
		slot.Position >= 1 && slot.Position <= t.PositionsPerRack &&
		strings.Contains(strings.ToUpper(t.Levels), slot.Level)
}

// SlotCount returns how many storage slots the template describes.
func (t Template) SlotCount() int {
	return t.Aisles * t.RacksPerAisle * t.PositionsPerRack * len(strings.TrimSpace(t.Levels))
}

// Virtual answers storage lookups from a Template and everything else
// (special areas, physical overrides) from an explicit Registry.
type Virtual struct {
	template Template
	explicit *Registry
}

// NewVirtual creates a virtual topology. explicit holds special areas and
// hand-registered locations; they take precedence over the template.
func NewVirtual(t Template, explicit ...Descriptor) *Virtual {
	if t.DefaultCapacity <= 0 {
		t.DefaultCapacity = 1
	}
	t.DefaultZone = strings.ToUpper(strings.TrimSpace(t.DefaultZone))
	if t.DefaultZone == "" {
		t.DefaultZone = "GENERAL"
	}
	return &Virtual{template: t, explicit: NewRegistry(explicit...)}
}

// Template returns the template backing v.
func (v *Virtual) Template() Template { return v.template }

// Descriptors returns the explicitly registered locations of v. Template
// slots are not materialized.
func (v *Virtual) Descriptors() []Descriptor { return v.explicit.Descriptors() }

func (v *Virtual) Lookup(code string) (Descriptor, error) {
	if d, err := v.explicit.Lookup(code); err == nil {
		return d, nil
	}
	canonical := ToCanonical(code)
	if !v.template.Contains(canonical) {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownLocation, canonical)
	}
	return Descriptor{
		Code:     canonical,
		Type:     TypeStorage,
		Capacity: v.template.DefaultCapacity,
		Zone:     v.template.DefaultZone,
	}, nil
}

func (v *Virtual) Override(code string) (Descriptor, bool) {
	return v.explicit.Override(code)
}

// Compile-time interface checks
var (
	_ Topology       = (*Registry)(nil)
	_ OverrideSource = (*Registry)(nil)
	_ Topology       = (*Virtual)(nil)
	_ OverrideSource = (*Virtual)(nil)
)
