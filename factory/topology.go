package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/warewise/rule-engine/location"
)

// LocationDefinition is the serialized form of one location.
type LocationDefinition struct {
	Code     string `json:"code" yaml:"code"`
	Type     string `json:"type" yaml:"type"`
	Capacity int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Zone     string `json:"zone,omitempty" yaml:"zone,omitempty"`
	Manual   bool   `json:"manual,omitempty" yaml:"manual,omitempty"`
}

// TemplateDefinition is the serialized storage grid of a warehouse.
type TemplateDefinition struct {
	Aisles           int    `json:"aisles" yaml:"aisles"`
	RacksPerAisle    int    `json:"racks_per_aisle" yaml:"racks_per_aisle"`
	PositionsPerRack int    `json:"positions_per_rack" yaml:"positions_per_rack"`
	Levels           string `json:"levels" yaml:"levels"`
	DefaultCapacity  int    `json:"default_capacity,omitempty" yaml:"default_capacity,omitempty"`
	DefaultZone      string `json:"default_zone,omitempty" yaml:"default_zone,omitempty"`
}

// TopologyDefinition describes a warehouse: an optional storage template,
// explicit locations and scope exclusion patterns.
type TopologyDefinition struct {
	WarehouseID       string               `json:"warehouse_id" yaml:"warehouse_id"`
	Template          *TemplateDefinition  `json:"template,omitempty" yaml:"template,omitempty"`
	Locations         []LocationDefinition `json:"locations,omitempty" yaml:"locations,omitempty"`
	ExclusionPatterns []string             `json:"exclusion_patterns,omitempty" yaml:"exclusion_patterns,omitempty"`
}

// Descriptor converts a location definition.
func (d LocationDefinition) Descriptor() location.Descriptor {
	return location.Descriptor{
		Code:     d.Code,
		Type:     location.ParseType(d.Type),
		Capacity: d.Capacity,
		Zone:     d.Zone,
		Manual:   d.Manual,
	}
}

// LocationDefinitionOf converts a descriptor back into its serialized form.
func LocationDefinitionOf(d location.Descriptor) LocationDefinition {
	return LocationDefinition{
		Code:     d.Code,
		Type:     string(d.Type),
		Capacity: d.Capacity,
		Zone:     d.Zone,
		Manual:   d.Manual,
	}
}

// Build creates the topology. With a template the result is a
// location.Virtual; otherwise a location.Registry of the explicit locations.
func (d TopologyDefinition) Build() (location.Topology, error) {
	descs := make([]location.Descriptor, 0, len(d.Locations))
	for i, l := range d.Locations {
		if location.ToCanonical(l.Code) == "" {
			return nil, fmt.Errorf("location %d: empty code", i)
		}
		descs = append(descs, l.Descriptor())
	}

	if d.Template == nil {
		return location.NewRegistry(descs...), nil
	}
	t := location.Template{
		Aisles:           d.Template.Aisles,
		RacksPerAisle:    d.Template.RacksPerAisle,
		PositionsPerRack: d.Template.PositionsPerRack,
		Levels:           d.Template.Levels,
		DefaultCapacity:  d.Template.DefaultCapacity,
		DefaultZone:      d.Template.DefaultZone,
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}
	return location.NewVirtual(t, descs...), nil
}

// ParseTopology parses a topology document. ext selects the format.
func ParseTopology(data []byte, ext string) (TopologyDefinition, error) {
	var def TopologyDefinition
	if err := decode(data, ext, &def); err != nil {
		return TopologyDefinition{}, err
	}
	return def, nil
}

// LoadTopology reads a topology file. The format follows the extension.
func LoadTopology(path string) (TopologyDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TopologyDefinition{}, fmt.Errorf("failed to read topology: %w", err)
	}
	return ParseTopology(data, filepath.Ext(path))
}
