/*
Package location models warehouse locations: how codes are spelled, how they
are canonicalized, and how a warehouse topology is looked up.

PURPOSE:
  Uploaded inventory spells the same slot in many ways ("01A01A",
  "1-1-1A", "01-01-001A"). Everything downstream compares canonical codes
  only, so this package owns the single normalization routine and the
  read-only topology capability the rule engine consults.

KEY CONCEPTS:
  - Type: declared kind of a location (STORAGE, RECEIVING, STAGING, ...)
  - Descriptor: canonical code + type + capacity + zone
  - Topology: lookup-by-code capability supplied per warehouse
  - Canonical: the one normalized spelling of a code

SEE ALSO:
  - canonical.go: ToCanonical, ValidateFormat, SearchVariants
  - topology.go: Registry and template-driven Virtual topologies
  - glob.go: case-insensitive wildcard patterns
*/
package location

import "strings"

// =============================================================================
// LOCATION TYPE
// =============================================================================

type Type string

const (
	TypeStorage      Type = "STORAGE"
	TypeReceiving    Type = "RECEIVING"
	TypeStaging      Type = "STAGING"
	TypeDock         Type = "DOCK"
	TypeTransitional Type = "TRANSITIONAL"
	TypeUnknown      Type = "UNKNOWN"
)

// ParseType maps free-form type labels onto the closed set of types.
// AISLE is an alias of TRANSITIONAL; anything unrecognized is TypeUnknown.
func ParseType(s string) Type {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STORAGE", "RACK", "SLOT":
		return TypeStorage
	case "RECEIVING", "RECV", "INBOUND":
		return TypeReceiving
	case "STAGING", "STAGE":
		return TypeStaging
	case "DOCK", "SHIPPING":
		return TypeDock
	case "TRANSITIONAL", "AISLE", "TRANSIT":
		return TypeTransitional
	default:
		return TypeUnknown
	}
}

// IsKnown reports whether t is one of the declared types.
func (t Type) IsKnown() bool {
	return t != "" && t != TypeUnknown
}

// =============================================================================
// DESCRIPTOR
// =============================================================================

// Descriptor is one location as supplied by a topology provider.
// Capacity is the number of pallets the location holds; zero means the
// capacity is not tracked.
type Descriptor struct {
	Code     string
	Type     Type
	Capacity int
	Zone     string

	// Manual marks a hand-registered physical location. Manual locations are
	// valid regardless of what the template engine thinks of the code.
	Manual bool
}

// normalized returns d with a canonical code, upper-cased zone and the
// storage capacity default applied.
func (d Descriptor) normalized() Descriptor {
	d.Code = ToCanonical(d.Code)
	d.Zone = strings.ToUpper(strings.TrimSpace(d.Zone))
	if !d.Type.IsKnown() {
		d.Type = TypeUnknown
	}
	if d.Type == TypeStorage && d.Capacity <= 0 {
		d.Capacity = 1
	}
	return d
}
