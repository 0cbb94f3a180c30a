/*
canonical.go - Location code canonicalization

PURPOSE:
  Turns any known spelling of a location code into its single canonical
  form. Canonicalization is a pure string transform: no lookups, no I/O,
  and ToCanonical(ToCanonical(x)) == ToCanonical(x) for every input.

FORMAT FAMILIES (checked in this order, first match wins):
  1. Canonical storage   01-01-001A     aisle-rack-position + level
  2. Compact             01A01A         rack, letter, position, level (aisle 1)
  3. Loose numeric       1-1-1A         any digit counts, re-padded
  4. Prefixed            USER_WH1_...   prefix stripped, remainder recursed
                         WH2_...
  5. Special area        RECV-1, DOCK   token + optional number (2-digit pad)
  6. Anything else       trimmed and upper-cased, otherwise unchanged

  Unrecognized codes are not errors. Whether a code really exists is decided
  by the topology, never here.

EXAMPLES:
  ToCanonical("01A01A")     // "01-01-001A"
  ToCanonical("1-1-1A")     // "01-01-001A"
  ToCanonical("recv-1")     // "RECV-01"
  ToCanonical("WH3_STAGE2") // "STAGE-02"
*/
package location

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	canonicalStorageRe = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{3})([A-Z])$`)
	compactRe          = regexp.MustCompile(`^(\d{2})([A-Z])(\d{2})([A-Z])$`)
	looseRe            = regexp.MustCompile(`^(\d+)-(\d+)-(\d+)([A-Z])$`)
	userPrefixRe       = regexp.MustCompile(`^USER_[A-Z0-9-]+_(.+)$`)
	warehousePrefixRe  = regexp.MustCompile(`^WH\d+_(.+)$`)
	specialAreaRe      = regexp.MustCompile(`^(RECEIVING|RECV|STAGING|STAGE|SHIPPING|DOCK|AISLE)(?:[-_]?(\d+))?$`)

	// storageShapeRe matches every storage code ToCanonical can emit,
	// including aisles or racks wider than two digits.
	storageShapeRe = regexp.MustCompile(`^(\d{2,})-(\d{2,})-(\d{3,})([A-Z])$`)
)

// specialAreaTypes maps special-area tokens to the type they imply.
var specialAreaTypes = map[string]Type{
	"RECEIVING": TypeReceiving,
	"RECV":      TypeReceiving,
	"STAGING":   TypeStaging,
	"STAGE":     TypeStaging,
	"SHIPPING":  TypeDock,
	"DOCK":      TypeDock,
	"AISLE":     TypeTransitional,
}

// =============================================================================
// FORMAT DETECTION
// =============================================================================

// Format identifies which format family a raw code matched.
type Format string

const (
	FormatCanonical    Format = "CANONICAL"
	FormatCompact      Format = "COMPACT"
	FormatLoose        Format = "LOOSE"
	FormatPrefixed     Format = "PREFIXED"
	FormatSpecialArea  Format = "SPECIAL_AREA"
	FormatUnrecognized Format = "UNRECOGNIZED"
)

// FormatResult is the diagnostic view of one canonicalization.
type FormatResult struct {
	Parseable bool
	Format    Format
	Canonical string
}

// ToCanonical returns the canonical spelling of raw. Empty input yields "".
func ToCanonical(raw string) string {
	canonical, _, _ := canonicalize(normalizeInput(raw))
	return canonical
}

// ValidateFormat reports which format family raw belongs to. It does not
// consult any topology. A prefixed code is parseable only when its remainder is.
func ValidateFormat(raw string) FormatResult {
	canonical, format, ok := canonicalize(normalizeInput(raw))
	return FormatResult{Parseable: ok, Format: format, Canonical: canonical}
}

func normalizeInput(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func canonicalize(s string) (string, Format, bool) {
	if s == "" {
		return "", FormatUnrecognized, false
	}

	if m := canonicalStorageRe.FindStringSubmatch(s); m != nil {
		if out, ok := storageFromParts(m[1], m[2], m[3], m[4]); ok {
			return out, FormatCanonical, true
		}
	}

	// Compact codes follow the rack-in-aisle-1 convention: the leading pair
	// is the rack, the middle letter carries no slot information.
	if m := compactRe.FindStringSubmatch(s); m != nil {
		if out, ok := storageFromParts("1", m[1], m[3], m[4]); ok {
			return out, FormatCompact, true
		}
	}

	if m := looseRe.FindStringSubmatch(s); m != nil {
		if out, ok := storageFromParts(m[1], m[2], m[3], m[4]); ok {
			return out, FormatLoose, true
		}
	}

	for _, re := range []*regexp.Regexp{userPrefixRe, warehousePrefixRe} {
		if m := re.FindStringSubmatch(s); m != nil {
			inner, _, ok := canonicalize(normalizeInput(m[1]))
			return inner, FormatPrefixed, ok
		}
	}

	if m := specialAreaRe.FindStringSubmatch(s); m != nil {
		if m[2] == "" {
			return m[1], FormatSpecialArea, true
		}
		n, err := strconv.Atoi(m[2])
		if err == nil {
			return fmt.Sprintf("%s-%02d", m[1], n), FormatSpecialArea, true
		}
	}

	return s, FormatUnrecognized, false
}

func storageFromParts(aisle, rack, position, level string) (string, bool) {
	a, errA := strconv.Atoi(aisle)
	r, errR := strconv.Atoi(rack)
	p, errP := strconv.Atoi(position)
	if errA != nil || errR != nil || errP != nil {
		return "", false
	}
	return formatStorage(a, r, p, level), true
}

func formatStorage(aisle, rack, position int, level string) string {
	return fmt.Sprintf("%02d-%02d-%03d%s", aisle, rack, position, level)
}

// =============================================================================
// CODE INSPECTION
// =============================================================================

// StorageSlot is a parsed canonical storage code.
type StorageSlot struct {
	Aisle    int
	Rack     int
	Position int
	Level    string
}

// ParseStorage splits a storage code into its parts. The code is
// canonicalized first.
func ParseStorage(code string) (StorageSlot, bool) {
	m := storageShapeRe.FindStringSubmatch(ToCanonical(code))
	if m == nil {
		return StorageSlot{}, false
	}
	a, _ := strconv.Atoi(m[1])
	r, _ := strconv.Atoi(m[2])
	p, _ := strconv.Atoi(m[3])
	return StorageSlot{Aisle: a, Rack: r, Position: p, Level: m[4]}, true
}

// IsStorageCode reports whether code canonicalizes to a storage slot.
func IsStorageCode(code string) bool {
	_, ok := ParseStorage(code)
	return ok
}

// InferType derives a location type from the shape of the code alone.
// Codes with no recognizable shape return TypeUnknown.
func InferType(code string) Type {
	canonical := ToCanonical(code)
	if storageShapeRe.MatchString(canonical) {
		return TypeStorage
	}
	if m := specialAreaRe.FindStringSubmatch(canonical); m != nil {
		return specialAreaTypes[m[1]]
	}
	return TypeUnknown
}

// =============================================================================
// SEARCH VARIANTS
// =============================================================================

// maxSearchVariants bounds SearchVariants. Legacy lookups only need the
// handful of spellings that actually occur in old uploads.
const maxSearchVariants = 5

// SearchVariants returns up to five alternate spellings of a code for
// lookups against legacy data. The canonical form is always first.
func SearchVariants(code string) []string {
	canonical := ToCanonical(code)
	if canonical == "" {
		return nil
	}

	candidates := []string{canonical}
	if slot, ok := ParseStorage(canonical); ok {
		candidates = append(candidates,
			fmt.Sprintf("%d-%d-%d%s", slot.Aisle, slot.Rack, slot.Position, slot.Level),
		)
		if slot.Aisle == 1 && slot.Rack <= 99 && slot.Position <= 99 {
			candidates = append(candidates, fmt.Sprintf("%02dA%02d%s", slot.Rack, slot.Position, slot.Level))
		}
		candidates = append(candidates,
			strings.ReplaceAll(canonical, "-", ""),
			strings.ReplaceAll(canonical, "-", "_"),
		)
	} else if m := specialAreaRe.FindStringSubmatch(canonical); m != nil && m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		candidates = append(candidates,
			fmt.Sprintf("%s-%d", m[1], n),
			fmt.Sprintf("%s%s", m[1], m[2]),
			fmt.Sprintf("%s_%s", m[1], m[2]),
			fmt.Sprintf("%s%d", m[1], n),
		)
	}

	seen := make(map[string]bool, len(candidates))
	variants := make([]string, 0, maxSearchVariants)
	for _, c := range candidates {
		if seen[c] || len(variants) == maxSearchVariants {
			continue
		}
		seen[c] = true
		variants = append(variants, c)
	}
	return variants
}
