package engine

import (
	"errors"
	"fmt"

	"github.com/warewise/rule-engine/location"
)

// ScopeFilter drops inventory rows whose location matches a warehouse
// exclusion pattern. Patterns are case-insensitive globs matched against
// both the raw and the canonical location.
type ScopeFilter struct {
	globs []location.Glob
}

// NewScopeFilter compiles patterns. Invalid patterns are reported in the
// returned error; the filter still applies every valid one.
func NewScopeFilter(patterns []string) (*ScopeFilter, error) {
	f := &ScopeFilter{}
	var errs []error
	for _, p := range patterns {
		g, err := location.CompileGlob(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("exclusion pattern: %w", err))
			continue
		}
		f.globs = append(f.globs, g)
	}
	return f, errors.Join(errs...)
}

// Excludes reports whether rec is out of scope.
func (f *ScopeFilter) Excludes(rec InventoryRecord) bool {
	if f == nil || len(f.globs) == 0 {
		return false
	}
	return location.MatchAny(f.globs, rec.Location) ||
		location.MatchAny(f.globs, location.ToCanonical(rec.Location))
}

// Apply returns the in-scope rows, in input order, and how many were dropped.
func (f *ScopeFilter) Apply(inventory []InventoryRecord) ([]InventoryRecord, int) {
	if f == nil || len(f.globs) == 0 {
		return inventory, 0
	}
	kept := make([]InventoryRecord, 0, len(inventory))
	for _, rec := range inventory {
		if f.Excludes(rec) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept, len(inventory) - len(kept)
}
