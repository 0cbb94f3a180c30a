/*
invalid_location.go - Locations that do not exist in the warehouse

PURPOSE:
  Flags every pallet whose location is not a valid location of the
  warehouse. Each distinct canonical location is checked once.

TWO-STAGE CHECK (order matters):
  1. Physical override: a hand-registered location is valid, whatever the
     template or algorithmic validation says about its code. Manually
     created special locations are a business decision and always win.
  2. Topology membership: the topology lookup is authoritative for every
     other code. Unknown codes (including empty ones) are invalid.

  With no topology at all the rule does not fail. It falls back to pattern
  rejection: empty codes, forbidden tokens (INVALID, ERROR, NULL), overlong
  codes and disallowed symbols.
*/
package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/warewise/rule-engine/location"
)

var (
	forbiddenTokens   = []string{"INVALID", "ERROR", "NULL"}
	locationSymbolsRe = regexp.MustCompile(`^[A-Z0-9_-]+$`)
)

// suspiciousLocation applies the topology-free pattern checks to a
// canonical code and returns the reason it is rejected.
func suspiciousLocation(canonical string, maxLen int) (string, bool) {
	if canonical == "" {
		return "missing location", true
	}
	for _, tok := range forbiddenTokens {
		if strings.Contains(canonical, tok) {
			return fmt.Sprintf("contains forbidden token %s", tok), true
		}
	}
	return impossibleLocation(canonical, maxLen)
}

// impossibleLocation reports codes no warehouse could use: overlong codes
// and codes with symbols outside letters, digits, '-' and '_'.
func impossibleLocation(canonical string, maxLen int) (string, bool) {
	if maxLen <= 0 {
		maxLen = DefaultMaxLocationLength
	}
	if len(canonical) > maxLen {
		return fmt.Sprintf("location code longer than %d characters", maxLen), true
	}
	if !locationSymbolsRe.MatchString(canonical) {
		return "location code contains disallowed characters", true
	}
	return "", false
}

type invalidLocationEvaluator struct {
	cond InvalidLocationConditions
}

func (e *invalidLocationEvaluator) Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error) {
	var order []string
	byCode := make(map[string][]InventoryRecord)
	for _, rec := range inventory {
		if rec.PalletID == "" {
			continue
		}
		canonical := location.ToCanonical(rec.Location)
		if _, seen := byCode[canonical]; !seen {
			order = append(order, canonical)
		}
		byCode[canonical] = append(byCode[canonical], rec)
	}

	var out []Anomaly
	for _, code := range order {
		reason, invalid, err := e.check(rc, code)
		if err != nil {
			return nil, err
		}
		if !invalid {
			continue
		}
		for _, rec := range byCode[code] {
			if rc.Skip(rec.PalletID) {
				continue
			}
			desc := fmt.Sprintf("Invalid location %q: %s", rec.Location, reason)
			out = append(out, rc.anomaly(rec, desc, Details{Reason: reason}))
		}
	}
	return out, nil
}

func (e *invalidLocationEvaluator) check(rc *RuleContext, code string) (string, bool, error) {
	// Stage 1: hand-registered physical locations are always valid.
	if _, ok := rc.Override(code); ok {
		return "", false, nil
	}

	if !rc.TopologyAvailable() {
		reason, bad := suspiciousLocation(code, e.cond.MaxLength)
		return reason, bad, nil
	}

	// Stage 2: topology membership.
	_, err := rc.Lookup(code)
	switch {
	case err == nil:
		return "", false, nil
	case errors.Is(err, location.ErrUnknownLocation):
		if code == "" {
			return "missing location", true, nil
		}
		return "not found in warehouse topology", true, nil
	default:
		return "", false, err
	}
}
