package engine

import (
	"errors"
	"fmt"

	"github.com/warewise/rule-engine/location"
)

// mappingEvaluator flags rows whose declared location type contradicts the
// type implied by the shape of the code, e.g. "01-01-001A" declared as
// RECEIVING. The declared type is the row's own type when present,
// otherwise the topology's. Codes with no recognizable shape are skipped.
type mappingEvaluator struct{}

func (e *mappingEvaluator) Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error) {
	var out []Anomaly
	for _, rec := range inventory {
		canonical := location.ToCanonical(rec.Location)
		if rec.PalletID == "" || canonical == "" {
			continue
		}
		inferred := location.InferType(canonical)
		if !inferred.IsKnown() {
			continue
		}

		declared := rec.LocationType
		if !declared.IsKnown() {
			d, err := rc.Lookup(canonical)
			if errors.Is(err, location.ErrUnknownLocation) {
				continue
			}
			if err != nil {
				return nil, err
			}
			declared = d.Type
		}
		if !declared.IsKnown() || declared == inferred || rc.Skip(rec.PalletID) {
			continue
		}

		out = append(out, rc.anomaly(rec,
			fmt.Sprintf("%s is declared %s but its code indicates %s", canonical, declared, inferred),
			Details{DeclaredType: declared, InferredType: inferred}))
	}
	return out, nil
}
