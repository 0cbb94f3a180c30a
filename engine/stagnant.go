package engine

import (
	"fmt"

	"github.com/warewise/rule-engine/location"
)

// stagnantEvaluator flags pallets that have sat in a watched location type
// for longer than the threshold. The comparison is strict: a pallet exactly
// at the threshold is not stagnant yet.
type stagnantEvaluator struct {
	cond StagnantConditions
}

func (e *stagnantEvaluator) Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error) {
	threshold := e.cond.Threshold()

	var out []Anomaly
	for _, rec := range inventory {
		if rec.PalletID == "" || !rec.HasTimestamp() {
			continue
		}
		typ, err := rc.locationType(rec)
		if err != nil {
			return nil, err
		}
		if !containsType(e.cond.LocationTypes, typ) {
			continue
		}

		age := rc.age(rec)
		if age <= threshold || rc.Skip(rec.PalletID) {
			continue
		}
		hours := roundHours(age)
		out = append(out, rc.anomaly(rec,
			fmt.Sprintf("Pallet in %s for %.1fh (threshold %.1fh)", typ, hours, e.cond.ThresholdHours),
			Details{
				LocationType:   typ,
				HoursStagnant:  hours,
				ThresholdHours: e.cond.ThresholdHours,
			}))
	}
	return out, nil
}

// locationStagnantEvaluator is the stagnant check keyed by a location-code
// glob rather than a location type. It needs no topology.
type locationStagnantEvaluator struct {
	cond    LocationSpecificStagnantConditions
	pattern location.Glob
}

func newLocationStagnantEvaluator(c LocationSpecificStagnantConditions) (Evaluator, error) {
	g, err := location.CompileGlob(c.LocationPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}
	return &locationStagnantEvaluator{cond: c, pattern: g}, nil
}

func (e *locationStagnantEvaluator) Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error) {
	threshold := e.cond.Threshold()

	var out []Anomaly
	for _, rec := range inventory {
		if rec.PalletID == "" || !rec.HasTimestamp() {
			continue
		}
		canonical := location.ToCanonical(rec.Location)
		if canonical == "" || !e.pattern.Match(canonical) {
			continue
		}

		age := rc.age(rec)
		if age <= threshold || rc.Skip(rec.PalletID) {
			continue
		}
		hours := roundHours(age)
		out = append(out, rc.anomaly(rec,
			fmt.Sprintf("Pallet stuck in %s for %.1fh (threshold %.1fh)", canonical, hours, e.cond.ThresholdHours),
			Details{
				HoursStagnant:  hours,
				ThresholdHours: e.cond.ThresholdHours,
				Pattern:        e.pattern.String(),
			}))
	}
	return out, nil
}
