/*
overcapacity.go - Occupancy vs capacity

PURPOSE:
  Groups inventory rows by canonical location and flags locations holding
  more pallets than their capacity.

MODES:
  Legacy (UseLocationDifferentiation=false):
    every pallet at an over-capacity location gets its own anomaly, with
    the rule's priority.

  Differentiated (UseLocationDifferentiation=true):
    STORAGE locations keep per-pallet anomalies at CRITICAL. SPECIAL
    locations get exactly one WARNING anomaly per location carrying the
    affected pallet count and capacity percentage.

    STAGE-01, capacity 10, 12 pallets:
      legacy         -> 12 anomalies
      differentiated -> 1 anomaly, affected_pallets=12, capacity_percentage=120

SKIPPED:
  Locations the topology does not know (the invalid-location rule reports
  those) and locations with capacity 0 (capacity not tracked).
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warewise/rule-engine/location"
)

type overcapacityEvaluator struct {
	cond OvercapacityConditions
}

func (e *overcapacityEvaluator) Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error) {
	var order []string
	occupants := make(map[string][]InventoryRecord)
	for _, rec := range inventory {
		canonical := location.ToCanonical(rec.Location)
		if canonical == "" || rec.PalletID == "" {
			continue
		}
		if _, seen := occupants[canonical]; !seen {
			order = append(order, canonical)
		}
		occupants[canonical] = append(occupants[canonical], rec)
	}

	var out []Anomaly
	for _, code := range order {
		d, err := rc.Lookup(code)
		if errors.Is(err, location.ErrUnknownLocation) {
			continue
		}
		if err != nil {
			return nil, err
		}

		recs := occupants[code]
		if d.Capacity <= 0 || len(recs) <= d.Capacity {
			continue
		}

		category, priority := Classify(d)
		details := Details{
			LocationType:       d.Type,
			Category:           category,
			Capacity:           d.Capacity,
			Occupancy:          len(recs),
			CapacityPercentage: capacityPercentage(len(recs), d.Capacity),
			AffectedPallets:    len(recs),
		}

		if e.cond.UseLocationDifferentiation && category == CategorySpecial {
			if a, ok := e.aggregate(rc, d, recs, priority, details); ok {
				out = append(out, a)
			}
			continue
		}

		for _, rec := range recs {
			if rc.Skip(rec.PalletID) {
				continue
			}
			a := rc.anomaly(rec,
				fmt.Sprintf("%s holds %d pallets, capacity %d", d.Code, len(recs), d.Capacity),
				details)
			if e.cond.UseLocationDifferentiation {
				a.Priority = priority
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// aggregate emits the single location-level anomaly for a special area,
// reported against the first pallet there that is not suppressed.
func (e *overcapacityEvaluator) aggregate(rc *RuleContext, d location.Descriptor, recs []InventoryRecord, priority Priority, details Details) (Anomaly, bool) {
	for _, rec := range recs {
		if rc.Skip(rec.PalletID) {
			continue
		}
		a := rc.anomaly(rec,
			fmt.Sprintf("%s is at %.0f%% capacity (%d pallets, capacity %d)",
				d.Code, details.CapacityPercentage, len(recs), d.Capacity),
			details)
		a.Priority = priority
		return a, true
	}
	return Anomaly{}, false
}

func capacityPercentage(occupancy, capacity int) float64 {
	return decimal.NewFromInt(int64(occupancy)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(capacity))).
		Round(2).
		InexactFloat64()
}
