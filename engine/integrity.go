package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/warewise/rule-engine/location"
)

// integrityEvaluator flags data that cannot be right regardless of the
// warehouse layout:
//   - a pallet id seen at more than one distinct location or creation time
//     (one anomaly per pallet, reported on its first row)
//   - a location code no warehouse could use
//
// Exact repeats of the same row are not duplicates. Rows without a pallet
// id are skipped.
type integrityEvaluator struct {
	cond DataIntegrityConditions
}

type sighting struct {
	location string
	created  time.Time
}

func (e *integrityEvaluator) Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error) {
	var out []Anomaly
	if e.cond.CheckDuplicates {
		out = append(out, e.duplicates(rc, inventory)...)
	}
	if e.cond.CheckImpossibleLocations {
		out = append(out, e.impossible(rc, inventory)...)
	}
	return out, nil
}

func (e *integrityEvaluator) duplicates(rc *RuleContext, inventory []InventoryRecord) []Anomaly {
	var order []string
	rows := make(map[string][]InventoryRecord)
	for _, rec := range inventory {
		id := strings.TrimSpace(rec.PalletID)
		if id == "" {
			continue
		}
		if _, seen := rows[id]; !seen {
			order = append(order, id)
		}
		rows[id] = append(rows[id], rec)
	}

	var out []Anomaly
	for _, id := range order {
		recs := rows[id]
		if len(recs) < 2 {
			continue
		}

		distinct := make(map[sighting]bool)
		var locations []string
		seenLoc := make(map[string]bool)
		for _, rec := range recs {
			canonical := location.ToCanonical(rec.Location)
			distinct[sighting{location: canonical, created: rec.CreatedAt.UTC()}] = true
			if !seenLoc[canonical] {
				seenLoc[canonical] = true
				locations = append(locations, canonical)
			}
		}
		if len(distinct) < 2 || rc.Skip(recs[0].PalletID) {
			continue
		}

		out = append(out, rc.anomaly(recs[0],
			fmt.Sprintf("Pallet %s appears %d times across %d location(s)", id, len(recs), len(locations)),
			Details{
				Reason:      "duplicate pallet id",
				Occurrences: len(recs),
				Locations:   locations,
			}))
	}
	return out
}

func (e *integrityEvaluator) impossible(rc *RuleContext, inventory []InventoryRecord) []Anomaly {
	var out []Anomaly
	for _, rec := range inventory {
		canonical := location.ToCanonical(rec.Location)
		if rec.PalletID == "" || canonical == "" {
			continue
		}
		reason, bad := impossibleLocation(canonical, e.cond.MaxLocationLength)
		if !bad || rc.Skip(rec.PalletID) {
			continue
		}
		out = append(out, rc.anomaly(rec,
			fmt.Sprintf("Impossible location %q: %s", rec.Location, reason),
			Details{Reason: reason}))
	}
	return out
}
