package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warewise/rule-engine/location"
)

// lotsEvaluator finds stragglers: members of a lot still sitting in a
// watched ("pending") location type after most of the lot has moved on.
//
// completion = members not in a watched type / lot size. A lot is
// flagged when completion >= threshold (inclusive). Lots of one pallet
// have no completion concept and are never flagged.
type lotsEvaluator struct {
	cond UncoordinatedLotsConditions
}

type lotMember struct {
	rec     InventoryRecord
	pending bool
}

func (e *lotsEvaluator) Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error) {
	var order []string
	lots := make(map[string][]lotMember)

	for _, rec := range inventory {
		lot := strings.TrimSpace(rec.ReceiptNumber)
		if lot == "" || rec.PalletID == "" {
			continue
		}
		typ, err := rc.locationType(rec)
		if err != nil {
			return nil, err
		}
		if _, seen := lots[lot]; !seen {
			order = append(order, lot)
		}
		lots[lot] = append(lots[lot], lotMember{rec: rec, pending: containsType(e.cond.LocationTypes, typ)})
	}

	var out []Anomaly
	for _, lot := range order {
		members := lots[lot]
		if len(members) < 2 {
			continue
		}

		completed := 0
		for _, m := range members {
			if !m.pending {
				completed++
			}
		}
		if completed == len(members) {
			continue
		}

		total := decimal.NewFromInt(int64(len(members)))
		done := decimal.NewFromInt(int64(completed))
		if done.LessThan(e.cond.CompletionThreshold.Mul(total)) {
			continue
		}
		ratio := done.Div(total).Round(4).InexactFloat64()

		for _, m := range members {
			if !m.pending || rc.Skip(m.rec.PalletID) {
				continue
			}
			out = append(out, rc.anomaly(m.rec,
				fmt.Sprintf("Lot %s is %.0f%% complete but this pallet is still in %s",
					lot, ratio*100, location.ToCanonical(m.rec.Location)),
				Details{
					LotID:           lot,
					LotSize:         len(members),
					CompletionRatio: ratio,
				}))
		}
	}
	return out, nil
}
