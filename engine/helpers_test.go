package engine_test

import (
	"errors"
	"fmt"
	"time"

	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/location"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.June, 2, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestEngine(opts ...engine.Option) *engine.Engine {
	return engine.New(append([]engine.Option{engine.WithClock(fixedClock)}, opts...)...)
}

// testTopology is a 2x2x10 grid (levels A-B) with a few special areas and
// one cold storage slot.
func testTopology() *location.Virtual {
	return location.NewVirtual(
		location.Template{
			Aisles:           2,
			RacksPerAisle:    2,
			PositionsPerRack: 10,
			Levels:           "AB",
			DefaultCapacity:  1,
			DefaultZone:      "GENERAL",
		},
		location.Descriptor{Code: "RECV-01", Type: location.TypeReceiving, Capacity: 20, Zone: "GENERAL"},
		location.Descriptor{Code: "STAGE-01", Type: location.TypeStaging, Capacity: 10, Zone: "GENERAL"},
		location.Descriptor{Code: "AISLE-01", Type: location.TypeTransitional, Zone: "GENERAL"},
		location.Descriptor{Code: "02-01-001A", Type: location.TypeStorage, Capacity: 1, Zone: "COLD"},
		location.Descriptor{Code: "CAGE-01", Type: location.TypeStorage, Capacity: 4, Zone: "GENERAL", Manual: true},
	)
}

func row(pallet, loc string, age time.Duration) engine.InventoryRecord {
	return engine.InventoryRecord{
		PalletID:  pallet,
		Location:  loc,
		CreatedAt: testNow.Add(-age),
	}
}

func lotRow(pallet, loc, lot string) engine.InventoryRecord {
	r := row(pallet, loc, time.Hour)
	r.ReceiptNumber = lot
	return r
}

func rule(id string, t engine.RuleType, precedence int, cond engine.Conditions) engine.RuleConfig {
	return engine.RuleConfig{
		ID:         id,
		Name:       id,
		Type:       t,
		Priority:   engine.PriorityHigh,
		Precedence: precedence,
		Conditions: cond,
	}
}

func evaluate(r engine.RuleConfig, topo location.Topology, inventory ...engine.InventoryRecord) ([]engine.Anomaly, error) {
	ev, err := engine.NewEvaluator(r)
	if err != nil {
		return nil, err
	}
	return ev.Evaluate(engine.NewRuleContext(r, testNow, topo, nil), inventory)
}

func palletIDs(anomalies []engine.Anomaly) []string {
	ids := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		ids = append(ids, a.PalletID)
	}
	return ids
}

// =============================================================================
// TOPOLOGY DOUBLES
// =============================================================================

// failingTopology fails every lookup.
type failingTopology struct{}

func (failingTopology) Lookup(string) (location.Descriptor, error) {
	return location.Descriptor{}, errors.New("connection refused")
}

// panickingTopology panics on every lookup.
type panickingTopology struct{}

func (panickingTopology) Lookup(string) (location.Descriptor, error) {
	panic("topology exploded")
}

// countingTopology answers from a registry and counts lookups per code.
// Every call after the first answers differently, so callers that do not
// cache see an unstable topology.
type countingTopology struct {
	inner *location.Registry
	calls map[string]int
}

func newCountingTopology(descs ...location.Descriptor) *countingTopology {
	return &countingTopology{inner: location.NewRegistry(descs...), calls: make(map[string]int)}
}

func (c *countingTopology) Lookup(code string) (location.Descriptor, error) {
	c.calls[code]++
	if c.calls[code] > 1 {
		return location.Descriptor{}, fmt.Errorf("%w: %s moved", location.ErrUnknownLocation, code)
	}
	return c.inner.Lookup(code)
}
