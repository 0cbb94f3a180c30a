package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warewise/rule-engine/location"
)

// temperatureEvaluator flags temperature-sensitive products (description
// matches one of the product globs) stored in a prohibited zone.
type temperatureEvaluator struct {
	products []location.Glob
	zones    map[string]bool
}

func newTemperatureEvaluator(c TemperatureZoneConditions) (Evaluator, error) {
	globs, err := location.CompileGlobs(c.ProductPatterns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}
	zones := make(map[string]bool, len(c.ProhibitedZones))
	for _, z := range c.ProhibitedZones {
		zones[strings.ToUpper(strings.TrimSpace(z))] = true
	}
	return &temperatureEvaluator{products: globs, zones: zones}, nil
}

func (e *temperatureEvaluator) Evaluate(rc *RuleContext, inventory []InventoryRecord) ([]Anomaly, error) {
	var out []Anomaly
	for _, rec := range inventory {
		if rec.PalletID == "" || strings.TrimSpace(rec.Description) == "" {
			continue
		}
		pattern, ok := e.matchProduct(rec.Description)
		if !ok {
			continue
		}

		d, err := rc.Lookup(rec.Location)
		if errors.Is(err, location.ErrUnknownLocation) {
			continue
		}
		if err != nil {
			return nil, err
		}
		zone := strings.ToUpper(d.Zone)
		if !e.zones[zone] || rc.Skip(rec.PalletID) {
			continue
		}

		out = append(out, rc.anomaly(rec,
			fmt.Sprintf("%q stored in %s zone at %s", rec.Description, zone, d.Code),
			Details{Zone: zone, Pattern: pattern, LocationType: d.Type}))
	}
	return out, nil
}

func (e *temperatureEvaluator) matchProduct(description string) (string, bool) {
	for _, g := range e.products {
		if g.Match(description) {
			return g.String(), true
		}
	}
	return "", false
}
