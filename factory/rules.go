/*
Package factory converts rule, topology and inventory definitions into
engine types.

PURPOSE:
  Rules are stored and exchanged as definitions with a free-form condition
  bag. The factory parses each bag into the typed condition struct of its
  rule type exactly once, when the rule is loaded. Evaluators never see a
  bag.

RULE SCHEMA (JSON or YAML):
  {
    "id": "stagnant-receiving",
    "name": "Forgotten pallets in receiving",
    "rule_type": "STAGNANT_PALLETS",
    "priority": "VERY_HIGH",
    "precedence": 3,
    "conditions": {
      "location_types": ["RECEIVING"],
      "time_threshold_hours": 6
    },
    "exclude_if_flagged_by": ["INVALID_LOCATION"]
  }

ERRORS:
  A definition with a bad condition bag or unknown rule type still becomes
  a RuleConfig, with LoadErr set. The engine reports such a rule as failed
  and keeps evaluating the others. Only a document that cannot be decoded
  at all is an error for the caller.

USAGE:
  rules, err := factory.LoadRuleSet("rules.yaml")
  analysis := eng.Evaluate(rows, wc, rules)

SEE ALSO:
  - engine/conditions.go: typed condition structs
  - presets.go: default rule catalogue
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/location"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// RuleDefinition is the serialized form of a rule.
type RuleDefinition struct {
	ID                 string         `json:"id" yaml:"id"`
	Name               string         `json:"name" yaml:"name"`
	RuleType           string         `json:"rule_type" yaml:"rule_type"`
	Priority           string         `json:"priority,omitempty" yaml:"priority,omitempty"`
	Precedence         int            `json:"precedence" yaml:"precedence"`
	Disabled           bool           `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Conditions         map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	ExcludeIfFlaggedBy []string       `json:"exclude_if_flagged_by" yaml:"exclude_if_flagged_by,omitempty"`
}

// RuleSet is a file holding several rules.
type RuleSet struct {
	Rules []RuleDefinition `json:"rules" yaml:"rules"`
}

// ConditionError describes one bad condition key.
type ConditionError struct {
	RuleID string
	Key    string
	Err    error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("rule %s: condition %q: %v", e.RuleID, e.Key, e.Err)
}

func (e *ConditionError) Unwrap() []error {
	return []error{engine.ErrInvalidConditions, e.Err}
}

// =============================================================================
// PARSING
// =============================================================================

// ParseRule converts a definition. Configuration problems end up in the
// returned rule's LoadErr.
func ParseRule(def RuleDefinition) engine.RuleConfig {
	rc := engine.RuleConfig{
		ID:         strings.TrimSpace(def.ID),
		Name:       def.Name,
		Precedence: def.Precedence,
		Disabled:   def.Disabled,
	}

	var errs []error
	typ, ok := engine.ParseRuleType(def.RuleType)
	rc.Type = typ
	if !ok {
		rc.LoadErr = fmt.Errorf("%w: %q", engine.ErrUnknownRuleType, def.RuleType)
		return rc
	}

	if def.Priority != "" {
		p, ok := engine.ParsePriority(def.Priority)
		if !ok {
			errs = append(errs, &ConditionError{RuleID: rc.ID, Key: "priority", Err: fmt.Errorf("unknown priority %q", def.Priority)})
		}
		rc.Priority = p
	}

	if def.ExcludeIfFlaggedBy != nil {
		rc.ExcludeIfFlaggedBy = make([]engine.RuleType, 0, len(def.ExcludeIfFlaggedBy))
		for _, s := range def.ExcludeIfFlaggedBy {
			t, ok := engine.ParseRuleType(s)
			if !ok {
				errs = append(errs, &ConditionError{RuleID: rc.ID, Key: "exclude_if_flagged_by", Err: fmt.Errorf("unknown rule type %q", s)})
				continue
			}
			rc.ExcludeIfFlaggedBy = append(rc.ExcludeIfFlaggedBy, t)
		}
	}

	cond, err := parseConditions(rc.ID, typ, def.Conditions)
	if err != nil {
		errs = append(errs, err)
	}
	rc.Conditions = cond

	if len(errs) > 0 {
		rc.LoadErr = errors.Join(errs...)
		return rc
	}
	if err := cond.Validate(); err != nil {
		rc.LoadErr = fmt.Errorf("rule %s: %w: %v", rc.ID, engine.ErrInvalidConditions, err)
	}
	return rc
}

// ParseRuleJSON parses a single JSON rule definition.
func ParseRuleJSON(data []byte) (engine.RuleConfig, error) {
	var def RuleDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return engine.RuleConfig{}, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	return ParseRule(def), nil
}

// ParseRuleSet parses a rule set document. ext selects the format
// (".json", ".yaml" or ".yml").
func ParseRuleSet(data []byte, ext string) ([]engine.RuleConfig, error) {
	defs, err := ParseRuleDefinitions(data, ext)
	if err != nil {
		return nil, err
	}
	rules := make([]engine.RuleConfig, 0, len(defs))
	for _, def := range defs {
		rules = append(rules, ParseRule(def))
	}
	return rules, nil
}

// ParseRuleDefinitions decodes a rule set document without parsing the
// condition bags.
func ParseRuleDefinitions(data []byte, ext string) ([]RuleDefinition, error) {
	var set RuleSet
	if err := decode(data, ext, &set); err != nil {
		return nil, err
	}
	return set.Rules, nil
}

// LoadRuleSet reads a rule set file. The format follows the extension.
func LoadRuleSet(path string) ([]engine.RuleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set: %w", err)
	}
	return ParseRuleSet(data, filepath.Ext(path))
}

// LoadRuleDefinitions reads a rule set file as definitions.
func LoadRuleDefinitions(path string) ([]RuleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set: %w", err)
	}
	return ParseRuleDefinitions(data, filepath.Ext(path))
}

func decode(data []byte, ext string, v any) error {
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported file format: %q", ext)
	}
	return nil
}

// =============================================================================
// CONDITION BAGS
// =============================================================================

func parseConditions(ruleID string, t engine.RuleType, raw map[string]any) (engine.Conditions, error) {
	def, err := engine.DefaultConditions(t)
	if err != nil {
		return nil, err
	}
	b := &bag{ruleID: ruleID, m: raw}

	switch d := def.(type) {
	case engine.StagnantConditions:
		d.LocationTypes = b.typesVal("location_types", d.LocationTypes)
		d.ThresholdHours = b.floatVal("time_threshold_hours", d.ThresholdHours)
		def = d
	case engine.UncoordinatedLotsConditions:
		d.CompletionThreshold = b.decimalVal("completion_threshold", d.CompletionThreshold)
		d.LocationTypes = b.typesVal("location_types", d.LocationTypes)
		def = d
	case engine.OvercapacityConditions:
		d.UseLocationDifferentiation = b.boolVal("use_location_differentiation", d.UseLocationDifferentiation)
		def = d
	case engine.InvalidLocationConditions:
		d.MaxLength = b.intVal("max_location_length", d.MaxLength)
		def = d
	case engine.LocationSpecificStagnantConditions:
		d.LocationPattern = b.stringVal("location_pattern", d.LocationPattern)
		d.ThresholdHours = b.floatVal("time_threshold_hours", d.ThresholdHours)
		def = d
	case engine.TemperatureZoneConditions:
		d.ProductPatterns = b.stringsVal("product_patterns", d.ProductPatterns)
		d.ProhibitedZones = b.stringsVal("prohibited_zones", d.ProhibitedZones)
		def = d
	case engine.DataIntegrityConditions:
		d.CheckDuplicates = b.boolVal("check_duplicates", d.CheckDuplicates)
		d.CheckImpossibleLocations = b.boolVal("check_impossible_locations", d.CheckImpossibleLocations)
		d.MaxLocationLength = b.intVal("max_location_length", d.MaxLocationLength)
		def = d
	case engine.LocationMappingConditions:
	}
	return def, b.err()
}

// bag reads typed values out of a decoded condition map. Missing keys keep
// their default; malformed values are collected as ConditionErrors.
type bag struct {
	ruleID string
	m      map[string]any
	errs   []error
}

func (b *bag) fail(key string, format string, args ...any) {
	b.errs = append(b.errs, &ConditionError{RuleID: b.ruleID, Key: key, Err: fmt.Errorf(format, args...)})
}

func (b *bag) err() error { return errors.Join(b.errs...) }

func (b *bag) get(key string) (any, bool) {
	v, ok := b.m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (b *bag) floatVal(key string, def float64) float64 {
	d := b.decimalVal(key, decimal.NewFromFloat(def))
	return d.InexactFloat64()
}

func (b *bag) decimalVal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := b.get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err == nil {
			return d
		}
	}
	b.fail(key, "expected a number, got %v", v)
	return def
}

func (b *bag) intVal(key string, def int) int {
	d := b.decimalVal(key, decimal.NewFromInt(int64(def)))
	if !d.IsInteger() {
		b.fail(key, "expected an integer, got %s", d)
		return def
	}
	return int(d.IntPart())
}

func (b *bag) boolVal(key string, def bool) bool {
	v, ok := b.get(key)
	if !ok {
		return def
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	b.fail(key, "expected a boolean, got %v", v)
	return def
}

func (b *bag) stringVal(key string, def string) string {
	v, ok := b.get(key)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		b.fail(key, "expected a string, got %v", v)
		return def
	}
	return s
}

// strings accepts a list or a single comma-separated string.
func (b *bag) stringsVal(key string, def []string) []string {
	v, ok := b.get(key)
	if !ok {
		return def
	}
	var out []string
	switch x := v.(type) {
	case string:
		for _, part := range strings.Split(x, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	case []string:
		out = append(out, x...)
	case []any:
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				b.fail(key, "expected a list of strings, got element %v", item)
				return def
			}
			out = append(out, s)
		}
	default:
		b.fail(key, "expected a list of strings, got %v", v)
		return def
	}
	return out
}

func (b *bag) typesVal(key string, def []location.Type) []location.Type {
	raw := b.stringsVal(key, nil)
	if raw == nil {
		return def
	}
	types := make([]location.Type, 0, len(raw))
	for _, s := range raw {
		t := location.ParseType(s)
		if !t.IsKnown() {
			b.fail(key, "unknown location type %q", s)
			continue
		}
		types = append(types, t)
	}
	return types
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// ToDefinition converts a rule back into its serialized form.
func ToDefinition(r engine.RuleConfig) RuleDefinition {
	def := RuleDefinition{
		ID:         r.ID,
		Name:       r.Name,
		RuleType:   string(r.Type),
		Priority:   string(r.Priority),
		Precedence: r.Precedence,
		Disabled:   r.Disabled,
	}
	if r.ExcludeIfFlaggedBy != nil {
		def.ExcludeIfFlaggedBy = make([]string, 0, len(r.ExcludeIfFlaggedBy))
		for _, t := range r.ExcludeIfFlaggedBy {
			def.ExcludeIfFlaggedBy = append(def.ExcludeIfFlaggedBy, string(t))
		}
	}
	if r.Conditions != nil {
		def.Conditions = conditionBag(r.Conditions)
	}
	return def
}

func typeNames(types []location.Type) []any {
	out := make([]any, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

func stringList(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}

func conditionBag(c engine.Conditions) map[string]any {
	switch x := c.(type) {
	case engine.StagnantConditions:
		return map[string]any{
			"location_types":       typeNames(x.LocationTypes),
			"time_threshold_hours": x.ThresholdHours,
		}
	case engine.UncoordinatedLotsConditions:
		return map[string]any{
			"completion_threshold": x.CompletionThreshold.InexactFloat64(),
			"location_types":       typeNames(x.LocationTypes),
		}
	case engine.OvercapacityConditions:
		return map[string]any{"use_location_differentiation": x.UseLocationDifferentiation}
	case engine.InvalidLocationConditions:
		return map[string]any{"max_location_length": x.MaxLength}
	case engine.LocationSpecificStagnantConditions:
		return map[string]any{
			"location_pattern":     x.LocationPattern,
			"time_threshold_hours": x.ThresholdHours,
		}
	case engine.TemperatureZoneConditions:
		return map[string]any{
			"product_patterns": stringList(x.ProductPatterns),
			"prohibited_zones": stringList(x.ProhibitedZones),
		}
	case engine.DataIntegrityConditions:
		return map[string]any{
			"check_duplicates":           x.CheckDuplicates,
			"check_impossible_locations": x.CheckImpossibleLocations,
			"max_location_length":        x.MaxLocationLength,
		}
	}
	return map[string]any{}
}
