/*
Package sqlite provides a SQLite-backed implementation of the repository.

PURPOSE:
  Persists everything the analysis service needs between runs: warehouse
  layouts, scope exclusions, rule definitions and the report archive.
  The engine itself never touches the database; it only sees the
  location.Topology and []engine.RuleConfig built from these tables.

KEY TABLES:
  warehouses:       one row per warehouse, optional storage template (JSON)
  locations:        explicit locations, code kept as registered
  scope_exclusions: glob patterns removed from analysis input
  rules:            rule definitions (versioned, condition bag as JSON)
  analysis_reports: one row per completed analysis
  rule_executions:  one row per rule per report
  anomalies:        one row per anomaly, uuid ids

LEGACY CODES:
  locations.code keeps the spelling a location was registered under.
  FindLocation queries with location.SearchVariants so old spellings
  ("01A01A", "1-1-1A") are found by any equivalent code.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to
  a single connection since every connection would otherwise see its own
  empty database.

USAGE:
  store, err := sqlite.New("./data/warewise.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := analysis.NewService(store, engine.New())

SEE ALSO:
  - analysis/service.go: Repository interface
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/location"
)

// Store implements analysis.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS warehouses (
		id TEXT PRIMARY KEY,
		template_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locations (
		warehouse_id TEXT NOT NULL,
		code TEXT NOT NULL,
		canonical_code TEXT NOT NULL,
		location_type TEXT NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		zone TEXT,
		manual INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		PRIMARY KEY (warehouse_id, canonical_code)
	);

	CREATE INDEX IF NOT EXISTS idx_locations_code
		ON locations(warehouse_id, code);

	CREATE TABLE IF NOT EXISTS scope_exclusions (
		warehouse_id TEXT NOT NULL,
		pattern TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (warehouse_id, pattern)
	);

	CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		name TEXT,
		rule_type TEXT NOT NULL,
		precedence INTEGER NOT NULL,
		disabled INTEGER NOT NULL DEFAULT 0,
		definition_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analysis_reports (
		id TEXT PRIMARY KEY,
		warehouse_id TEXT NOT NULL,
		evaluated_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		inventory_rows INTEGER NOT NULL,
		excluded_rows INTEGER NOT NULL,
		inventory_stats_json TEXT NOT NULL,
		summary_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_warehouse
		ON analysis_reports(warehouse_id, evaluated_at);

	CREATE TABLE IF NOT EXISTS rule_executions (
		report_id TEXT NOT NULL REFERENCES analysis_reports(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		rule_id TEXT NOT NULL,
		rule_name TEXT,
		rule_type TEXT NOT NULL,
		precedence INTEGER NOT NULL,
		success INTEGER NOT NULL,
		error TEXT,
		duration_ns INTEGER NOT NULL,
		suppressed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (report_id, position)
	);

	CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		report_id TEXT NOT NULL REFERENCES analysis_reports(id) ON DELETE CASCADE,
		execution_position INTEGER NOT NULL,
		position INTEGER NOT NULL,
		rule_id TEXT NOT NULL,
		pallet_id TEXT NOT NULL,
		location TEXT NOT NULL,
		canonical_location TEXT NOT NULL,
		anomaly_type TEXT NOT NULL,
		priority TEXT NOT NULL,
		description TEXT,
		details_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_anomalies_report
		ON anomalies(report_id, execution_position, position);
	CREATE INDEX IF NOT EXISTS idx_anomalies_pallet
		ON anomalies(pallet_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// =============================================================================
// WAREHOUSE TOPOLOGY
// =============================================================================

// PutTopology replaces a warehouse's template, locations and exclusions
// atomically.
func (s *Store) PutTopology(ctx context.Context, def factory.TopologyDefinition) error {
	if strings.TrimSpace(def.WarehouseID) == "" {
		return fmt.Errorf("warehouse id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.upsertWarehouse(ctx, sqlTx, def.WarehouseID, def.Template); err != nil {
		return err
	}
	for _, table := range []string{"locations", "scope_exclusions"} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table+" WHERE warehouse_id = ?", def.WarehouseID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	for _, loc := range def.Locations {
		if err := s.saveLocation(ctx, sqlTx, def.WarehouseID, loc); err != nil {
			return err
		}
	}
	if err := s.insertExclusions(ctx, sqlTx, def.WarehouseID, def.ExclusionPatterns); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) upsertWarehouse(ctx context.Context, db execer, id string, tmpl *factory.TemplateDefinition) error {
	var templateJSON sql.NullString
	if tmpl != nil {
		data, err := json.Marshal(tmpl)
		if err != nil {
			return fmt.Errorf("failed to encode template: %w", err)
		}
		templateJSON = sql.NullString{String: string(data), Valid: true}
	}

	ts := now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO warehouses (id, template_json, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			template_json = excluded.template_json,
			updated_at = excluded.updated_at
	`, id, templateJSON, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to save warehouse: %w", err)
	}
	return nil
}

// SaveLocation registers one location, replacing any location with the
// same canonical code.
func (s *Store) SaveLocation(ctx context.Context, warehouseID string, loc factory.LocationDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO warehouses (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, warehouseID, now(), now())
	if err != nil {
		return fmt.Errorf("failed to save warehouse: %w", err)
	}
	if err := s.saveLocation(ctx, sqlTx, warehouseID, loc); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) saveLocation(ctx context.Context, db execer, warehouseID string, loc factory.LocationDefinition) error {
	canonical := location.ToCanonical(loc.Code)
	if canonical == "" {
		return fmt.Errorf("location code is required")
	}
	d := loc.Descriptor()

	_, err := db.ExecContext(ctx, `
		INSERT INTO locations
		(warehouse_id, code, canonical_code, location_type, capacity, zone, manual, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(warehouse_id, canonical_code) DO UPDATE SET
			code = excluded.code,
			location_type = excluded.location_type,
			capacity = excluded.capacity,
			zone = excluded.zone,
			manual = excluded.manual
	`,
		warehouseID,
		strings.ToUpper(strings.TrimSpace(loc.Code)),
		canonical,
		string(d.Type),
		d.Capacity,
		d.Zone,
		d.Manual,
		now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save location %s: %w", canonical, err)
	}
	return nil
}

// FindLocation looks a code up by its search variants.
func (s *Store) FindLocation(ctx context.Context, warehouseID, code string) (factory.LocationDefinition, error) {
	variants := location.SearchVariants(code)
	if len(variants) == 0 {
		return factory.LocationDefinition{}, fmt.Errorf("%w: %q", location.ErrUnknownLocation, code)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(variants)), ",")
	args := []any{warehouseID}
	for _, v := range variants {
		args = append(args, v)
	}

	locs, err := s.queryLocations(ctx, `
		SELECT code, location_type, capacity, zone, manual FROM locations
		WHERE warehouse_id = ? AND code IN (`+placeholders+`)
		LIMIT 1
	`, args...)
	if err != nil {
		return factory.LocationDefinition{}, err
	}
	if len(locs) == 0 {
		return factory.LocationDefinition{}, fmt.Errorf("%w: %q", location.ErrUnknownLocation, code)
	}
	return locs[0], nil
}

// Topology builds the warehouse's topology. A warehouse with neither a
// template nor locations has no topology (nil, nil).
func (s *Store) Topology(ctx context.Context, warehouseID string) (location.Topology, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var templateJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT template_json FROM warehouses WHERE id = ?", warehouseID,
	).Scan(&templateJSON)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load warehouse: %w", err)
	}

	def := factory.TopologyDefinition{WarehouseID: warehouseID}
	if templateJSON.Valid {
		var tmpl factory.TemplateDefinition
		if err := json.Unmarshal([]byte(templateJSON.String), &tmpl); err != nil {
			return nil, fmt.Errorf("failed to decode template: %w", err)
		}
		def.Template = &tmpl
	}

	def.Locations, err = s.queryLocations(ctx, `
		SELECT code, location_type, capacity, zone, manual FROM locations
		WHERE warehouse_id = ? ORDER BY canonical_code
	`, warehouseID)
	if err != nil {
		return nil, err
	}

	if def.Template == nil && len(def.Locations) == 0 {
		return nil, nil
	}
	return def.Build()
}

func (s *Store) queryLocations(ctx context.Context, query string, args ...any) ([]factory.LocationDefinition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var locs []factory.LocationDefinition
	for rows.Next() {
		var l factory.LocationDefinition
		var zone sql.NullString
		if err := rows.Scan(&l.Code, &l.Type, &l.Capacity, &zone, &l.Manual); err != nil {
			return nil, err
		}
		l.Zone = zone.String
		locs = append(locs, l)
	}
	return locs, rows.Err()
}

// =============================================================================
// SCOPE EXCLUSIONS
// =============================================================================

// SetExclusionPatterns replaces a warehouse's exclusion patterns.
func (s *Store) SetExclusionPatterns(ctx context.Context, warehouseID string, patterns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM scope_exclusions WHERE warehouse_id = ?", warehouseID); err != nil {
		return fmt.Errorf("failed to clear exclusions: %w", err)
	}
	if err := s.insertExclusions(ctx, sqlTx, warehouseID, patterns); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) insertExclusions(ctx context.Context, db execer, warehouseID string, patterns []string) error {
	for i, p := range patterns {
		_, err := db.ExecContext(ctx, `
			INSERT INTO scope_exclusions (warehouse_id, pattern, position) VALUES (?, ?, ?)
			ON CONFLICT(warehouse_id, pattern) DO NOTHING
		`, warehouseID, p, i)
		if err != nil {
			return fmt.Errorf("failed to save exclusion %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) ExclusionPatterns(ctx context.Context, warehouseID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT pattern FROM scope_exclusions WHERE warehouse_id = ? ORDER BY position", warehouseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query exclusions: %w", err)
	}
	defer rows.Close()

	var patterns []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// =============================================================================
// RULES
// =============================================================================

// RuleRecord is a stored rule definition with its version.
type RuleRecord struct {
	Definition factory.RuleDefinition
	Version    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveRule inserts or updates a rule. Updates bump the version.
func (s *Store) SaveRule(ctx context.Context, def factory.RuleDefinition) error {
	if strings.TrimSpace(def.ID) == "" {
		return fmt.Errorf("rule id is required")
	}
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, name, rule_type, precedence, disabled, definition_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			rule_type = excluded.rule_type,
			precedence = excluded.precedence,
			disabled = excluded.disabled,
			definition_json = excluded.definition_json,
			version = rules.version + 1,
			updated_at = excluded.updated_at
	`, def.ID, def.Name, def.RuleType, def.Precedence, def.Disabled, string(data), ts, ts)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", def.ID, err)
	}
	return nil
}

// GetRule returns a stored rule, or nil when it does not exist.
func (s *Store) GetRule(ctx context.Context, id string) (*RuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.queryRules(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// ListRules returns every stored definition ordered by precedence, then id.
func (s *Store) ListRules(ctx context.Context) ([]factory.RuleDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.queryRules(ctx, "")
	if err != nil {
		return nil, err
	}
	defs := make([]factory.RuleDefinition, 0, len(records))
	for _, r := range records {
		defs = append(defs, r.Definition)
	}
	return defs, nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM rules WHERE id = ?", id)
	return err
}

// ActiveRules parses the enabled definitions. Definitions that fail to
// parse are returned with LoadErr set so the run reports them.
func (s *Store) ActiveRules(ctx context.Context) ([]engine.RuleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.queryRules(ctx, "WHERE disabled = 0")
	if err != nil {
		return nil, err
	}
	rules := make([]engine.RuleConfig, 0, len(records))
	for _, r := range records {
		rules = append(rules, factory.ParseRule(r.Definition))
	}
	return rules, nil
}

func (s *Store) queryRules(ctx context.Context, where string, args ...any) ([]RuleRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT definition_json, version, created_at, updated_at FROM rules "+where+" ORDER BY precedence, id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var records []RuleRecord
	for rows.Next() {
		var r RuleRecord
		var data, createdAt, updatedAt string
		if err := rows.Scan(&data, &r.Version, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &r.Definition); err != nil {
			return nil, fmt.Errorf("failed to decode rule: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// REPORTS
// =============================================================================

// SaveReport stores a report, its rule executions and anomalies in one
// transaction. Every anomaly gets a fresh uuid.
func (s *Store) SaveReport(ctx context.Context, report *analysis.Report) error {
	if report == nil || report.Analysis == nil {
		return fmt.Errorf("report has no analysis")
	}
	a := report.Analysis

	statsJSON, err := json.Marshal(report.Inventory)
	if err != nil {
		return fmt.Errorf("failed to encode inventory stats: %w", err)
	}
	summaryJSON, err := json.Marshal(a.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO analysis_reports
		(id, warehouse_id, evaluated_at, duration_ns, inventory_rows, excluded_rows,
		 inventory_stats_json, summary_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.WarehouseID,
		a.EvaluatedAt.UTC().Format(time.RFC3339Nano),
		int64(a.Duration),
		a.InventoryRows,
		a.ExcludedRows,
		string(statsJSON),
		string(summaryJSON),
		report.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	for i, r := range a.Results {
		if err := insertExecution(ctx, sqlTx, report.ID, i, r); err != nil {
			return err
		}
		for j, an := range r.Anomalies {
			if err := insertAnomaly(ctx, sqlTx, report.ID, i, j, an); err != nil {
				return err
			}
		}
	}

	return sqlTx.Commit()
}

func insertExecution(ctx context.Context, db execer, reportID string, pos int, r engine.RuleResult) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO rule_executions
		(report_id, position, rule_id, rule_name, rule_type, precedence, success, error, duration_ns, suppressed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		reportID, pos, r.RuleID, r.RuleName, string(r.RuleType), r.Precedence,
		r.Success, nullString(r.Error), int64(r.Duration), r.Suppressed,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule execution %s: %w", r.RuleID, err)
	}
	return nil
}

func insertAnomaly(ctx context.Context, db execer, reportID string, execPos, pos int, a engine.Anomaly) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("failed to encode anomaly details: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO anomalies
		(id, report_id, execution_position, position, rule_id, pallet_id, location,
		 canonical_location, anomaly_type, priority, description, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(), reportID, execPos, pos, a.RuleID, a.PalletID, a.Location,
		a.Canonical, string(a.Type), string(a.Priority), a.Description, string(details),
	)
	if err != nil {
		return fmt.Errorf("failed to save anomaly: %w", err)
	}
	return nil
}

// Report loads a stored report. Rule errors come back as text only
// (RuleResult.Error); RuleResult.Err is not persisted.
func (s *Store) Report(ctx context.Context, id string) (*analysis.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &analysis.Report{ID: id, Analysis: &engine.Analysis{}}
	a := report.Analysis

	var evaluatedAt, createdAt, statsJSON, summaryJSON string
	var duration int64
	err := s.db.QueryRowContext(ctx, `
		SELECT warehouse_id, evaluated_at, duration_ns, inventory_rows, excluded_rows,
		       inventory_stats_json, summary_json, created_at
		FROM analysis_reports WHERE id = ?
	`, id).Scan(&report.WarehouseID, &evaluatedAt, &duration, &a.InventoryRows, &a.ExcludedRows,
		&statsJSON, &summaryJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", analysis.ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	a.WarehouseID = report.WarehouseID
	a.EvaluatedAt, _ = time.Parse(time.RFC3339Nano, evaluatedAt)
	a.Duration = time.Duration(duration)
	report.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if err := json.Unmarshal([]byte(statsJSON), &report.Inventory); err != nil {
		return nil, fmt.Errorf("failed to decode inventory stats: %w", err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &a.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}

	if a.Results, err = s.loadExecutions(ctx, id); err != nil {
		return nil, err
	}
	if err := s.attachAnomalies(ctx, id, a.Results); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) loadExecutions(ctx context.Context, reportID string) ([]engine.RuleResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, rule_name, rule_type, precedence, success, error, duration_ns, suppressed
		FROM rule_executions WHERE report_id = ? ORDER BY position
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule executions: %w", err)
	}
	defer rows.Close()

	var results []engine.RuleResult
	for rows.Next() {
		var r engine.RuleResult
		var name, errText sql.NullString
		var ruleType string
		var duration int64
		if err := rows.Scan(&r.RuleID, &name, &ruleType, &r.Precedence, &r.Success, &errText, &duration, &r.Suppressed); err != nil {
			return nil, err
		}
		r.RuleName = name.String
		r.RuleType = engine.RuleType(ruleType)
		r.Error = errText.String
		r.Duration = time.Duration(duration)
		r.Anomalies = []engine.Anomaly{}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) attachAnomalies(ctx context.Context, reportID string, results []engine.RuleResult) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_position, rule_id, pallet_id, location, canonical_location,
		       anomaly_type, priority, description, details_json
		FROM anomalies WHERE report_id = ? ORDER BY execution_position, position
	`, reportID)
	if err != nil {
		return fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a engine.Anomaly
		var execPos int
		var typ, priority, details string
		var desc sql.NullString
		if err := rows.Scan(&execPos, &a.RuleID, &a.PalletID, &a.Location, &a.Canonical,
			&typ, &priority, &desc, &details); err != nil {
			return err
		}
		a.Type = engine.RuleType(typ)
		a.Priority = engine.Priority(priority)
		a.Description = desc.String
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return fmt.Errorf("failed to decode anomaly details: %w", err)
		}
		if execPos < 0 || execPos >= len(results) {
			return fmt.Errorf("anomaly references missing rule execution %d", execPos)
		}
		results[execPos].Anomalies = append(results[execPos].Anomalies, a)
	}
	return rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ analysis.Repository = (*Store)(nil)
