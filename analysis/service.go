/*
Package analysis runs the rule engine on behalf of a warehouse.

PURPOSE:
  The engine is a pure function of inventory, topology and rules. This
  package is the layer around it: it fetches the warehouse's topology,
  scope exclusions and active rules from a Repository, runs the engine
  under a wall-clock budget, and files the outcome as a Report.

FAILURE MODEL:
  - Repository errors while loading are the only hard failure of a run.
  - Rule failures are part of the report (see engine.RuleResult).
  - Exceeding the budget returns ErrAnalysisTimeout and no report.
  - Publish failures are logged and never fail the run.

USAGE:
  svc := analysis.NewService(repo, engine.New(),
      analysis.WithBudget(30*time.Second),
      analysis.WithPublisher(pub),
  )
  report, err := svc.Run(ctx, analysis.Request{WarehouseID: "WH1", Inventory: records})

SEE ALSO:
  - engine/engine.go: the orchestrator
  - store/sqlite, store/memory: Repository implementations
  - notify: Redis publisher
*/
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/location"
	"go.uber.org/zap"
)

var (
	ErrAnalysisTimeout = errors.New("analysis exceeded its time budget")
	ErrReportNotFound  = errors.New("report not found")
	ErrInvalidRequest  = errors.New("invalid analysis request")
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Repository supplies warehouse data and stores reports.
//
// Topology returns a nil topology (and no error) for a warehouse that has
// none registered; the run then proceeds with topology-dependent rules
// failing individually.
type Repository interface {
	Topology(ctx context.Context, warehouseID string) (location.Topology, error)
	ExclusionPatterns(ctx context.Context, warehouseID string) ([]string, error)
	ActiveRules(ctx context.Context) ([]engine.RuleConfig, error)
	SaveReport(ctx context.Context, report *Report) error
	Report(ctx context.Context, id string) (*Report, error)
}

// Publisher announces completed analyses.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Notification is the message published after a report is stored.
type Notification struct {
	ReportID       string    `json:"report_id"`
	WarehouseID    string    `json:"warehouse_id"`
	TotalAnomalies int       `json:"total_anomalies"`
	RulesFailed    int       `json:"rules_failed"`
	CompletedAt    time.Time `json:"completed_at"`
}

// =============================================================================
// REQUEST / REPORT
// =============================================================================

type Request struct {
	WarehouseID string
	Inventory   []engine.InventoryRecord

	// Stats describes problems found while ingesting the rows. Carried
	// through to the report unchanged.
	Stats factory.InventoryStats
}

// Report is a stored analysis.
type Report struct {
	ID          string                 `json:"id"`
	WarehouseID string                 `json:"warehouse_id"`
	CreatedAt   time.Time              `json:"created_at"`
	Inventory   factory.InventoryStats `json:"inventory"`
	Analysis    *engine.Analysis       `json:"analysis"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	repo      Repository
	engine    *engine.Engine
	publisher Publisher
	logger    *zap.Logger
	budget    time.Duration
	newID     func() string
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBudget bounds the wall-clock time of the engine run. Zero disables
// the bound.
func WithBudget(d time.Duration) Option {
	return func(s *Service) { s.budget = d }
}

// WithIDGenerator replaces the uuid report id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(repo Repository, eng *engine.Engine, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		engine: eng,
		logger: zap.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run analyzes one inventory snapshot and stores the report.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	warehouseID := strings.TrimSpace(req.WarehouseID)
	if warehouseID == "" {
		return nil, fmt.Errorf("%w: warehouse id is required", ErrInvalidRequest)
	}

	wc, rules, err := s.load(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluate(ctx, req.Inventory, wc, rules)
	if err != nil {
		s.logger.Warn("analysis aborted",
			zap.String("warehouse_id", warehouseID),
			zap.Duration("budget", s.budget),
			zap.Error(err),
		)
		return nil, err
	}

	report := &Report{
		ID:          s.newID(),
		WarehouseID: warehouseID,
		CreatedAt:   result.EvaluatedAt,
		Inventory:   req.Stats,
		Analysis:    result,
	}
	if err := s.repo.SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	s.logger.Info("analysis stored",
		zap.String("report_id", report.ID),
		zap.String("warehouse_id", warehouseID),
		zap.Int("anomalies", result.Summary.TotalAnomalies),
		zap.Int("rules_failed", result.Summary.RulesFailed),
	)
	s.publish(ctx, report)
	return report, nil
}

// Report returns a stored report. Unknown ids yield ErrReportNotFound.
func (s *Service) Report(ctx context.Context, id string) (*Report, error) {
	return s.repo.Report(ctx, id)
}

func (s *Service) load(ctx context.Context, warehouseID string) (engine.WarehouseContext, []engine.RuleConfig, error) {
	topo, err := s.repo.Topology(ctx, warehouseID)
	if err != nil {
		return engine.WarehouseContext{}, nil, fmt.Errorf("failed to load topology for %s: %w", warehouseID, err)
	}
	patterns, err := s.repo.ExclusionPatterns(ctx, warehouseID)
	if err != nil {
		return engine.WarehouseContext{}, nil, fmt.Errorf("failed to load exclusions for %s: %w", warehouseID, err)
	}
	rules, err := s.repo.ActiveRules(ctx)
	if err != nil {
		return engine.WarehouseContext{}, nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return engine.WarehouseContext{
		WarehouseID:       warehouseID,
		Topology:          topo,
		ExclusionPatterns: patterns,
	}, rules, nil
}

// evaluate runs the engine in its own goroutine so the budget can cut the
// wait short. An abandoned run finishes in the background and its result
// is dropped.
func (s *Service) evaluate(ctx context.Context, inv []engine.InventoryRecord, wc engine.WarehouseContext, rules []engine.RuleConfig) (*engine.Analysis, error) {
	var cancel context.CancelFunc
	if s.budget > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.budget)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan *engine.Analysis, 1)
	go func() {
		done <- s.engine.Evaluate(inv, wc, rules)
	}()

	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w (%s)", ErrAnalysisTimeout, s.budget)
		}
		return nil, ctx.Err()
	}
}

func (s *Service) publish(ctx context.Context, report *Report) {
	if s.publisher == nil {
		return
	}
	n := Notification{
		ReportID:       report.ID,
		WarehouseID:    report.WarehouseID,
		TotalAnomalies: report.Analysis.Summary.TotalAnomalies,
		RulesFailed:    report.Analysis.Summary.RulesFailed,
		CompletedAt:    report.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		s.logger.Warn("failed to publish analysis notification",
			zap.String("report_id", report.ID),
			zap.Error(err),
		)
	}
}
