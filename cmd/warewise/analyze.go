package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/engine"
	"github.com/warewise/rule-engine/factory"
	"github.com/warewise/rule-engine/logging"
	"github.com/warewise/rule-engine/store/memory"
	"go.uber.org/zap"
)

type analyzeOptions struct {
	inventoryPath string
	topologyPath  string
	rulesPath     string
	warehouseID   string
	timezone      string
	noPrecedence  bool
	timeout       time.Duration
	jsonOutput    bool
	verbose       bool
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze an inventory file",
		Long: `Analyze an inventory file against a warehouse topology.

The inventory is a JSON array of rows (or {"inventory": [...]}). The
topology and rule files may be JSON or YAML. Without --rules the default
rule catalogue is used.`,
		Example: `  $ warewise analyze --inventory inv.json --topology wh1.yaml
  $ warewise analyze -i inv.json -t wh1.yaml -r rules.yaml --no-precedence
  $ warewise analyze -i inv.json -t wh1.yaml --json > report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runAnalyze(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.inventoryPath, "inventory", "i", "", "inventory file (JSON)")
	f.StringVarP(&opts.topologyPath, "topology", "t", "", "warehouse topology file (JSON or YAML)")
	f.StringVarP(&opts.rulesPath, "rules", "r", "", "rule set file (JSON or YAML); default rules when empty")
	f.StringVarP(&opts.warehouseID, "warehouse", "w", "", "warehouse id (overrides the topology file)")
	f.StringVar(&opts.timezone, "timezone", "UTC", "zone for timestamps without an offset")
	f.BoolVar(&opts.noPrecedence, "no-precedence", false, "disable precedence exclusions")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "analysis time budget")
	f.BoolVar(&opts.jsonOutput, "json", false, "print the report as JSON")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log rule evaluation to stderr")
	cmd.MarkFlagRequired("inventory")
	cmd.MarkFlagRequired("topology")
	return cmd
}

// runAnalyze loads the files into an in-memory repository and runs the
// analysis service over it.
func runAnalyze(ctx context.Context, opts analyzeOptions) (*analysis.Report, error) {
	loc, err := time.LoadLocation(opts.timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	topo, err := factory.LoadTopology(opts.topologyPath)
	if err != nil {
		return nil, err
	}
	if opts.warehouseID != "" {
		topo.WarehouseID = opts.warehouseID
	}
	if topo.WarehouseID == "" {
		topo.WarehouseID = "default"
	}

	defs, err := loadRuleDefinitions(opts.rulesPath)
	if err != nil {
		return nil, err
	}

	rows, err := factory.LoadInventory(opts.inventoryPath)
	if err != nil {
		return nil, err
	}
	records, stats := factory.ToRecords(rows, loc)

	repo := memory.New()
	if err := repo.PutTopology(ctx, topo); err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := repo.SaveRule(ctx, def); err != nil {
			return nil, err
		}
	}

	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = logging.New("debug", "console"); err != nil {
			return nil, err
		}
		defer logger.Sync()
	}

	eng := engine.New(
		engine.WithLogger(logger),
		engine.WithPrecedence(!opts.noPrecedence),
	)
	svc := analysis.NewService(repo, eng,
		analysis.WithLogger(logger),
		analysis.WithBudget(opts.timeout),
	)
	return svc.Run(ctx, analysis.Request{
		WarehouseID: topo.WarehouseID,
		Inventory:   records,
		Stats:       stats,
	})
}

func loadRuleDefinitions(path string) ([]factory.RuleDefinition, error) {
	if path != "" {
		return factory.LoadRuleDefinitions(path)
	}
	presets := factory.DefaultRuleSet()
	defs := make([]factory.RuleDefinition, 0, len(presets))
	for _, r := range presets {
		defs = append(defs, factory.ToDefinition(r))
	}
	return defs, nil
}
