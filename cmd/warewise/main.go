/*
main.go - Application entry point

PURPOSE:
  The warewise command: runs the analysis server, analyzes inventory
  files offline, and explains how location codes canonicalize.

COMMANDS:
  serve      Start the HTTP API (SQLite store, optional Redis notifications)
  analyze    Run the rules against an inventory file and print the anomalies
  canonical  Print canonical form, format and search variants of codes

EXAMPLES:
  # Run the server with a config file
  warewise serve --config ./warewise.yaml

  # Analyze an export against a topology file with the default rules
  warewise analyze --inventory inv.json --topology wh1.yaml

  # Inspect legacy codes
  warewise canonical 01A01A 1-1-1A recv_1

ENVIRONMENT:
  WAREWISE_* variables override config keys, e.g. WAREWISE_SERVER_PORT.

SEE ALSO:
  - api/server.go: Router configuration
  - analysis/service.go: The analysis pipeline
  - config/config.go: Configuration keys
*/
package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "warewise",
		Short:   "Warehouse inventory anomaly detection",
		Version: version,
		Long: `warewise evaluates warehouse inventory snapshots against a configurable set
of anomaly rules: forgotten pallets, incomplete lots, overcapacity, invalid
locations, scanner errors, cold-chain violations and location type mismatches.`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newServeCmd())
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newCanonicalCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
