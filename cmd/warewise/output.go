package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/warewise/rule-engine/analysis"
	"github.com/warewise/rule-engine/engine"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
)

// priorityOrder sorts anomalies most severe first.
var priorityOrder = map[engine.Priority]int{
	engine.PriorityCritical: 0,
	engine.PriorityVeryHigh: 1,
	engine.PriorityHigh:     2,
	engine.PriorityMedium:   3,
	engine.PriorityLow:      4,
	engine.PriorityWarning:  5,
	engine.PriorityInfo:     6,
}

func priorityColor(p engine.Priority) *color.Color {
	switch p {
	case engine.PriorityCritical, engine.PriorityVeryHigh:
		return errorColor
	case engine.PriorityHigh, engine.PriorityMedium:
		return warningColor
	default:
		return infoColor
	}
}

// pad left-justifies s before coloring so escape codes don't skew columns.
func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// printReport writes the human-readable form of a report: a header, the
// anomaly table sorted by severity, and one line per rule.
func printReport(w io.Writer, report *analysis.Report) {
	a := report.Analysis

	boldColor.Fprintf(w, "Analysis %s\n", report.ID)
	fmt.Fprintf(w, "Warehouse:  %s\n", report.WarehouseID)
	fmt.Fprintf(w, "Evaluated:  %s (%s)\n", a.EvaluatedAt.Format("2006-01-02 15:04:05 MST"), a.Duration.Round(time.Microsecond))
	fmt.Fprintf(w, "Inventory:  %d rows, %d excluded by scope\n", a.InventoryRows, a.ExcludedRows)
	if s := report.Inventory; s.MissingTimestamp+s.MalformedTimestamps+s.MissingLocation+s.MissingPalletID > 0 {
		warningColor.Fprintf(w, "Data:       %d missing pallet ids, %d missing locations, %d missing and %d malformed timestamps\n",
			s.MissingPalletID, s.MissingLocation, s.MissingTimestamp, s.MalformedTimestamps)
	}
	fmt.Fprintln(w)

	anomalies := a.Anomalies()
	if len(anomalies) == 0 {
		successColor.Fprintln(w, "✓ No anomalies found")
	} else {
		sort.SliceStable(anomalies, func(i, j int) bool {
			return priorityOrder[anomalies[i].Priority] < priorityOrder[anomalies[j].Priority]
		})
		boldColor.Fprintf(w, "%s %s %s %s\n", pad("PRIORITY", 10), pad("TYPE", 27), pad("PALLET", 14), "LOCATION")
		for _, an := range anomalies {
			fmt.Fprintf(w, "%s %s %s %s\n",
				priorityColor(an.Priority).Sprint(pad(string(an.Priority), 10)),
				pad(string(an.Type), 27),
				pad(an.PalletID, 14),
				an.Location)
			fmt.Fprintf(w, "  %s\n", an.Description)
		}
	}
	fmt.Fprintln(w)

	boldColor.Fprintln(w, "Rules")
	for _, r := range a.Results {
		name := r.RuleName
		if name == "" {
			name = r.RuleID
		}
		if !r.Success {
			errorColor.Fprintf(w, "✗ %s: %s\n", name, r.Error)
			continue
		}
		line := fmt.Sprintf("✓ %s: %d anomalies", name, len(r.Anomalies))
		if r.Suppressed > 0 {
			line += fmt.Sprintf(" (%d suppressed)", r.Suppressed)
		}
		successColor.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	summary := fmt.Sprintf("%d anomalies from %d rules", a.Summary.TotalAnomalies, a.Summary.RulesEvaluated)
	if a.Summary.RulesFailed > 0 {
		errorColor.Fprintf(w, "%s, %d failed\n", summary, a.Summary.RulesFailed)
		return
	}
	boldColor.Fprintln(w, summary)
}
