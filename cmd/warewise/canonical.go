package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/warewise/rule-engine/location"
)

func newCanonicalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "canonical CODE...",
		Short: "Show how location codes canonicalize",
		Long: `Show the canonical form, detected format, inferred location type and
lookup variants of each code. Useful for checking how legacy scanner or
WMS spellings will be matched against the registered topology.`,
		Example: `  $ warewise canonical 01A01A
  $ warewise canonical 1-1-1A recv_1 aisle-3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, code := range args {
				printCanonical(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}
}

func printCanonical(w io.Writer, code string) {
	res := location.ValidateFormat(code)

	boldColor.Fprintf(w, "%q\n", code)
	if !res.Parseable {
		errorColor.Fprintf(w, "  format:    %s\n", res.Format)
		fmt.Fprintf(w, "  canonical: %s\n", res.Canonical)
		return
	}
	fmt.Fprintf(w, "  format:    %s\n", res.Format)
	successColor.Fprintf(w, "  canonical: %s\n", res.Canonical)
	fmt.Fprintf(w, "  type:      %s\n", location.InferType(code))
	fmt.Fprintf(w, "  variants:  %s\n", strings.Join(location.SearchVariants(code), ", "))
}
