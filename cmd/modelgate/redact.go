package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairlease/modelgate/internal/redact"
)

func newRedactCmd() *cobra.Command {
	var showReport bool

	cmd := &cobra.Command{
		Use:   "redact [text]",
		Short: "Redact PII from text and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := redact.New()
			report := r.Redact(context.Background(), strings.Join(args, " "))

			fmt.Println(report.Content)
			if showReport {
				enc := json.NewEncoder(os.Stderr)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if report.Count > 0 {
				fmt.Fprintf(os.Stderr, "%d redaction(s), report %s\n", report.Count, report.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showReport, "report", false, "print the full redaction report as JSON")
	return cmd
}
