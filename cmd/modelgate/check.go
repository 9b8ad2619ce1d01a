package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairlease/modelgate/internal/config"
)

func newCheckCmd(configPath *string) *cobra.Command {
	var (
		jurisdiction string
		stage        string
	)

	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Run the policy gate over text without calling a provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			gate, err := buildGate(cfg.Policy, slog.Default())
			if err != nil {
				return err
			}

			result := gate.Check(context.Background(), strings.Join(args, " "), jurisdiction, stage)
			if result.Allowed {
				fmt.Printf("ALLOWED under %s rules\n", result.Rules.ID)
				return nil
			}

			fmt.Printf("BLOCKED under %s rules\n", result.Rules.ID)
			for _, v := range result.Violations {
				fmt.Printf("  [%s] %s: %q\n", v.Severity, v.Code, v.Matched)
			}
			for _, fix := range result.RecommendedFixes {
				fmt.Printf("  fix: %s\n", fix)
			}
			if result.Sanitized != "" {
				fmt.Printf("\nsanitized:\n%s\n", result.Sanitized)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "default", "jurisdiction id")
	cmd.Flags().StringVar(&stage, "stage", "", "application stage")
	return cmd
}
