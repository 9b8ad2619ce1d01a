package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fairlease/modelgate/internal/client"
	"github.com/fairlease/modelgate/internal/domain"
)

func newCompleteCmd(configPath *string) *cobra.Command {
	var (
		model        string
		system       string
		userID       string
		orgID        string
		jurisdiction string
		stage        string
	)

	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Run a completion through the full pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := buildClient(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			messages := []domain.Message{}
			if system != "" {
				messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: system})
			}
			messages = append(messages, domain.Message{
				Role:    domain.RoleUser,
				Content: strings.Join(args, " "),
			})

			result, err := c.Complete(context.Background(), &domain.CompletionRequest{
				Model:    model,
				Messages: messages,
				Context: &domain.CompletionContext{
					UserID:           userID,
					OrganizationID:   orgID,
					Jurisdiction:     jurisdiction,
					ApplicationStage: stage,
				},
			})
			if err != nil {
				var blocked *client.PolicyBlockedError
				if errors.As(err, &blocked) {
					fmt.Printf("BLOCKED (run %s)\n", blocked.RunID)
					for _, v := range blocked.Result.Violations {
						fmt.Printf("  %s: %s\n", v.Code, v.Matched)
					}
					return errors.New("completion blocked by policy")
				}
				return err
			}

			fmt.Println(result.Response.Content)
			fmt.Printf("\nrun=%s provider=%s tokens=%d cost=%d¢\n",
				result.RunID,
				result.Response.Provider,
				result.Response.Usage.TotalTokens,
				result.Response.CostCents,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "gpt-4o-mini", "model to complete with")
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().StringVar(&userID, "user", "", "user id for budgeting and audit")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id for budgeting and audit")
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "jurisdiction id for policy gating")
	cmd.Flags().StringVar(&stage, "stage", "", "application stage (inquiry, application, screening, conditional_offer, lease_signing)")

	return cmd
}
