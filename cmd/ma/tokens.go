package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/agent"
)

var tokensLimit int

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Estimate how many tokens the cached emails take",
	RunE: func(cmd *cobra.Command, args []string) error {
		emails, err := store.Emails(tokensLimit)
		if err != nil {
			return fmt.Errorf("load emails: %w", err)
		}
		n := agent.EstimateTokens(emails)

		if jsonOutput {
			return printJSON(cmd, map[string]int{"emails": len(emails), "tokens": n})
		}
		fmt.Printf("%d emails, ~%d tokens\n", len(emails), n)
		return nil
	},
}

func init() {
	tokensCmd.Flags().IntVar(&tokensLimit, "limit", 0, "Only count the N most recently fetched emails")
	rootCmd.AddCommand(tokensCmd)
}
