package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/display"
)

var (
	indexRebuild bool
	indexLimit   int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed cached emails into the vector index",
	Long: `Embed cached emails that have not been ingested before and add them to the
vector index. With --rebuild the index is cleared and every cached email is
embedded again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		emails, err := store.Emails(indexLimit)
		if err != nil {
			return fmt.Errorf("load emails: %w", err)
		}

		idx, closeIdx, err := newIndex()
		if err != nil {
			return err
		}
		defer closeIdx()

		var added int
		if indexRebuild {
			added, err = idx.Rebuild(cmd.Context(), emails)
		} else {
			added, err = idx.Update(cmd.Context(), emails)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd, map[string]int{
				"emails":    len(emails),
				"added":     added,
				"documents": idx.Len(),
			})
		}
		if !quietFlag {
			display.SuccessMsg("Indexed %d new emails. Total documents: %d", added, idx.Len())
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "Clear the index and embed every cached email")
	indexCmd.Flags().IntVar(&indexLimit, "limit", 0, "Only consider the N most recently fetched emails")
	rootCmd.AddCommand(indexCmd)
}
