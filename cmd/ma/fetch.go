package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/config"
	"github.com/daviddao/mailagent/internal/display"
	"github.com/daviddao/mailagent/internal/types"
)

var (
	fetchQuery string
	fetchMax   int64
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "List matching Gmail message IDs and save them",
	Long: fmt.Sprintf(`Search Gmail and save the matching message and thread IDs to %s in
the config directory. Run 'ma parse' afterwards to download the messages.`, config.RefsFile),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := cfg.Gmail.Query
		if cmd.Flags().Changed("query") {
			query = fetchQuery
		}
		maxResults := cfg.Gmail.MaxResults
		if cmd.Flags().Changed("max") {
			maxResults = fetchMax
		}

		s, err := newSyncer(cmd.Context(), nil)
		if err != nil {
			return err
		}
		refs, err := s.Fetch(cmd.Context(), query, maxResults, cfg.Path(config.RefsFile))
		if err != nil {
			return err
		}

		if jsonOutput {
			if refs == nil {
				refs = []types.MessageRef{}
			}
			return printJSON(cmd, refs)
		}
		if len(refs) == 0 {
			display.WarnMsg("No emails found")
			return nil
		}
		if !quietFlag {
			display.SuccessMsg("Saved %d message IDs to %s", len(refs), cfg.Path(config.RefsFile))
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchQuery, "query", config.DefaultQuery, "Gmail search query")
	fetchCmd.Flags().Int64Var(&fetchMax, "max", config.DefaultMaxResults, "Maximum number of messages")
	rootCmd.AddCommand(fetchCmd)
}
