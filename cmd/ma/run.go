package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/agent"
	"github.com/daviddao/mailagent/internal/config"
	"github.com/daviddao/mailagent/internal/display"
	"github.com/daviddao/mailagent/internal/index"
	msync "github.com/daviddao/mailagent/internal/sync"
	"github.com/daviddao/mailagent/internal/types"
)

var (
	runQuery string
	runMax   int64
	runIndex bool
)

type runOutput struct {
	types.IngestResult
	Tokens int `json:"tokens"`
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, parse and (optionally) index in one go",
	Long: `List matching messages and save their IDs, download and cache them, then
print a token estimate for the parsed emails. With --index new emails are
also embedded into the vector index.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := msync.Options{
			Query:      cfg.Gmail.Query,
			MaxResults: cfg.Gmail.MaxResults,
			RefsPath:   cfg.Path(config.RefsFile),
			SkipCached: true,
		}
		if cmd.Flags().Changed("query") {
			opts.Query = runQuery
		}
		if cmd.Flags().Changed("max") {
			opts.MaxResults = runMax
		}

		var idx *index.Index
		if runIndex {
			var closeIdx func()
			var err error
			idx, closeIdx, err = newIndex()
			if err != nil {
				return err
			}
			defer closeIdx()
		}

		s, err := newSyncer(cmd.Context(), idx)
		if err != nil {
			return err
		}

		result, emails, err := s.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		out := runOutput{IngestResult: *result, Tokens: agent.EstimateTokens(emails)}

		if jsonOutput {
			return printJSON(cmd, out)
		}
		if out.Listed == 0 {
			display.WarnMsg("No emails found")
			return nil
		}
		if !quietFlag {
			fmt.Printf("  Listed %d, parsed %d (%d new, %d already cached)\n",
				out.Listed, out.Parsed, out.New, out.Skipped)
			if runIndex {
				fmt.Printf("  Indexed %d\n", out.Indexed)
			}
			display.SuccessMsg("~%d tokens across %d emails. Total in DB: %d", out.Tokens, out.Parsed, store.EmailCount())
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runQuery, "query", config.DefaultQuery, "Gmail search query")
	runCmd.Flags().Int64Var(&runMax, "max", config.DefaultMaxResults, "Maximum number of messages")
	runCmd.Flags().BoolVar(&runIndex, "index", false, "Also embed new emails into the vector index")
	rootCmd.AddCommand(runCmd)
}
