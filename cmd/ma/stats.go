package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/dedup"
	"github.com/daviddao/mailagent/internal/display"
)

type statsOutput struct {
	Emails    int    `json:"emails"`
	LastFetch string `json:"last_fetch,omitempty"`
	Documents int    `json:"documents"`
	Ingested  int    `json:"ingested"`
	Dedup     string `json:"dedup_backend"`
	Sessions  int    `json:"sessions"`
	Turns     int    `json:"turns"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database and index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := statsOutput{
			Emails:    store.EmailCount(),
			LastFetch: store.LatestFetchedAt(),
			Documents: store.DocumentCount(),
			Dedup:     cfg.Dedup.Backend,
		}

		filter, err := dedup.New(cfg, logger)
		if err != nil {
			return err
		}
		defer filter.Close()
		if out.Ingested, err = filter.Count(cmd.Context()); err != nil {
			return fmt.Errorf("dedup count: %w", err)
		}

		sessions, err := store.Sessions()
		if err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
		out.Sessions = len(sessions)
		for _, s := range sessions {
			out.Turns += s.Turns
		}

		if jsonOutput {
			return printJSON(cmd, out)
		}

		display.Header("Mailagent Statistics")
		fmt.Println()

		fetchInfo := ""
		if out.LastFetch != "" {
			fetchInfo = fmt.Sprintf("(last parse: %s)", display.TimeAgo(out.LastFetch))
		}
		fmt.Printf("  Emails     %4d  %s\n", out.Emails, display.Dim.Render(fetchInfo))
		fmt.Printf("  Indexed    %4d documents\n", out.Documents)
		fmt.Printf("  Ingested   %4d ids %s\n", out.Ingested, display.Dim.Render("("+out.Dedup+")"))
		fmt.Printf("  Sessions   %4d  (%d turns)\n", out.Sessions, out.Turns)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
