package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/config"
	"github.com/daviddao/mailagent/internal/display"
	"github.com/daviddao/mailagent/internal/websearch"
)

var (
	searchPages int
	searchOut   string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the web and save the results as CSV",
	Long: fmt.Sprintf(`Query Google Programmable Search, fetching pages of %d results, and write
the items to %s in the web output directory.`, websearch.PageSize, config.SearchCSVFile),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ValidateForSearch(cfg); err != nil {
			return err
		}
		query := strings.Join(args, " ")

		pages := cfg.Search.Pages
		if cmd.Flags().Changed("pages") {
			pages = searchPages
		}
		out := searchOut
		if out == "" {
			out = filepath.Join(cfg.Search.OutputDir, config.SearchCSVFile)
		}

		s, err := websearch.New(cmd.Context(), cfg.Search.APIKey, cfg.Search.EngineID, logger)
		if err != nil {
			return err
		}
		items, err := s.SearchPages(cmd.Context(), query, pages)
		if err != nil {
			return err
		}
		if err := websearch.WriteCSV(out, items); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd, map[string]any{"query": query, "results": len(items), "path": out})
		}
		if !quietFlag {
			for _, it := range items {
				fmt.Printf("  %s\n    %s\n", display.Bold.Render(display.Truncate(it.Title, 80)), display.Dim.Render(it.Link))
			}
			display.SuccessMsg("Saved %d results to %s", len(items), out)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchPages, "pages", 3, "Number of result pages to fetch")
	searchCmd.Flags().StringVarP(&searchOut, "out", "o", "", "CSV output path (default: "+config.SearchCSVFile+" in WEB_DIR)")
	rootCmd.AddCommand(searchCmd)
}
