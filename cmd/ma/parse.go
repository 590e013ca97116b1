package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/config"
	"github.com/daviddao/mailagent/internal/display"
	"github.com/daviddao/mailagent/internal/gmail"
)

var (
	parseRefs       string
	parseSkipCached bool
	parseShow       bool
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Download saved message IDs and cache them as email samples",
	Long: fmt.Sprintf(`Read the message IDs saved by 'ma fetch' (%s), download each message,
extract subject, sender, receiver, date and a plain-text body, and store the
result in the local database. Messages without a readable body are skipped.`, config.RefsFile),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := parseRefs
		if path == "" {
			path = cfg.Path(config.RefsFile)
		}
		refs, err := gmail.LoadRefs(path)
		if err != nil {
			return fmt.Errorf("%w (run 'ma fetch' first)", err)
		}

		s, err := newSyncer(cmd.Context(), nil)
		if err != nil {
			return err
		}
		emails, stored, err := s.Parse(cmd.Context(), refs, parseSkipCached)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd, emails)
		}
		if parseShow {
			for i, e := range emails {
				display.EmailTree(display.Connector(i, len(emails)), e)
			}
			fmt.Println()
		} else if !quietFlag {
			for _, e := range emails {
				fmt.Println(display.EmailLine(e))
			}
		}
		if !quietFlag {
			display.SuccessMsg("Parsed %d of %d messages, %d new in the database", len(emails), len(refs), stored)
		}
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseRefs, "refs", "", "Message ID file (default: "+config.RefsFile+" in the config dir)")
	parseCmd.Flags().BoolVar(&parseSkipCached, "skip-cached", false, "Do not re-download messages already in the database")
	parseCmd.Flags().BoolVar(&parseShow, "show", false, "Print message bodies")
	rootCmd.AddCommand(parseCmd)
}
