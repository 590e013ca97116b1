package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/display"
	"github.com/daviddao/mailagent/internal/types"
)

var (
	askTopK    int
	askSession string
	askSources bool
)

type askOutput struct {
	Question string      `json:"question"`
	Answer   string      `json:"answer"`
	Session  string      `json:"session,omitempty"`
	Sources  []types.Hit `json:"sources,omitempty"`
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question about your indexed email",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		idx, closeIdx, err := newIndex()
		if err != nil {
			return err
		}
		defer closeIdx()

		a, _, err := newAgent(idx, askSession)
		if err != nil {
			return err
		}
		k := a.TopK()
		if cmd.Flags().Changed("top-k") {
			k = askTopK
		}

		answer, sources, err := a.Answer(cmd.Context(), question, k)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd, askOutput{Question: question, Answer: answer, Session: askSession, Sources: sources})
		}

		if askSources && len(sources) > 0 {
			display.SubHeader("Sources")
			for _, h := range sources {
				fmt.Println("  " + display.HitLine(h))
			}
			fmt.Println()
		}
		fmt.Println(display.AgentStyle.Render("Agent:") + " " + answer)
		return nil
	},
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 5, "Number of emails to retrieve")
	askCmd.Flags().StringVar(&askSession, "session", "", "Continue a saved chat session")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "Show the retrieved emails and their scores")
	rootCmd.AddCommand(askCmd)
}
