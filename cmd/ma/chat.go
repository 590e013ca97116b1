package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/display"
)

var (
	chatSession  string
	chatTopK     int
	chatNoUpdate bool
	chatList     bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the email assistant",
	Long: `Start an interactive conversation. Cached emails are indexed first (only new
ones are embedded), then each question retrieves the most relevant emails and
sends them to the model together with the conversation so far.

Type 'exit' or 'quit' to leave, ':k N' to change how many emails are
retrieved per question. Pass --session to resume an earlier conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatList {
			return listSessions(cmd)
		}

		idx, closeIdx, err := newIndex()
		if err != nil {
			return err
		}
		defer closeIdx()

		sessionID := chatSession
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		a, mem, err := newAgent(idx, sessionID)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("top-k") {
			a.SetTopK(chatTopK)
		}

		emails, err := store.Emails(0)
		if err != nil {
			return fmt.Errorf("load emails: %w", err)
		}
		if chatNoUpdate {
			emails = nil
		}

		if !quietFlag {
			display.Header("Mailagent chat")
			display.SubHeader(fmt.Sprintf("session %s · %d cached emails · top-k %d", sessionID, len(emails), a.TopK()))
			if n := len(mem.Buffer()); n > 0 {
				display.SubHeader(fmt.Sprintf("resumed with %d recent turns", n))
			}
			fmt.Println()
		}

		return a.ChatLoop(cmd.Context(), os.Stdin, os.Stdout, emails)
	},
}

func listSessions(cmd *cobra.Command) error {
	sessions, err := store.Sessions()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, sessions)
	}
	if len(sessions) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}
	display.Header("Sessions")
	for _, s := range sessions {
		fmt.Printf("  %s  %3d turns  %s\n", s.ID, s.Turns, display.Dim.Render(display.TimeAgo(s.UpdatedAt)))
		if s.Summary != "" {
			fmt.Printf("      %s\n", display.Muted.Render(display.Truncate(s.Summary, 90)))
		}
	}
	return nil
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Resume a saved session (default: start a new one)")
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 5, "Number of emails to retrieve per question")
	chatCmd.Flags().BoolVar(&chatNoUpdate, "no-update", false, "Do not index new cached emails before chatting")
	chatCmd.Flags().BoolVar(&chatList, "list", false, "List saved sessions and exit")
	rootCmd.AddCommand(chatCmd)
}
