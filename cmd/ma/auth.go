package main

import (
	"github.com/spf13/cobra"

	"github.com/daviddao/mailagent/internal/display"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Gmail read access and save the token",
	Long: `Run the OAuth consent flow in the browser using the client secret found in
the config directory, then save the token for later commands. An existing
token is refreshed instead when possible.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := authManager()
		tok, err := m.Token(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd, map[string]any{
				"token_path": m.TokenPath(),
				"expiry":     tok.Expiry,
			})
		}
		if !quietFlag {
			display.SuccessMsg("Authorized. Token saved to %s", m.TokenPath())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
