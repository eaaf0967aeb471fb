package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and close browser sessions on a running server",
	}
	cmd.AddCommand(newSessionListCommand())
	cmd.AddCommand(newSessionCloseCommand())
	cmd.AddCommand(newSessionContextCommand())
	return cmd
}

func newSessionListCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "text" {
				return fmt.Errorf("invalid output format %q: must be 'json' or 'text'", output)
			}
			list, err := newAPIClient().listSessions(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if output == "json" {
				b, _ := json.MarshalIndent(list, "", "  ")
				fmt.Fprintln(out, string(b))
				return nil
			}
			if len(list.ActiveSessions) == 0 {
				fmt.Fprintln(out, "No active sessions")
				return nil
			}
			fmt.Fprintln(out, "SESSION ID")
			fmt.Fprintln(out, "----------------------------------------")
			for _, id := range list.ActiveSessions {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (json or text)")
	return cmd
}

func newSessionCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <session-id>...",
		Short: "Close one or more sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient()
			for _, id := range args {
				if _, err := client.closeSession(cmd.Context(), url.PathEscape(id)); err != nil {
					return fmt.Errorf("failed to close session %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s closed\n", id)
			}
			return nil
		},
	}
}

func newSessionContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "context <session-id>",
		Short: "Show a session's conversation history and last action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := newAPIClient().sessionContext(cmd.Context(), url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:     %s\n", sc.SessionID)
			if sc.CurrentURL != "" {
				fmt.Fprintf(out, "Current URL: %s\n", sc.CurrentURL)
			}
			if sc.LiveViewURL != "" {
				fmt.Fprintf(out, "Live view:   %s\n", sc.LiveViewURL)
			}
			if sc.LastAction != nil {
				fmt.Fprintf(out, "Last action: %s (%s)\n", sc.LastAction.Intent.Describe(), sc.LastAction.Status)
			}
			if len(sc.RecentActions) > 1 {
				fmt.Fprintln(out, "Actions:")
				for _, a := range sc.RecentActions {
					fmt.Fprintf(out, "  %-9s %s\n", a.Status, a.Intent.Describe())
				}
			}
			for _, turn := range sc.ConversationHistory {
				fmt.Fprintf(out, "  %-9s %s\n", turn.Role+":", turn.Content)
			}
			return nil
		},
	}
}
