package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/auditflow/internal/assistant"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Run one assistant turn",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		threadID, _ := cmd.Flags().GetString("thread")
		newSession, _ := cmd.Flags().GetBool("new-session")
		req := assistant.Request{
			Message:    strings.Join(args, " "),
			ThreadID:   threadID,
			NewSession: newSession,
		}

		if stream, _ := cmd.Flags().GetBool("stream"); stream {
			events, err := a.Service.Stream(cmd.Context(), req)
			if err != nil {
				return err
			}
			for ev := range events {
				if err := printJSON(cmd, ev); err != nil {
					return err
				}
			}
			return nil
		}

		resp, err := a.Service.Invoke(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringP("thread", "t", "", "Thread to continue (a new one is created when empty)")
	askCmd.Flags().Bool("new-session", false, "Drop the thread's history and any pending approval")
	askCmd.Flags().Bool("stream", false, "Print each step as it completes")
}
