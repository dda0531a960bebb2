package main

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/auditflow/internal/assistant"
)

var approveCmd = &cobra.Command{
	Use:   "approve <thread> <approved|rejected>",
	Short: "Record a reviewer decision on a suspended thread",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		reviewer, _ := cmd.Flags().GetString("reviewer")
		resp, err := a.Service.Approve(cmd.Context(), assistant.ApprovalRequest{
			ThreadID: args[0],
			Decision: args[1],
			Reviewer: reviewer,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().StringP("reviewer", "r", assistant.DefaultReviewer, "Reviewer recorded with the decision")
}
