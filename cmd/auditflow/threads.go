package main

import (
	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads [thread]",
	Short: "List stored threads, or show one thread's status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			st, err := a.Service.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		}

		threads, err := a.Service.Threads(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, threads)
	},
}

func init() {
	rootCmd.AddCommand(threadsCmd)
}
