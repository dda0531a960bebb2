package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the workflow as a Mermaid diagram",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		_, err = fmt.Fprint(cmd.OutOrStdout(), a.Graph.Mermaid())
		return err
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
