package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/auditflow/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the assistant and exposes the agent API, document ingestion, the workflow diagram and Prometheus metrics over HTTP.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.Config.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		opts := []server.Option{
			server.WithLogger(a.Logger),
			server.WithIndexer(a.Index),
			server.WithDiagram(a.Graph.Mermaid()),
		}
		if a.Registry != nil {
			opts = append(opts, server.WithMetrics(a.Registry))
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           server.NewHandler(a.Service, opts...),
			ReadHeaderTimeout: a.Config.Server.ReadHeaderTimeout,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := server.Run(ctx, srv, a.Config.Server.ShutdownTimeout, a.Logger); err != nil {
			return err
		}
		a.Logger.Info("server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Listen address (overrides server.addr)")
}
