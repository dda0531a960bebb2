package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/auditflow/internal/app"
	"github.com/randalmurphal/auditflow/internal/config"
	"github.com/randalmurphal/auditflow/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "auditflow",
	Short: "Audit assistant with human approval of compliance gaps",
	Long: `auditflow answers questions about audit findings. Complex requests run
a planned review with compliance and deadline checks, and reports with
compliance gaps wait for a reviewer decision before they are released.

The ask and approve commands share threads across invocations only with a
persistent checkpoint driver (sqlite or redis).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, cfg.Validate()
}

// buildApp loads configuration and wires the assistant. Logs go to stderr
// so command output stays parseable.
func buildApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := logging.New(level, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return app.Build(cfg, logger)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
