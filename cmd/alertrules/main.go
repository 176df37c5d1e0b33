// alertrules evaluates alert rules against ingested error events.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"alertrules/internal/app"
	"alertrules/internal/clock"
	"alertrules/internal/config"
)

var (
	configFile string
	configDir  string
	projectID  int64
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "alertrules",
	Short:         "Alert rule evaluation service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ingest transports, rule evaluation, and the delayed scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		source, err := config.FromCLI(configFile, configDir)
		if err != nil {
			return err
		}
		service, err := app.NewService(cmd.Context(), source, clock.RealClock{})
		if err != nil {
			return fmt.Errorf("service init failed: %w", err)
		}
		if err := service.Run(cmd.Context()); err != nil {
			return fmt.Errorf("service run failed: %w", err)
		}
		return nil
	},
}

var processProjectCmd = &cobra.Command{
	Use:   "process-project",
	Short: "Run one delayed batch for a project and print the report (cluster mode only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if projectID <= 0 {
			return fmt.Errorf("--project must be >0")
		}
		source, err := config.FromCLI(configFile, configDir)
		if err != nil {
			return err
		}
		service, err := app.NewBatchService(cmd.Context(), source, clock.RealClock{})
		if err != nil {
			return fmt.Errorf("service init failed: %w", err)
		}
		defer func() { _ = service.Close() }()

		report := service.ProcessProject(cmd.Context(), projectID)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "project=%d entries=%d condition_groups=%d queries=%d failed_queries=%d fired=%d\n",
			projectID, report.Entries, report.ConditionGroups, report.Queries, report.FailedQueries, report.Fired)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load the configuration and check every rule against the registry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		source, err := config.FromCLI(configFile, configDir)
		if err != nil {
			return err
		}
		cfg, err := config.LoadSnapshot(source)
		if err != nil {
			return err
		}
		registry, err := app.BuildRegistry()
		if err != nil {
			return err
		}
		list := config.DomainRules(cfg)
		if err := app.ValidateRules(registry, list); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d rules\n", len(list))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "path to one TOML config file")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "path to directory with TOML config fragments")
	processProjectCmd.Flags().Int64Var(&projectID, "project", 0, "project id to process")

	rootCmd.AddCommand(serveCmd, processProjectCmd, validateCmd)
}
