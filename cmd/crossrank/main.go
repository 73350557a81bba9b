package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "CrossRank"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	// Local overrides; absence is not an error.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded environment from .env")
	}

	rootCmd := &cobra.Command{
		Use:     "crossrank",
		Short:   "Cross-sectional long/short signals from factor panels",
		Version: version,
		Long: `CrossRank ranks assets cross-sectionally on factor scores and emits
long/short/flat signals for the extreme tails of each ranking.

Point it at a factor panel (CSV, XLSX, or Postgres), pick the tail
fraction and rebalance policy, and it writes the signal panel plus a
run report. Run 'crossrank signals' for a one-shot computation,
'crossrank serve' for the monitoring server, or 'crossrank schedule'
for recurring runs.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to config YAML (defaults plus env overrides when omitted)")
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s %s\n", appName, version))

	signalsCmd := &cobra.Command{
		Use:   "signals",
		Short: "Compute signals once and write artifacts",
		Long:  "Fetch the factor panel from the configured source, compute long/short signals, and write signals.csv, summary.json, and report.md",
		RunE:  runSignals,
	}
	addSignalFlags(signalsCmd.Flags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring HTTP server",
		Long:  "Serves /health, /metrics, /api/v1/runs/latest, POST /api/v1/runs, and a websocket stream of run progress at /api/v1/ws/runs",
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "Listen host, overrides config")
	serveCmd.Flags().Int("port", 0, "Listen port, overrides config")
	serveCmd.Flags().Bool("run-on-start", true, "Execute one signal run at startup")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Recurring signal runs on cron schedules",
		Long:  "Manage the configured cron jobs that execute signal runs",
	}

	scheduleListCmd := &cobra.Command{
		Use:   "list",
		Short: "List all configured scheduled jobs",
		RunE:  runScheduleList,
	}

	scheduleStartCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		Long:  "Run the scheduler in the foreground until interrupted, executing jobs on their cron schedules",
		RunE:  runScheduleStart,
	}

	scheduleRunCmd := &cobra.Command{
		Use:   "run [job-name]",
		Short: "Execute a configured job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleRun,
	}

	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)

	rootCmd.AddCommand(signalsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
