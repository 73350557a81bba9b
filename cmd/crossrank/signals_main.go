package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/crossrank/crossrank/internal/config"
	"github.com/crossrank/crossrank/internal/metrics"
	"github.com/crossrank/crossrank/internal/run"
	"github.com/crossrank/crossrank/internal/signal"
)

// policyValue adapts signal.Policy to the flag interface so unknown
// policies are rejected at parse time instead of after config merging.
type policyValue signal.Policy

func (p *policyValue) String() string { return string(*p) }

func (p *policyValue) Set(s string) error {
	policy := signal.Policy(s)
	if err := policy.Validate(); err != nil {
		return err
	}
	*p = policyValue(policy)
	return nil
}

func (p *policyValue) Type() string { return "policy" }

// addSignalFlags registers the overrides the signals command accepts on top
// of the config file.
func addSignalFlags(fs *pflag.FlagSet) {
	fs.String("input", "", "Factor panel file, overrides source.path")
	fs.String("source", "", "Source kind (csv|xlsx|postgres), overrides config")
	fs.String("sheet", "", "Workbook sheet name for xlsx sources")
	fs.Float64("percent", 0, "Tail fraction per side in (0, 0.5], overrides config")
	fs.Int("hold", 0, "Rebalance interval in rows for the periodic policy")
	fs.Var(new(policyValue), "policy", "Rebalance policy (continuous|periodic)")
	fs.Int("workers", 0, "Worker goroutines for row scoring (0 = one per CPU)")
	fs.String("out", "", "Artifacts directory, overrides config")
	fs.String("progress", "auto", "Progress output mode (auto|plain|json)")
}

// runTimeout bounds one-shot executions; slow sources fail rather than hang.
const runTimeout = 5 * time.Minute

// loadConfig reads the config file named by --config, or defaults plus
// environment overrides when the flag is empty.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// applySignalFlags layers explicit CLI flags over the loaded config.
// Only flags the user actually set are applied.
func applySignalFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("input") {
		cfg.Source.Path, _ = flags.GetString("input")
	}
	if flags.Changed("source") {
		cfg.Source.Kind, _ = flags.GetString("source")
	}
	if flags.Changed("sheet") {
		cfg.Source.Sheet, _ = flags.GetString("sheet")
	}
	if flags.Changed("percent") {
		cfg.Signals.Percent, _ = flags.GetFloat64("percent")
	}
	if flags.Changed("hold") {
		cfg.Signals.HoldDays, _ = flags.GetInt("hold")
	}
	if flags.Changed("policy") {
		cfg.Signals.Policy = signal.Policy(flags.Lookup("policy").Value.String())
	}
	if flags.Changed("workers") {
		cfg.Signals.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("out") {
		cfg.Artifacts.Dir, _ = flags.GetString("out")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config after flag overrides: %w", err)
	}
	return nil
}

// runSignals executes one signal run from the CLI.
func runSignals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applySignalFlags(cmd, cfg); err != nil {
		return err
	}

	progressFlag, _ := cmd.Flags().GetString("progress")
	mode, err := resolveProgressMode(progressFlag)
	if err != nil {
		return err
	}

	log.Info().
		Str("source", cfg.Source.Kind).
		Float64("percent", cfg.Signals.Percent).
		Str("policy", cfg.Signals.Policy.String()).
		Int("hold_days", cfg.Signals.HoldDays).
		Str("progress", string(mode)).
		Msg("Starting signal computation")

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	reg := metrics.NewRegistry()
	src, cleanup, err := run.BuildSource(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	runner, err := run.New(cfg, src, reg)
	if err != nil {
		return err
	}
	runner.SetSink(newProgressSink(mode))

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if mode != progressJSON {
		fmt.Printf("✅ Signals computed: %d rows x %d assets, %d decisions (%d missing) in %s\n",
			result.Rows, result.Cols, result.Decisions, result.MissingDecisions, result.ProcessingTime)
		fmt.Printf("   signals: %s\n", result.Artifacts.SignalsCSV)
		fmt.Printf("   summary: %s\n", result.Artifacts.SummaryJSON)
		fmt.Printf("   report:  %s\n", result.Artifacts.ReportMD)
	}
	return nil
}
