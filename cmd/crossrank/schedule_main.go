package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/crossrank/crossrank/internal/metrics"
	"github.com/crossrank/crossrank/internal/run"
	"github.com/crossrank/crossrank/internal/sched"
)

// runScheduleList prints the configured jobs.
func runScheduleList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if len(cfg.Schedule.Jobs) == 0 {
		fmt.Println("No scheduled jobs configured")
		return nil
	}

	fmt.Printf("%-24s %-20s %s\n", "NAME", "SCHEDULE", "ENABLED")
	for _, job := range cfg.Schedule.Jobs {
		fmt.Printf("%-24s %-20s %v\n", job.Name, job.Cron, job.Enabled)
	}
	return nil
}

// runScheduleStart runs the scheduler daemon until interrupted.
func runScheduleStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Schedule.Jobs) == 0 {
		return fmt.Errorf("no scheduled jobs configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	scheduler := sched.New(runner)
	if err := scheduler.RegisterAll(cfg.Schedule.Jobs); err != nil {
		return err
	}

	scheduler.Start()
	fmt.Printf("✅ Scheduler running with %d job(s), Ctrl+C to stop\n", len(cfg.Schedule.Jobs))

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	scheduler.Stop()
	return nil
}

// runScheduleRun executes one configured job immediately.
func runScheduleRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
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

	scheduler := sched.New(runner)
	if err := scheduler.RegisterAll(cfg.Schedule.Jobs); err != nil {
		return err
	}

	jobName := args[0]
	if err := scheduler.RunNow(jobName); err != nil {
		return err
	}

	if latest, ok := runner.Latest(); ok {
		fmt.Printf("✅ Job %s completed: %d decisions, artifacts in %s\n",
			jobName, latest.Decisions, latest.Artifacts.OutputDir)
	}
	return nil
}
