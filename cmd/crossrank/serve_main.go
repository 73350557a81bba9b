package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/crossrank/crossrank/internal/httpapi"
	"github.com/crossrank/crossrank/internal/metrics"
	"github.com/crossrank/crossrank/internal/run"
)

// runServe starts the monitoring HTTP server.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if err := cfg.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	runOnStart, _ := flags.GetBool("run-on-start")

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

	server := httpapi.NewServer(cfg.Server, runner, reg)

	// An unreachable source at boot should not keep the monitoring
	// surface down; the run can be retriggered over the API.
	if runOnStart {
		go func() {
			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()
			if _, err := runner.Run(runCtx); err != nil {
				log.Warn().Err(err).Msg("Startup signal run failed")
			}
		}()
	}

	log.Info().
		Str("health", fmt.Sprintf("http://%s/health", cfg.Server.Addr())).
		Str("metrics", fmt.Sprintf("http://%s/metrics", cfg.Server.Addr())).
		Str("latest", fmt.Sprintf("http://%s/api/v1/runs/latest", cfg.Server.Addr())).
		Str("stream", fmt.Sprintf("ws://%s/api/v1/ws/runs", cfg.Server.Addr())).
		Msg("Monitor endpoints available")

	return server.Run(ctx)
}
