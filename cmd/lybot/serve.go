package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeer-ai/lybot/internal/config"
	"github.com/codeer-ai/lybot/internal/daemon"
	"github.com/codeer-ai/lybot/internal/daemon/components"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"daemon"},
	Short:   "Start the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDaemon(cfg)
		if err != nil {
			return err
		}

		slog.Info("LyBot starting up...", "port", cfg.Server.Port, "default_model", cfg.Models.Default)
		err = d.Start(cmd.Context())
		if err != nil {
			// Cancellation via signal/context is a graceful shutdown case for CLI.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("LyBot stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("LyBot stopped gracefully")
		return nil
	},
}

func buildDaemon(cfg *config.Config) (*daemon.Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is not loaded")
	}

	d, err := daemon.NewDaemon(fmt.Sprintf(":%d", cfg.Server.Port), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create daemon: %w", err)
	}

	components.Version = version

	modelsComp := components.NewModelsComponent(cfg.Models)
	toolsComp := components.NewToolsComponent(cfg.Tools)
	sessionsComp := components.NewSessionsComponent()
	analyticsComp := components.NewAnalyticsComponent(cfg.Analytics)
	httpComp := components.NewHTTPServerComponent(d, cfg, modelsComp, toolsComp, sessionsComp, analyticsComp)

	d.AddComponent(modelsComp)
	d.AddComponent(toolsComp)
	d.AddComponent(sessionsComp)
	d.AddComponent(analyticsComp)
	d.AddComponent(httpComp)

	return d, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
