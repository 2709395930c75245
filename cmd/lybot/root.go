package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/codeer-ai/lybot/internal/config"
	"github.com/codeer-ai/lybot/internal/logger"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:               "lybot",
	Short:             "OpenAI-compatible gateway for Legislative Yuan research",
	Long:              `LyBot serves an OpenAI-compatible chat completions API (including SSE streaming) backed by an agent that queries Taiwan Legislative Yuan open data.`,
	Version:           version,
	PersistentPreRunE: loadRuntime,
	SilenceUsage:      true,
}

// loadRuntime resolves configuration once per invocation and installs the
// process logger before any subcommand runs.
func loadRuntime(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cmd)
	if err != nil {
		return err
	}
	cfg = loaded

	logger.Setup(cfg.Server.LogLevel)
	slog.Debug("Configuration loaded", "command", cmd.CommandPath(), "config", cfgFile, "default_model", cfg.Models.Default)
	return nil
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "lybot:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lybot/config.yaml)")
	flags.String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	flags.Int("server.port", config.DefaultServerPort, "port the gateway listens on")
	flags.String("models.default", config.DefaultModelDefault, "model id used when a request names an unknown model")
}
