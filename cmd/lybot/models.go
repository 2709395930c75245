package main

import (
	"fmt"

	"github.com/codeer-ai/lybot/internal/config"
	"github.com/codeer-ai/lybot/internal/tool"
	_ "github.com/codeer-ai/lybot/internal/tool/builtin"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List exposed model ids and their upstream models",
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := config.Load(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), newTableFormatter().FormatModels(loadedCfg.Models))
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := config.Load(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		descriptors, err := enabledTools(loadedCfg.Tools)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), newTableFormatter().FormatTools(descriptors))
		return nil
	},
}

func enabledTools(cfg config.ToolsConfig) ([]tool.ToolDescriptor, error) {
	timeout, err := config.DurationOrDefault(cfg.LYAPI.Timeout, config.DefaultLYAPITimeout)
	if err != nil {
		return nil, fmt.Errorf("parse lyapi timeout: %w", err)
	}
	tools, err := tool.InstantiateBuiltins(tool.BuiltinOptions{
		LYAPIBaseURL: cfg.LYAPI.BaseURL,
		LYAPITimeout: timeout,
		Term:         cfg.LYAPI.Term,
		PageLimit:    cfg.LYAPI.PageLimit,
	}, cfg.Enabled)
	if err != nil {
		return nil, err
	}

	registry := tool.NewRegistry()
	for _, t := range tools {
		registry.Register(t)
	}
	return registry.GetDescriptors(), nil
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(toolsCmd)
}
