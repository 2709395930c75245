package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/codeer-ai/lybot/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

//go:embed templates/config.yaml
var configTemplate []byte

var configSections = []string{"server", "models", "agent", "gateway", "tools", "analytics", "daemon"}

var (
	initForce bool
	initPath  string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the LyBot configuration",
}

var configViewCmd = &cobra.Command{
	Use:       "view [section]",
	Short:     "Print the resolved configuration with secrets masked",
	Long:      `Print the configuration after defaults, the config file, LYBOT_* environment variables and flags are merged. API keys are masked. Pass a section name to print only that section.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: configSections,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved := cfg
		if resolved == nil {
			var err error
			if resolved, err = config.Load(cmd); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
		}

		var doc any = redactConfigSecrets(resolved)
		if len(args) == 1 {
			section, err := configSection(doc, args[0])
			if err != nil {
				return err
			}
			doc = section
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration template",
	Long:  `Write the bundled configuration template to $HOME/.lybot/config.yaml, or to --path. An existing file is left alone unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := initTarget()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		_, statErr := os.Stat(target)
		switch {
		case statErr == nil && !initForce:
			fmt.Fprintf(out, "Config already exists at %s (use --force to overwrite)\n", target)
			return nil
		case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
			return fmt.Errorf("failed to check %s: %w", target, statErr)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		body := strings.TrimSpace(string(configTemplate)) + "\n"
		if err := os.WriteFile(target, []byte(body), 0600); err != nil {
			return fmt.Errorf("failed to write config to %s: %w", target, err)
		}

		fmt.Fprintf(out, "✓ Initialized config at %s\n", target)
		fmt.Fprintln(out, "Set GEMINI_API_KEY (or OPENAI_API_KEY / ANTHROPIC_API_KEY) and run 'lybot config view' to check it.")
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			var err error
			if path, err = defaultConfigPath(); err != nil {
				return err
			}
		}
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), expanded)
		return nil
	},
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".lybot", "config.yaml"), nil
}

func initTarget() (string, error) {
	if strings.TrimSpace(initPath) == "" {
		return defaultConfigPath()
	}
	return config.ExpandPath(initPath)
}

// configSection round-trips the config through YAML so the section keys
// match what the file uses.
func configSection(doc any, name string) (any, error) {
	if !slices.Contains(configSections, name) {
		return nil, fmt.Errorf("unknown config section %q (want one of %s)", name, strings.Join(configSections, ", "))
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return map[string]any{name: tree[name]}, nil
}

// redactConfigSecrets returns a copy of in with every credential masked.
func redactConfigSecrets(in *config.Config) *config.Config {
	if in == nil {
		return nil
	}

	out := *in
	out.Models.Registry = slices.Clone(in.Models.Registry)
	for i := range out.Models.Registry {
		out.Models.Registry[i].APIKey = maskSecret(out.Models.Registry[i].APIKey)
	}
	out.Analytics.PostHogAPIKey = maskSecret(out.Analytics.PostHogAPIKey)
	return &out
}

// maskSecret keeps two characters on each side of keys long enough to
// identify them.
func maskSecret(secret string) string {
	switch n := len(secret); {
	case n == 0:
		return ""
	case n <= 4:
		return "****"
	default:
		return secret[:2] + strings.Repeat("*", n-4) + secret[n-2:]
	}
}

func init() {
	configInitCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config file")
	configInitCmd.Flags().StringVar(&initPath, "path", "", "write the template here instead of $HOME/.lybot/config.yaml")

	configCmd.AddCommand(configViewCmd, configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
