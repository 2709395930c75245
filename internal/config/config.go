package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server    ServerConfig    `koanf:"server" yaml:"server"`
	Models    ModelsConfig    `koanf:"models" yaml:"models"`
	Agent     AgentConfig     `koanf:"agent" yaml:"agent"`
	Gateway   GatewayConfig   `koanf:"gateway" yaml:"gateway"`
	Tools     ToolsConfig     `koanf:"tools" yaml:"tools"`
	Analytics AnalyticsConfig `koanf:"analytics" yaml:"analytics"`
	Daemon    DaemonConfig    `koanf:"daemon" yaml:"daemon"`
}

type ServerConfig struct {
	Port            int      `koanf:"port" yaml:"port"`
	LogLevel        string   `koanf:"log_level" yaml:"log_level"`
	ReadTimeout     string   `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string   `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     string   `koanf:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout string   `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string `koanf:"cors_origins" yaml:"cors_origins"`
	MaxBodyBytes    int64    `koanf:"max_body_bytes" yaml:"max_body_bytes"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default" yaml:"default"`
	Fallback            string          `koanf:"fallback" yaml:"fallback"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts" yaml:"max_fallback_attempts"`
	OwnedBy             string          `koanf:"owned_by" yaml:"owned_by"`
	Registry            []ModelRegistry `koanf:"registry" yaml:"registry"`
}

// ModelRegistry binds an exposed model id to an upstream provider model.
type ModelRegistry struct {
	Name            string `koanf:"name" yaml:"name"`
	Provider        string `koanf:"provider" yaml:"provider"`
	Model           string `koanf:"model" yaml:"model"`
	BaseURL         string `koanf:"base_url" yaml:"base_url,omitempty"`
	APIKey          string `koanf:"api_key" yaml:"api_key,omitempty"`
	RequestTimeout  string `koanf:"request_timeout" yaml:"request_timeout,omitempty"`
	MaxTokens       int    `koanf:"max_tokens" yaml:"max_tokens,omitempty"`
	IncludeThoughts bool   `koanf:"include_thoughts" yaml:"include_thoughts,omitempty"`
}

type AgentConfig struct {
	Instructions     string `koanf:"instructions" yaml:"instructions"`
	InstructionsFile string `koanf:"instructions_file" yaml:"instructions_file,omitempty"`
	MaxTurns         int    `koanf:"max_turns" yaml:"max_turns"`
	ToolTimeout      string `koanf:"tool_timeout" yaml:"tool_timeout"`
	MaxParallelTools int    `koanf:"max_parallel_tools" yaml:"max_parallel_tools"`
	ChunkStrategy    string `koanf:"chunk_strategy" yaml:"chunk_strategy"`
	EstimateUsage    bool   `koanf:"estimate_usage" yaml:"estimate_usage"`
	TokenEncoding    string `koanf:"token_encoding" yaml:"token_encoding"`
}

type GatewayConfig struct {
	EmitToolResults    bool   `koanf:"emit_tool_results" yaml:"emit_tool_results"`
	SessionLockTimeout string `koanf:"session_lock_timeout" yaml:"session_lock_timeout"`
}

type ToolsConfig struct {
	Enabled []string    `koanf:"enabled" yaml:"enabled"`
	LYAPI   LYAPIConfig `koanf:"lyapi" yaml:"lyapi"`
}

type LYAPIConfig struct {
	BaseURL   string `koanf:"base_url" yaml:"base_url"`
	Timeout   string `koanf:"timeout" yaml:"timeout"`
	Term      int    `koanf:"term" yaml:"term"`
	PageLimit int    `koanf:"page_limit" yaml:"page_limit"`
}

type AnalyticsConfig struct {
	Enabled       bool   `koanf:"enabled" yaml:"enabled"`
	PostHogAPIKey string `koanf:"posthog_api_key" yaml:"posthog_api_key,omitempty"`
	PostHogHost   string `koanf:"posthog_host" yaml:"posthog_host"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval" yaml:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout" yaml:"startup_shutdown_timeout"`
}

const (
	DefaultServerPort                   = 8000
	DefaultServerLogLevel               = "info"
	DefaultServerReadTimeout            = "30s"
	DefaultServerWriteTimeout           = "10m"
	DefaultServerIdleTimeout            = "120s"
	DefaultServerShutdownTimeout        = "10s"
	DefaultServerMaxBodyBytes           = 10 << 20
	DefaultModelDefault                 = "lybot-gemini"
	DefaultModelUpstream                = "gemini-2.5-pro"
	DefaultModelOwnedBy                 = "lybot"
	DefaultModelMaxFallbackAttempts     = 2
	DefaultModelRequestTimeout          = "120s"
	DefaultModelMaxTokens               = 8192
	DefaultOpenAIBaseURL                = "https://api.openai.com/v1"
	DefaultOllamaBaseURL                = "http://localhost:11434/v1"
	DefaultOllamaAPIKey                 = "ollama"
	DefaultAgentMaxTurns                = 10
	DefaultAgentToolTimeout             = "30s"
	DefaultAgentMaxParallelTools        = 4
	DefaultAgentChunkStrategy           = "tolerant"
	DefaultAgentEstimateUsage           = false
	DefaultAgentTokenEncoding           = "o200k_base"
	DefaultGatewayEmitToolResults       = true
	DefaultGatewaySessionLockTimeout    = "2m"
	DefaultLYAPIBaseURL                 = "https://ly.govapi.tw/v2"
	DefaultLYAPITimeout                 = "30s"
	DefaultLYAPITerm                    = 11
	DefaultLYAPIPageLimit               = 200
	DefaultAnalyticsPostHogHost         = "https://us.i.posthog.com"
	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonHealthCheckInterval    = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
)

// DefaultAgentInstructions is the system prompt used when neither agent.instructions
// nor agent.instructions_file is configured.
const DefaultAgentInstructions = `You are a helpful assistant that can help with tasks related to the Legislative Yuan.

* 如果跟黨籍相關的問題，請使用完整的黨名
* 都是查詢第 11 屆立法委員
* Always call tools to get the latest information`

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                  DefaultServerPort,
		"server.log_level":             DefaultServerLogLevel,
		"server.read_timeout":          DefaultServerReadTimeout,
		"server.write_timeout":         DefaultServerWriteTimeout,
		"server.idle_timeout":          DefaultServerIdleTimeout,
		"server.shutdown_timeout":      DefaultServerShutdownTimeout,
		"server.cors_origins":          []string{"*"},
		"server.max_body_bytes":        DefaultServerMaxBodyBytes,
		"models.default":               DefaultModelDefault,
		"models.fallback":              "",
		"models.max_fallback_attempts": DefaultModelMaxFallbackAttempts,
		"models.owned_by":              DefaultModelOwnedBy,
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Provider: "gemini", Model: DefaultModelUpstream, IncludeThoughts: true},
		},
		"agent.instructions":              DefaultAgentInstructions,
		"agent.max_turns":                 DefaultAgentMaxTurns,
		"agent.tool_timeout":              DefaultAgentToolTimeout,
		"agent.max_parallel_tools":        DefaultAgentMaxParallelTools,
		"agent.chunk_strategy":            DefaultAgentChunkStrategy,
		"agent.estimate_usage":            DefaultAgentEstimateUsage,
		"agent.token_encoding":            DefaultAgentTokenEncoding,
		"gateway.emit_tool_results":       DefaultGatewayEmitToolResults,
		"gateway.session_lock_timeout":    DefaultGatewaySessionLockTimeout,
		"tools.lyapi.base_url":            DefaultLYAPIBaseURL,
		"tools.lyapi.timeout":             DefaultLYAPITimeout,
		"tools.lyapi.term":                DefaultLYAPITerm,
		"tools.lyapi.page_limit":          DefaultLYAPIPageLimit,
		"analytics.enabled":               true,
		"analytics.posthog_host":          DefaultAnalyticsPostHogHost,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTimeout,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		expanded, err := ExpandPath(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(expanded), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", expanded, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".lybot", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	k.Load(env.Provider("LYBOT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LYBOT_")), "_", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "gemini"
		}
		if m.Model == "" {
			cfg.Models.Registry[i].Model = m.Name
		}
	}

	injectProviderKey(&cfg, "gemini", os.Getenv("GEMINI_API_KEY"))
	injectProviderKey(&cfg, "gemini", os.Getenv("GOOGLE_API_KEY"))
	injectProviderKey(&cfg, "openai", os.Getenv("OPENAI_API_KEY"))
	injectProviderKey(&cfg, "anthropic", os.Getenv("ANTHROPIC_API_KEY"))

	if key := os.Getenv("POSTHOG_API_KEY"); key != "" && cfg.Analytics.PostHogAPIKey == "" {
		cfg.Analytics.PostHogAPIKey = key
	}
	if host := os.Getenv("POSTHOG_HOST"); host != "" {
		cfg.Analytics.PostHogHost = host
	}

	if cfg.Agent.InstructionsFile != "" {
		path, err := ExpandPath(cfg.Agent.InstructionsFile)
		if err != nil {
			return nil, err
		}
		cfg.Agent.InstructionsFile = path
	}

	return &cfg, nil
}

func injectProviderKey(cfg *Config, provider, key string) {
	if key == "" {
		return
	}
	for i, m := range cfg.Models.Registry {
		if m.Provider == provider && m.APIKey == "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}
}

// ResolveInstructions returns the agent system prompt, preferring the
// instructions file when one is configured.
func (c AgentConfig) ResolveInstructions() (string, error) {
	if c.InstructionsFile == "" {
		return c.Instructions, nil
	}
	data, err := os.ReadFile(c.InstructionsFile)
	if err != nil {
		return "", fmt.Errorf("read instructions file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ModelIDs returns the exposed model ids in registry order.
func (m ModelsConfig) ModelIDs() []string {
	ids := make([]string, 0, len(m.Registry))
	seen := make(map[string]struct{}, len(m.Registry))
	for _, entry := range m.Registry {
		if _, ok := seen[entry.Name]; ok || entry.Name == "" {
			continue
		}
		seen[entry.Name] = struct{}{}
		ids = append(ids, entry.Name)
	}
	return ids
}
