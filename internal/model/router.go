package model

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codeer-ai/lybot/internal/config"
	lyErrors "github.com/codeer-ai/lybot/internal/errors"
	"github.com/codeer-ai/lybot/internal/logger"
	"github.com/codeer-ai/lybot/internal/model/contract"
	anthropicProvider "github.com/codeer-ai/lybot/internal/model/providers/anthropic"
	geminiProvider "github.com/codeer-ai/lybot/internal/model/providers/gemini"
	openaiProvider "github.com/codeer-ai/lybot/internal/model/providers/openai"
)

// DefaultModelRouter implements ModelRouter interface
type DefaultModelRouter struct {
	cfg       config.ModelsConfig
	providers map[string]Provider
	order     []string
	mu        sync.RWMutex
}

// NewModelRouter creates a new model router
func NewModelRouter(cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}

	if err := router.initProviders(); err != nil {
		return nil, err
	}

	return router, nil
}

// Route opens a chunk stream for the exposed model name. When opening fails
// and a fallback model is configured, the fallback is tried instead. Failures
// after the stream is open are never retried.
func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.Request) (contract.ChunkStream, error) {
	traceID := logger.GetTraceID(ctx)

	slog.Debug("Routing stream request", "model", model, "trace_id", traceID)

	provider, err := r.resolveProvider(ctx, model)
	if err != nil {
		return nil, err
	}

	return r.openWithFallback(ctx, model, provider, req, traceID)
}

// ListModels returns all registered model names in registry order
func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Health checks the health of the router and its providers
func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return lyErrors.Transient("no model providers available")
	}

	for name, provider := range r.providers {
		if err := provider.Health(ctx); err != nil {
			slog.Warn("Provider unhealthy", "provider", name, "error", err)
			return lyErrors.Transient(fmt.Sprintf("provider %s unhealthy", name))
		}
	}

	return nil
}

func (r *DefaultModelRouter) register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.providers[name] = provider
}

// initProviders initializes all providers from configuration
func (r *DefaultModelRouter) initProviders() error {
	for _, entry := range r.cfg.Registry {
		provider, err := r.createProvider(entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}

		r.register(entry.Name, provider)
		slog.Info("Provider initialized", "name", entry.Name, "type", entry.Provider, "upstream", entry.Model)
	}

	if len(r.providers) == 0 && len(r.cfg.Registry) > 0 {
		return lyErrors.Internal("no providers initialized")
	}

	return nil
}

// resolveProvider resolves a provider by model name with fallback
func (r *DefaultModelRouter) resolveProvider(ctx context.Context, model string) (Provider, error) {
	select {
	case <-ctx.Done():
		return nil, lyErrors.Wrap(ctx.Err(), "provider resolution cancelled")
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[model]
	if exists {
		return provider, nil
	}

	slog.Warn("Model not found", "model", model)

	if r.cfg.Fallback != "" && model != r.cfg.Fallback {
		fallbackProvider, fallbackExists := r.providers[r.cfg.Fallback]
		if fallbackExists {
			slog.Info("Using fallback model", "model", model, "fallback", r.cfg.Fallback)
			return fallbackProvider, nil
		}
	}

	return nil, lyErrors.NotFound(fmt.Sprintf("model %s not found", model))
}

func (r *DefaultModelRouter) openWithFallback(ctx context.Context, model string, provider Provider, req contract.Request, traceID string) (contract.ChunkStream, error) {
	maxAttempts := r.cfg.MaxFallbackAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultModelMaxFallbackAttempts
	}

	currentModel := model
	currentProvider := provider

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, lyErrors.Wrap(ctx.Err(), "stream request cancelled")
		default:
		}

		stream, err := currentProvider.Stream(ctx, req)
		if err == nil {
			slog.Debug("Stream opened", "model", currentModel, "attempt", attempt+1, "trace_id", traceID)
			return stream, nil
		}

		slog.Error("Provider stream failed", "model", currentModel, "attempt", attempt+1, "error", err, "trace_id", traceID)

		if ctx.Err() != nil || r.cfg.Fallback == "" || currentModel == r.cfg.Fallback {
			return nil, lyErrors.WrapWithCategory(err, "provider stream failed", lyErrors.ErrInternal)
		}

		r.mu.RLock()
		fallbackProvider, exists := r.providers[r.cfg.Fallback]
		r.mu.RUnlock()
		if !exists {
			return nil, lyErrors.NotFound(fmt.Sprintf("fallback model %s not found", r.cfg.Fallback))
		}

		slog.Info("Attempting fallback", "from", currentModel, "to", r.cfg.Fallback, "trace_id", traceID)
		currentModel = r.cfg.Fallback
		currentProvider = fallbackProvider
	}

	return nil, lyErrors.Internal("fallback exhausted")
}

// createProvider creates a provider instance based on registry entry
func (r *DefaultModelRouter) createProvider(entry config.ModelRegistry) (Provider, error) {
	timeout, err := config.DurationOrDefault(entry.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return nil, lyErrors.InvalidInput(fmt.Sprintf("invalid request_timeout for model %s: %v", entry.Name, err))
	}

	maxTokens := entry.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultModelMaxTokens
	}

	adapter := func(p streamer) *ProviderAdapter {
		return &ProviderAdapter{
			provider:      p,
			name:          entry.Name,
			providerType:  entry.Provider,
			upstreamModel: entry.Model,
			maxTokens:     maxTokens,
			timeout:       timeout,
		}
	}

	switch entry.Provider {
	case "openai":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}

		if entry.APIKey == "" {
			return nil, lyErrors.InvalidInput("API key required for OpenAI provider")
		}

		return adapter(openaiProvider.New(entry.APIKey, baseURL)), nil

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}

		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}

		return adapter(openaiProvider.New(apiKey, baseURL)), nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, lyErrors.InvalidInput("API key required for Anthropic provider")
		}

		return adapter(anthropicProvider.New(entry.APIKey, entry.BaseURL)), nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, lyErrors.InvalidInput("API key required for Gemini provider")
		}

		provider, err := geminiProvider.New(entry.APIKey, geminiProvider.Options{IncludeThoughts: entry.IncludeThoughts})
		if err != nil {
			return nil, lyErrors.WrapWithCategory(err, "failed to create Gemini provider", lyErrors.ErrInternal)
		}

		return adapter(provider), nil

	default:
		return nil, lyErrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}

// newRouterWithProviders builds a router over pre-built providers.
func newRouterWithProviders(cfg config.ModelsConfig, providers map[string]Provider, order ...string) *DefaultModelRouter {
	r := &DefaultModelRouter{cfg: cfg, providers: make(map[string]Provider)}
	for _, name := range order {
		r.register(name, providers[name])
	}
	return r
}

var _ ModelRouter = (*DefaultModelRouter)(nil)
