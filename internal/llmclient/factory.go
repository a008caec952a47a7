package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
)

// ErrNotConfigured is returned when no usable model is configured, typically
// because no API key is available. Callers treat it as "external suggestions
// unavailable" rather than a fatal error.
var ErrNotConfigured = errors.New("no language model configured")

// NewClient builds an LLMRouter from the agent configuration by looking up the
// fast and powerful defaults in the models map.
func NewClient(ctx context.Context, cfg config.AgentConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	routerCfg := cfg.LLM

	fastCfg, ok := routerCfg.Models[routerCfg.DefaultFastModel]
	if !ok {
		return nil, fmt.Errorf("configuration for default fast model '%s' not found in models map", routerCfg.DefaultFastModel)
	}
	powerfulCfg, ok := routerCfg.Models[routerCfg.DefaultPowerfulModel]
	if !ok {
		return nil, fmt.Errorf("configuration for default powerful model '%s' not found in models map", routerCfg.DefaultPowerfulModel)
	}

	// A tier without a key borrows the other tier's client, so a single
	// provider key is enough to enable external suggestions.
	fastClient, fastErr := newProviderClient(ctx, fastCfg, logger)
	powerfulClient, powerfulErr := newProviderClient(ctx, powerfulCfg, logger)
	switch {
	case fastErr != nil && powerfulErr != nil:
		if errors.Is(fastErr, ErrNotConfigured) && errors.Is(powerfulErr, ErrNotConfigured) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to initialize LLM clients: %w", errors.Join(fastErr, powerfulErr))
	case fastErr != nil:
		logger.Info("Fast tier unavailable, routing to powerful model", zap.Error(fastErr))
		fastClient = powerfulClient
	case powerfulErr != nil:
		logger.Info("Powerful tier unavailable, routing to fast model", zap.Error(powerfulErr))
		powerfulClient = fastClient
	}

	router, err := NewLLMRouter(logger, fastClient, powerfulClient)
	if err != nil {
		return nil, err
	}
	return router.WithRateLimit(routerCfg.RequestsPerMinute), nil
}

// newProviderClient dispatches on the configured provider.
func newProviderClient(ctx context.Context, cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s model %q has no API key", ErrNotConfigured, cfg.Provider, cfg.Model)
	}
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderGemini)
	}
}
