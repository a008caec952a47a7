package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	config     config.LLMModelConfig
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

// NewAnthropicClient initializes the client.
func NewAnthropicClient(cfg config.LLMModelConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = anthropicEndpoint
	}
	return &AnthropicClient{
		config:     cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeoutOrDefault(cfg.APITimeout)},
		logger:     logger.Named("llm_client.anthropic"),
	}, nil
}

// Generate sends a single message request. There is no retry.
func (c *AnthropicClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	payload := anthropicRequest{
		Model:       c.config.Model,
		MaxTokens:   maxTokens(req.Options.MaxTokens, c.config.MaxTokens),
		System:      req.SystemPrompt,
		Temperature: temperature(req.Options.Temperature, c.config.Temperature),
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
	}

	start := time.Now()
	body, err := postJSON(ctx, c.httpClient, "anthropic", c.endpoint, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": anthropicVersion,
	}, payload)
	if err != nil {
		return "", err
	}

	text := gjson.GetBytes(body, "content.#(type==\"text\").text").String()
	if text == "" {
		return "", fmt.Errorf("anthropic API returned no text content (stop_reason: %s)", gjson.GetBytes(body, "stop_reason").String())
	}

	c.logger.Debug("LLM generation complete (Anthropic)",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("input_tokens", gjson.GetBytes(body, "usage.input_tokens").Int()),
		zap.Int64("output_tokens", gjson.GetBytes(body, "usage.output_tokens").Int()),
	)
	return text, nil
}

// Close is a no-op; the HTTP client holds no exclusive resources.
func (c *AnthropicClient) Close() error { return nil }

func maxTokens(requested, configured int) int {
	switch {
	case requested > 0:
		return requested
	case configured > 0:
		return configured
	}
	return 500
}

func temperature(requested float64, configured float32) float64 {
	if requested > 0 {
		return requested
	}
	return float64(configured)
}
