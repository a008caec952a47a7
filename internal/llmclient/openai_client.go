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

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAIClient talks to the Chat Completions API.
type OpenAIClient struct {
	config     config.LLMModelConfig
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = openAIEndpoint
	}
	return &OpenAIClient{
		config:     cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeoutOrDefault(cfg.APITimeout)},
		logger:     logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends a single chat completion request. There is no retry.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	messages := make([]openAIMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.UserPrompt})

	payload := openAIRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: temperature(req.Options.Temperature, c.config.Temperature),
		MaxTokens:   maxTokens(req.Options.MaxTokens, c.config.MaxTokens),
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	start := time.Now()
	body, err := postJSON(ctx, c.httpClient, "openai", c.endpoint, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	}, payload)
	if err != nil {
		return "", err
	}

	choice := gjson.GetBytes(body, "choices.0")
	if !choice.Exists() {
		return "", fmt.Errorf("openai API returned no choices")
	}
	text := choice.Get("message.content").String()
	if text == "" {
		return "", fmt.Errorf("openai API returned empty content (finish_reason: %s)", choice.Get("finish_reason").String())
	}

	c.logger.Debug("LLM generation complete (OpenAI)",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("total_tokens", gjson.GetBytes(body, "usage.total_tokens").Int()),
	)
	return text, nil
}

// Close is a no-op; the HTTP client holds no exclusive resources.
func (c *OpenAIClient) Close() error { return nil }
