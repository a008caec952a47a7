package llmclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/xkilldash9x/suture/api/schemas"
	"github.com/xkilldash9x/suture/internal/config"
)

// captured holds what a fake provider endpoint received.
type captured struct {
	path    string
	headers http.Header
	body    string
}

func fakeProvider(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.path = r.URL.Path
		got.headers = r.Header.Clone()
		got.body = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

var selectorRequest = schemas.GenerationRequest{
	SystemPrompt: "You repair CSS selectors.",
	UserPrompt:   "The selector #old-search-box failed.",
	Options:      schemas.GenerationOptions{MaxTokens: 200},
}

func TestAnthropicClient_Generate(t *testing.T) {
	srv, got := fakeProvider(t, http.StatusOK, `{
		"content": [{"type": "text", "text": "[\"[aria-label*=\\\"search\\\"]\"]"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 12, "output_tokens": 8}
	}`)

	cfg := getValidLLMConfig(config.ProviderAnthropic)
	cfg.Endpoint = srv.URL + "/v1/messages"
	client, err := NewAnthropicClient(cfg, setupTestLogger(t))
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), selectorRequest)
	require.NoError(t, err)
	assert.Equal(t, `["[aria-label*=\"search\"]"]`, text)

	assert.Equal(t, "test-api-key", got.headers.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, got.headers.Get("anthropic-version"))
	assert.Equal(t, "You repair CSS selectors.", gjson.Get(got.body, "system").String())
	assert.Equal(t, int64(200), gjson.Get(got.body, "max_tokens").Int())
	assert.Equal(t, "user", gjson.Get(got.body, "messages.0.role").String())
}

func TestAnthropicClient_APIError(t *testing.T) {
	srv, _ := fakeProvider(t, http.StatusTooManyRequests, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	cfg := getValidLLMConfig(config.ProviderAnthropic)
	cfg.Endpoint = srv.URL
	client, err := NewAnthropicClient(cfg, setupTestLogger(t))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), selectorRequest)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Message)
}

func TestAnthropicClient_RequiresKey(t *testing.T) {
	cfg := getValidLLMConfig(config.ProviderAnthropic)
	cfg.APIKey = ""
	_, err := NewAnthropicClient(cfg, setupTestLogger(t))
	assert.Error(t, err)
}

func TestOpenAIClient_Generate(t *testing.T) {
	srv, got := fakeProvider(t, http.StatusOK, `{
		"choices": [{"message": {"role": "assistant", "content": "[\"#search\"]"}, "finish_reason": "stop"}],
		"usage": {"total_tokens": 40}
	}`)

	cfg := getValidLLMConfig(config.ProviderOpenAI)
	cfg.Endpoint = srv.URL + "/v1/chat/completions"
	client, err := NewOpenAIClient(cfg, setupTestLogger(t))
	require.NoError(t, err)

	req := selectorRequest
	req.Options.ForceJSONFormat = true
	text, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `["#search"]`, text)

	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.Equal(t, "Bearer test-api-key", got.headers.Get("Authorization"))
	assert.Equal(t, "system", gjson.Get(got.body, "messages.0.role").String())
	assert.Equal(t, "json_object", gjson.Get(got.body, "response_format.type").String())
	assert.InDelta(t, 0.3, gjson.Get(got.body, "temperature").Float(), 0.001)
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv, _ := fakeProvider(t, http.StatusOK, `{"choices": []}`)
	cfg := getValidLLMConfig(config.ProviderOpenAI)
	cfg.Endpoint = srv.URL
	client, err := NewOpenAIClient(cfg, setupTestLogger(t))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), selectorRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAIClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	cfg := getValidLLMConfig(config.ProviderOpenAI)
	cfg.Endpoint = srv.URL
	cfg.APITimeout = 50 * time.Millisecond
	client, err := NewOpenAIClient(cfg, setupTestLogger(t))
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Generate(context.Background(), selectorRequest)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGeminiClient_Generate(t *testing.T) {
	srv, got := fakeProvider(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "[\"#search\"]"}]}, "finishReason": "STOP"}],
		"usageMetadata": {"totalTokenCount": 21}
	}`)

	cfg := getValidLLMConfig(config.ProviderGemini)
	cfg.Endpoint = srv.URL
	cfg.Model = "gemini-2.5-flash"
	client, err := NewGeminiClient(context.Background(), cfg, setupTestLogger(t))
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), selectorRequest)
	require.NoError(t, err)
	assert.Equal(t, `["#search"]`, text)
	assert.True(t, strings.HasSuffix(got.path, "models/gemini-2.5-flash:generateContent"), got.path)
	assert.Contains(t, got.body, "#old-search-box")
}
