package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brandlens/brandlens/errors"
)

const (
	openRouterDefaultModel = "openai/gpt-4o-mini"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
)

// OpenRouterClient calls the OpenRouter chat completions API.
// OpenRouter speaks the OpenAI wire format plus an X-Title header
// for dashboard attribution.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	model      string
	temp       float64
	maxTokens  int
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewOpenRouterClient creates an OpenRouter client
func NewOpenRouterClient(cfg ClientConfig) *OpenRouterClient {
	if cfg.Model == "" {
		cfg.Model = openRouterDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterBaseURL
	}
	temp := 0.2
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}
	maxTokens := 1000
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}

	return &OpenRouterClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		temp:       temp,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     cfg.Logger,
	}
}

func (c *OpenRouterClient) Type() Type { return TypeOpenRouter }

// IsConfigured returns true if the client has an API key
func (c *OpenRouterClient) IsConfigured() bool { return c.apiKey != "" }

// Complete sends a chat completion request with retry on network failures
func (c *OpenRouterClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrProviderConfig, "OpenRouter API key not configured")
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	temperature := c.temp
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	messages := []openAIMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.UserPrompt})

	body := openAIChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	return completeWithRetry(ctx, c.logger, string(TypeOpenRouter), func() (*Response, error) {
		return c.doRequest(ctx, body)
	})
}

func (c *OpenRouterClient) doRequest(ctx context.Context, body openAIChatRequest) (*Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Title", "brandlens")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("OpenRouter API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	if len(chatResp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenRouter")
	}

	return &Response{
		Text:  strings.TrimSpace(chatResp.Choices[0].Message.Content),
		Model: chatResp.Model,
		Usage: chatResp.Usage,
	}, nil
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *OpenRouterClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
