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
	anthropicDefaultModel = "claude-3-5-haiku-latest"
	anthropicBaseURL      = "https://api.anthropic.com/v1"

	// anthropicAPIVersion is the required Anthropic API version header
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicClient calls the Anthropic Messages API
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	temp       float64
	maxTokens  int
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewAnthropicClient creates an Anthropic client
func NewAnthropicClient(cfg ClientConfig) *AnthropicClient {
	if cfg.Model == "" {
		cfg.Model = anthropicDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicBaseURL
	}
	temp := 0.2
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}
	maxTokens := 1000
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}

	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		temp:       temp,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     cfg.Logger,
	}
}

func (c *AnthropicClient) Type() Type { return TypeAnthropic }

// IsConfigured returns true if the client has an API key
func (c *AnthropicClient) IsConfigured() bool { return c.apiKey != "" }

type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a messages request with retry on network failures
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrProviderConfig, "Anthropic API key not configured")
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

	body := anthropicMessagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.UserPrompt},
		},
	}

	return completeWithRetry(ctx, c.logger, string(TypeAnthropic), func() (*Response, error) {
		return c.doRequest(ctx, body)
	})
}

func (c *AnthropicClient) doRequest(ctx context.Context, body anthropicMessagesRequest) (*Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

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
		return nil, errors.Newf("Anthropic API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var msgResp anthropicMessagesResponse
	if err := json.Unmarshal(respBody, &msgResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	var text strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("no text content from Anthropic")
	}

	return &Response{
		Text:  strings.TrimSpace(text.String()),
		Model: msgResp.Model,
		Usage: TokenUsage{
			PromptTokens:     msgResp.Usage.InputTokens,
			CompletionTokens: msgResp.Usage.OutputTokens,
			TotalTokens:      msgResp.Usage.InputTokens + msgResp.Usage.OutputTokens,
		},
	}, nil
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *AnthropicClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
