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
	openAIDefaultModel = "gpt-4o-mini"
	openAIBaseURL      = "https://api.openai.com/v1"
)

// OpenAIClient calls the OpenAI chat completions API
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	temp       float64
	maxTokens  int
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// ClientConfig holds configuration shared by the provider clients
type ClientConfig struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = use default (0.2)
	MaxTokens   *int     // nil = use default (1000)
	BaseURL     string   // override for testing
	Logger      *zap.SugaredLogger
}

// NewOpenAIClient creates an OpenAI client
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIBaseURL
	}
	temp := 0.2
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}
	maxTokens := 1000
	if cfg.MaxTokens != nil {
		maxTokens = *cfg.MaxTokens
	}

	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		temp:       temp,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     cfg.Logger,
	}
}

func (c *OpenAIClient) Type() Type { return TypeOpenAI }

// IsConfigured returns true if the client has an API key
func (c *OpenAIClient) IsConfigured() bool { return c.apiKey != "" }

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
}

// Complete sends a chat completion request with retry on network failures
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrProviderConfig, "OpenAI API key not configured")
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

	return completeWithRetry(ctx, c.logger, string(TypeOpenAI), func() (*Response, error) {
		return c.doRequest(ctx, body)
	})
}

func (c *OpenAIClient) doRequest(ctx context.Context, body openAIChatRequest) (*Response, error) {
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
		return nil, errors.Newf("OpenAI API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}

	if len(chatResp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenAI")
	}

	return &Response{
		Text:  strings.TrimSpace(chatResp.Choices[0].Message.Content),
		Model: chatResp.Model,
		Usage: chatResp.Usage,
	}, nil
}

// SetHTTPClient allows overriding the HTTP client for testing
func (c *OpenAIClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
