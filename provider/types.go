package provider

import (
	"context"

	"github.com/brandlens/brandlens/errors"
)

// Type identifies an LLM provider. The set is closed: every Type value
// flowing through the system comes from ParseType or the constants below.
type Type string

const (
	TypeOpenAI     Type = "openai"
	TypeAnthropic  Type = "anthropic"
	TypeOpenRouter Type = "openrouter"
)

// ParseType validates a provider identifier. Unknown identifiers are a
// configuration error, never a silent fallback.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeOpenAI, TypeAnthropic, TypeOpenRouter:
		return Type(s), nil
	}
	return "", errors.Wrapf(errors.ErrProviderConfig, "unknown provider %q", s)
}

// Request is a single completion request to a provider
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string   // empty = client's configured default
	Temperature  *float64 // nil = client default
	MaxTokens    *int     // nil = client default
}

// Response is a provider's completion result
type Response struct {
	Text  string
	Model string
	Usage TokenUsage
}

// TokenUsage reports token consumption for one request
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client is a single LLM provider. Implementations retry transient
// network failures internally; a returned error is final.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Type() Type
	IsConfigured() bool
}
