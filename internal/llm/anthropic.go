package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
)

const (
	anthropicAPIURL       = "https://api.anthropic.com/v1/messages"
	anthropicDefaultModel = "claude-3-5-haiku-latest"
	anthropicAPIVersion   = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewAnthropic reads ANTHROPIC_API_KEY. A nil client gets a default one;
// callers bound each call through ctx.
func NewAnthropic(client *http.Client) (*AnthropicProvider, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &AnthropicProvider{apiKey: key, apiURL: anthropicAPIURL, client: client}, nil
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete sends System as the system prompt and User as the only user turn.
// For JSON requests the assistant turn is prefilled with "{", which the
// Messages API has no response_format for, and the brace is put back on the
// returned text.
func (a *AnthropicProvider) Complete(ctx context.Context, req *Request) (string, error) {
	body := anthropicRequest{
		Model:       req.model(anthropicDefaultModel),
		MaxTokens:   req.maxTokens(),
		System:      req.System,
		Temperature: req.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
	}
	prefill := ""
	if req.JSON {
		prefill = "{"
		body.Messages = append(body.Messages, anthropicMessage{Role: "assistant", Content: prefill})
	}

	header := http.Header{}
	header.Set("X-API-Key", a.apiKey)
	header.Set("Anthropic-Version", anthropicAPIVersion)

	var resp anthropicResponse
	if err := postJSON(ctx, a.client, a.apiURL, header, body, &resp); err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}
	if resp.StopReason == "max_tokens" {
		return "", fmt.Errorf("anthropic: %w", ErrTruncated)
	}
	for _, block := range resp.Content {
		if block.Type == "text" {
			return prefill + block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic: no text content in response")
}
