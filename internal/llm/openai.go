package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
)

const (
	openaiAPIURL       = "https://api.openai.com/v1/chat/completions"
	openaiDefaultModel = "gpt-4o-mini"
)

// OpenAIProvider talks to the OpenAI Chat Completions API.
type OpenAIProvider struct {
	apiKey string
	apiURL string
	client *http.Client
}

// NewOpenAI reads OPENAI_API_KEY. A nil client gets a default one.
func NewOpenAI(client *http.Client) (*OpenAIProvider, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{apiKey: key, apiURL: openaiAPIURL, client: client}, nil
}

func (o *OpenAIProvider) Name() string { return "openai" }

type openaiRequest struct {
	Model          string          `json:"model"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	Messages       []openaiMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAIProvider) Complete(ctx context.Context, req *Request) (string, error) {
	body := openaiRequest{
		Model:       req.model(openaiDefaultModel),
		MaxTokens:   req.maxTokens(),
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, openaiMessage{Role: "user", Content: req.User})
	if req.JSON {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+o.apiKey)

	var resp openaiResponse
	if err := postJSON(ctx, o.client, o.apiURL, header, body, &resp); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return "", fmt.Errorf("openai: %w", ErrTruncated)
	}
	return choice.Message.Content, nil
}
