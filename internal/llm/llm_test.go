package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestResolveProviderAnthropicPrefix(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	p, err := ResolveProvider("anthropic:claude-3-5-haiku-latest", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("expected anthropic provider, got %s", p.Name())
	}
	if _, ok := p.(*modelOverride); !ok {
		t.Errorf("expected model override wrapper, got %T", p)
	}
}

func TestResolveProviderOpenAIPrefix(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	p, err := ResolveProvider("openai:gpt-4o-mini", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "openai" {
		t.Errorf("expected openai provider, got %s", p.Name())
	}
}

func TestResolveProviderBareName(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	p, err := ResolveProvider("openai", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Errorf("expected unwrapped provider, got %T", p)
	}
}

func TestResolveProviderAutoDetect(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "test-key")
	p, err := ResolveProvider("auto", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "openai" {
		t.Errorf("expected openai, got %s", p.Name())
	}
}

func TestResolveProviderDisabled(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	for _, choice := range []string{"", "auto", "rules", "RULES"} {
		if _, err := ResolveProvider(choice, nil); !errors.Is(err, ErrDisabled) {
			t.Errorf("ResolveProvider(%q) err = %v, want ErrDisabled", choice, err)
		}
	}
}

func TestResolveProviderMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := ResolveProvider("anthropic", nil)
	if err == nil || errors.Is(err, ErrDisabled) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestResolveProviderUnknown(t *testing.T) {
	if _, err := ResolveProvider("gemini:pro", nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestMockProvider(t *testing.T) {
	m := &MockProvider{Response: `{"test": true}`}
	req := &Request{System: "sys", User: "report"}
	got, err := m.Complete(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"test": true}` {
		t.Errorf("unexpected response: %s", got)
	}
	if m.Calls != 1 || m.LastRequest != req {
		t.Errorf("call not recorded: %+v", m)
	}
}

func TestMockProviderBlockHonorsContext(t *testing.T) {
	m := &MockProvider{Block: true}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Complete(ctx, &Request{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestModelOverridePinsModel(t *testing.T) {
	m := &MockProvider{}
	p := &modelOverride{Provider: m, model: "claude-test"}
	req := &Request{Model: "other", User: "x"}
	if _, err := p.Complete(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if m.LastRequest.Model != "claude-test" {
		t.Errorf("model = %q, want claude-test", m.LastRequest.Model)
	}
	if req.Model != "other" {
		t.Error("caller's request was modified")
	}
}

func anthropicServer(t *testing.T, check func(anthropicRequest), reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Error("missing API key header")
		}
		if r.Header.Get("Anthropic-Version") == "" {
			t.Error("missing Anthropic-Version header")
		}
		var body anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			check(body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicComplete(t *testing.T) {
	srv := anthropicServer(t, func(body anthropicRequest) {
		if body.Model != "claude-test" || body.MaxTokens != defaultMaxTokens {
			t.Errorf("model/max_tokens = %q/%d", body.Model, body.MaxTokens)
		}
		if body.System != "instructions" {
			t.Errorf("system = %q", body.System)
		}
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" || body.Messages[0].Content != "report" {
			t.Errorf("messages = %+v", body.Messages)
		}
	}, `{"content":[{"type":"text","text":"plain answer"}],"stop_reason":"end_turn"}`)

	p := &AnthropicProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	got, err := p.Complete(context.Background(), &Request{System: "instructions", User: "report", Model: "claude-test"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "plain answer" {
		t.Errorf("unexpected response: %s", got)
	}
}

func TestAnthropicJSONPrefill(t *testing.T) {
	srv := anthropicServer(t, func(body anthropicRequest) {
		last := body.Messages[len(body.Messages)-1]
		if last.Role != "assistant" || last.Content != "{" {
			t.Errorf("last message = %+v, want assistant prefill", last)
		}
	}, `{"content":[{"type":"text","text":"\"severity\": 7}"}],"stop_reason":"end_turn"}`)

	p := &AnthropicProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	got, err := p.Complete(context.Background(), &Request{User: "report", JSON: true})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"severity": 7}` {
		t.Errorf("got %q, want prefill restored", got)
	}
}

func TestAnthropicTruncated(t *testing.T) {
	srv := anthropicServer(t, nil, `{"content":[{"type":"text","text":"\"sever"}],"stop_reason":"max_tokens"}`)
	p := &AnthropicProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	if _, err := p.Complete(context.Background(), &Request{User: "x", JSON: true}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestAnthropicNon200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	p := &AnthropicProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	_, err := p.Complete(context.Background(), &Request{User: "x"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTooManyRequests {
		t.Fatalf("err = %v, want StatusError 429", err)
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error should carry status and body, got: %s", err)
	}
}

func TestAnthropicNoTextContent(t *testing.T) {
	srv := anthropicServer(t, nil, `{"content":[],"stop_reason":"end_turn"}`)
	p := &AnthropicProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	if _, err := p.Complete(context.Background(), &Request{User: "x"}); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing Authorization header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("missing Content-Type header")
		}

		var body openaiRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.ResponseFormat == nil || body.ResponseFormat.Type != "json_object" {
			t.Error("expected json_object response format")
		}
		if body.Model != openaiDefaultModel {
			t.Errorf("model = %q", body.Model)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" || body.Messages[1].Role != "user" {
			t.Errorf("messages = %+v, want system then user", body.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"result\": \"ok\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := &OpenAIProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	got, err := p.Complete(context.Background(), &Request{System: "instructions", User: "report", JSON: true})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"result": "ok"}` {
		t.Errorf("unexpected response: %s", got)
	}
}

func TestOpenAIOmitsEmptySystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body openaiRequest
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", body.Messages)
		}
		if body.ResponseFormat != nil {
			t.Error("response_format sent without JSON")
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := &OpenAIProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	if _, err := p.Complete(context.Background(), &Request{User: "x"}); err != nil {
		t.Fatal(err)
	}
}

func TestOpenAITruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"sev"},"finish_reason":"length"}]}`))
	}))
	defer srv.Close()

	p := &OpenAIProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	if _, err := p.Complete(context.Background(), &Request{User: "x"}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestOpenAIMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	p := &OpenAIProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	_, err := p.Complete(context.Background(), &Request{User: "x"})
	if err == nil || !strings.Contains(err.Error(), "parse response") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer srv.Close()

	p := &OpenAIProvider{apiKey: "test-key", apiURL: srv.URL, client: srv.Client()}
	_, err := p.Complete(context.Background(), &Request{User: "x"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if len(se.Body) != 203 || !strings.HasSuffix(se.Body, "...") {
		t.Errorf("body length = %d, want 200 runes plus ellipsis", len(se.Body))
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain JSON", `{"key": "value"}`, `{"key": "value"}`},
		{"json code fence", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"bare code fence", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"whitespace around fences", "  \n```json\n{\"key\": \"value\"}\n```\n  ", `{"key": "value"}`},
		{"no closing fence", "```json\n{\"key\": \"value\"}", `{"key": "value"}`},
		{"single line fence", "```json {\"a\": 1}```", `{"a": 1}`},
		{"already trimmed", "  {\"a\": 1}  ", `{"a": 1}`},
		{"prose before fence", "Here is the JSON:\n```json{\"a\": 1}```", `{"a": 1}`},
		{"prose around fence", "Sure.\n```json\n{\"a\": 1}\n```\nLet me know.", `{"a": 1}`},
		{"brace on fence line", "```json{\n\"a\": 1\n}\n```", "{\n\"a\": 1\n}"},
		{"prose around object", `The verdict is {"a": 1} as requested.`, `{"a": 1}`},
		{"no JSON", "Severity: high", "Severity: high"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.input)
			if got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
