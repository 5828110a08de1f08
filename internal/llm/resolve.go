package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrDisabled is returned by ResolveProvider when the rule engine was chosen
// explicitly, or "auto" found no API key.
var ErrDisabled = errors.New("llm: remote classifier disabled")

// ResolveProvider selects a provider from a "provider:model" setting.
// "rules" disables the remote model; "auto" (or empty) picks whichever API key
// is present, preferring Anthropic.
func ResolveProvider(choice string, client *http.Client) (Provider, error) {
	choice = strings.TrimSpace(choice)
	lower := strings.ToLower(choice)

	switch {
	case lower == "rules" || lower == "off" || lower == "none":
		return nil, ErrDisabled

	case strings.HasPrefix(lower, "anthropic"):
		p, err := NewAnthropic(client)
		if err != nil {
			return nil, err
		}
		return withModel(p, choice), nil

	case strings.HasPrefix(lower, "openai"):
		p, err := NewOpenAI(client)
		if err != nil {
			return nil, err
		}
		return withModel(p, choice), nil

	case lower == "" || lower == "auto":
		if os.Getenv("ANTHROPIC_API_KEY") != "" {
			p, err := NewAnthropic(client)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
		if os.Getenv("OPENAI_API_KEY") != "" {
			p, err := NewOpenAI(client)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
		return nil, ErrDisabled
	}

	return nil, fmt.Errorf("unknown classifier %q: expected rules, auto, anthropic[:model] or openai[:model]", choice)
}

func withModel(p Provider, choice string) Provider {
	_, model, ok := strings.Cut(choice, ":")
	if !ok || strings.TrimSpace(model) == "" {
		return p
	}
	return &modelOverride{Provider: p, model: strings.TrimSpace(model)}
}

// modelOverride pins the model named after the colon in CLASSIFIER.
type modelOverride struct {
	Provider
	model string
}

func (m *modelOverride) Complete(ctx context.Context, req *Request) (string, error) {
	r := *req
	r.Model = m.model
	return m.Provider.Complete(ctx, &r)
}
