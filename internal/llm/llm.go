// Package llm defines the text-generation provider interface used by the
// severity classifier and its HTTP implementations.
package llm

import (
	"context"
	"strings"
)

const defaultMaxTokens = 512

// Request is one completion call. System carries the fixed instructions and
// User the material to judge.
type Request struct {
	System string
	User   string
	// Model overrides the provider's default when non-empty.
	Model       string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider to constrain output to a single JSON object.
	JSON bool
}

func (r *Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}

func (r *Request) model(fallback string) string {
	if r.Model == "" {
		return fallback
	}
	return r.Model
}

// Provider completes a Request with a remote model.
type Provider interface {
	Complete(ctx context.Context, req *Request) (string, error)
	Name() string
}

// ExtractJSON pulls the JSON payload out of a model reply: the reply itself
// when it is a bare object, else the first fenced block, else the span from
// the first '{' to the last '}'.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		return s
	}
	if i := strings.Index(s, "```"); i >= 0 {
		return fencedBlock(s[i+3:])
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// fencedBlock returns the body of a fence whose opening ``` was already
// consumed. A missing closing fence is tolerated.
func fencedBlock(s string) string {
	// Drop the info string ("json", "JSON", ...).
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
