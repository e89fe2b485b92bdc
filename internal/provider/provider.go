// Package provider defines the unified interface and shared types for all LLM
// backends. Each adapter (openai.go, anthropic.go) converts the unified
// request into its vendor SDK's format and maps vendor errors into the shared
// error taxonomy consumed by the dispatch engine.
package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/parley-ai/parley/internal/memory"
)

// Request is the unified request sent to a provider.
type Request struct {
	Model       string
	System      string
	Prompt      string
	History     []memory.Turn
	MaxTokens   int
	Temperature float64 // 0 means provider default
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the unified provider answer.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is the unified interface implemented by every backend adapter.
type Provider interface {
	// Invoke performs one blocking completion call. The history snapshot is
	// read-only; adapters must not retain or mutate it.
	Invoke(ctx context.Context, req *Request) (*Response, error)

	// Name returns the provider identifier, e.g. "anthropic", "openai",
	// "deepseek", "openrouter".
	Name() string
}

// ── Error taxonomy ───────────────────────────────────────────────────────────

// ErrorKind classifies a provider failure for dispatch bookkeeping.
type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindAuth         ErrorKind = "auth"
	KindRateLimit    ErrorKind = "rate_limit"
	KindUnknownModel ErrorKind = "invalid_model"
	KindProvider     ErrorKind = "provider_error"
)

// ErrNoProvider is returned by the router for unroutable model identifiers.
var ErrNoProvider = errors.New("no provider found for model")

// Classify maps an error from a provider call to its kind. Heuristic string
// matching is unavoidable here: the SDKs wrap HTTP errors differently and we
// only need a coarse bucket, never the exact status.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, ErrNoProvider) {
		return KindUnknownModel
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "authentication"):
		return KindAuth
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") || strings.Contains(msg, "overloaded"):
		return KindRateLimit
	case strings.Contains(msg, "model_not_found") || strings.Contains(msg, "unknown model") ||
		strings.Contains(msg, "no provider found") ||
		(strings.Contains(msg, "404") && strings.Contains(msg, "model")):
		return KindUnknownModel
	default:
		return KindProvider
	}
}
