package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/parley-ai/parley/internal/registry"
)

// --- Error classification ---

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTimeout},
		{errors.New("request timeout after 60s"), KindTimeout},
		{errors.New("401 Unauthorized"), KindAuth},
		{errors.New("invalid api key provided"), KindAuth},
		{errors.New("429 Too Many Requests"), KindRateLimit},
		{errors.New("rate limit exceeded, retry later"), KindRateLimit},
		{errors.New("anthropic: overloaded_error"), KindRateLimit},
		{errors.New("model_not_found: gpt-9"), KindUnknownModel},
		{fmt.Errorf("%w: %q", ErrNoProvider, "gpt-9"), KindUnknownModel},
		{errors.New("500 Internal Server Error"), KindProvider},
		{errors.New("connection reset by peer"), KindProvider},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// --- OpenAI provider name detection ---

func TestOpenAIProviderNameDetection(t *testing.T) {
	tests := []struct {
		baseURL  string
		expected string
	}{
		{"", "openai"},
		{"https://api.deepseek.com/v1", "deepseek"},
		{"https://openrouter.ai/api/v1", "openrouter"},
		{"https://generativelanguage.googleapis.com/v1beta/openai/", "gemini"},
		{"https://custom.api.com/v1", "openai"},
	}
	for _, tt := range tests {
		p := NewOpenAIProvider("test-key", tt.baseURL)
		if p.Name() != tt.expected {
			t.Errorf("baseURL=%q: expected name %q, got %q", tt.baseURL, tt.expected, p.Name())
		}
	}
}

func TestAnthropicProviderName(t *testing.T) {
	p := NewAnthropicProvider("test-key")
	if p.Name() != "anthropic" {
		t.Errorf("expected name 'anthropic', got %q", p.Name())
	}
}

// --- Router ---

type stubProvider struct{ name string }

func (s *stubProvider) Invoke(context.Context, *Request) (*Response, error) {
	return &Response{Text: "stub"}, nil
}
func (s *stubProvider) Name() string { return s.name }

func newTestRouter() *Router {
	reg := registry.New(nil)
	return NewRouter(reg, map[string]Provider{
		"anthropic":  &stubProvider{name: "anthropic"},
		"openai":     &stubProvider{name: "openai"},
		"openrouter": &stubProvider{name: "openrouter"},
	})
}

func TestRouteCanonical(t *testing.T) {
	r := newTestRouter()
	h, err := r.Route("claude-sonnet-4-20250514")
	if err != nil {
		t.Fatal(err)
	}
	if h.Provider.Name() != "anthropic" {
		t.Errorf("routed to %q, want anthropic", h.Provider.Name())
	}
	if h.Profile.ContextWindow != 200000 {
		t.Errorf("profile window = %d", h.Profile.ContextWindow)
	}
}

func TestRouteAlias(t *testing.T) {
	r := newTestRouter()
	h, err := r.Route("r1")
	if err != nil {
		t.Fatal(err)
	}
	if h.Model != "deepseek/deepseek-r1" {
		t.Errorf("alias resolved to %q", h.Model)
	}
	if h.Provider.Name() != "openrouter" {
		t.Errorf("routed to %q, want openrouter", h.Provider.Name())
	}
}

func TestRouteUnknownModel(t *testing.T) {
	r := newTestRouter()
	_, err := r.Route("not-a-model-anyone-knows")
	if err == nil {
		t.Fatal("expected routing error")
	}
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("error should wrap ErrNoProvider: %v", err)
	}
}

func TestRouteMissingCredentials(t *testing.T) {
	reg := registry.New(nil)
	// Only anthropic configured; a google-family model must fail cleanly.
	r := NewRouter(reg, map[string]Provider{
		"anthropic": &stubProvider{name: "anthropic"},
	})
	_, err := r.Route("gemini-2.5-flash")
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider for unconfigured backend, got %v", err)
	}
}
