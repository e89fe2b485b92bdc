package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/parley-ai/parley/internal/budget"
	"github.com/parley-ai/parley/internal/memory"
	"github.com/parley-ai/parley/internal/provider"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/token"
)

// fake is a scriptable provider that records every request it receives.
type fake struct {
	mu      sync.Mutex
	calls   []provider.Request
	respond func(req *provider.Request) (*provider.Response, error)
}

func (f *fake) Invoke(_ context.Context, req *provider.Request) (*provider.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	return &provider.Response{
		Text:  "answer from " + req.Model,
		Usage: provider.Usage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func (f *fake) Name() string { return "fake" }

func (f *fake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fake) call(i int) provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// newTestEngine wires an engine whose provider families all resolve to the
// given fakes. Families not present fall back to the first fake.
func newTestEngine(clients map[string]provider.Provider, store memory.Store) *Engine {
	reg := registry.New(nil)
	est := token.NewEstimator(reg, token.DefaultCacheCapacity)
	return New(Options{
		Router:   provider.NewRouter(reg, clients),
		Budgets:  budget.NewManager(reg, est, budget.Config{}),
		Registry: reg,
		Store:    store,
	})
}

func allFamilies(p provider.Provider) map[string]provider.Provider {
	return map[string]provider.Provider{
		"anthropic":  p,
		"openai":     p,
		"google":     p,
		"openrouter": p,
	}
}

func TestRunEmptyTopic(t *testing.T) {
	e := newTestEngine(allFamilies(&fake{}), nil)
	if _, err := e.Run(context.Background(), Request{Mode: ModeChat, Topic: "   "}); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestRunUnknownMode(t *testing.T) {
	e := newTestEngine(allFamilies(&fake{}), nil)
	if _, err := e.Run(context.Background(), Request{Mode: "debate", Topic: "x"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestChatSingleModel(t *testing.T) {
	f := &fake{}
	e := newTestEngine(allFamilies(f), nil)

	resp, err := e.Chat(context.Background(), Request{Topic: "what is a goroutine?", Models: []string{"sonnet"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "answer from claude-sonnet-4-20250514" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.ModelCount != 1 {
		t.Errorf("model count = %d", resp.ModelCount)
	}
	if f.callCount() != 1 {
		t.Errorf("provider called %d times", f.callCount())
	}
	if resp.Cost <= 0 {
		t.Error("cost should be tracked for a successful call")
	}
}

func TestChatConversationContinuity(t *testing.T) {
	f := &fake{}
	store := memory.NewInMemoryStore()
	e := newTestEngine(allFamilies(f), store)

	ctx := context.Background()
	first := Request{Topic: "My name is Alice", Models: []string{"gpt-4o"}, ConversationID: "conv-1"}
	if _, err := e.Chat(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := Request{Topic: "What's my name?", Models: []string{"gpt-4o"}, ConversationID: "conv-1"}
	if _, err := e.Chat(ctx, second); err != nil {
		t.Fatal(err)
	}

	sent := f.call(1)
	if !strings.Contains(sent.Prompt, "My name is Alice") {
		t.Errorf("second call should carry the first turn verbatim, got:\n%s", sent.Prompt)
	}
	if !strings.Contains(sent.Prompt, "What's my name?") {
		t.Error("second call should carry the current question")
	}
}

func TestChatAttachedContextReachesPrompt(t *testing.T) {
	f := &fake{}
	e := newTestEngine(allFamilies(f), nil)

	_, err := e.Chat(context.Background(), Request{
		Topic:   "summarize the handler",
		Models:  []string{"gpt-4o"},
		Context: "func handler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }",
	})
	if err != nil {
		t.Fatal(err)
	}
	sent := f.call(0)
	if !strings.Contains(sent.Prompt, "func handler") {
		t.Errorf("attached context missing from prompt:\n%s", sent.Prompt)
	}
}

func TestDiscussPartialFailure(t *testing.T) {
	healthy := &fake{}
	broken := &fake{respond: func(*provider.Request) (*provider.Response, error) {
		return nil, context.DeadlineExceeded
	}}
	clients := map[string]provider.Provider{
		"openai":     healthy,
		"anthropic":  healthy,
		"openrouter": broken,
	}
	e := newTestEngine(clients, nil)

	resp, err := e.Discuss(context.Background(), Request{
		Mode:   ModeDiscuss,
		Topic:  "is rust replacing go",
		Models: []string{"gpt-4o", "deepseek/deepseek-r1", "sonnet"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ModelCount != 2 {
		t.Errorf("model count = %d, want 2", resp.ModelCount)
	}
	if !strings.Contains(resp.Content, "answer from gpt-4o") {
		t.Error("transcript should contain the openai answer")
	}
	if !strings.Contains(resp.Content, string(provider.KindTimeout)) {
		t.Error("transcript should note the timed-out model")
	}
	if !strings.Contains(resp.Content, "Models consulted: 2/3") {
		t.Errorf("summary missing, got:\n%s", resp.Content)
	}
}

func TestDiscussTotalFailure(t *testing.T) {
	broken := &fake{respond: func(*provider.Request) (*provider.Response, error) {
		return nil, errors.New("429 Too Many Requests")
	}}
	e := newTestEngine(allFamilies(broken), nil)

	models := []string{"gpt-4o", "sonnet", "flash"}
	_, err := e.Discuss(context.Background(), Request{Topic: "x", Models: models})

	var batch *BatchExhaustedError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchExhaustedError, got %v", err)
	}
	if len(batch.Failures) != len(models) {
		t.Errorf("got %d failures, want %d", len(batch.Failures), len(models))
	}
	for _, f := range batch.Failures {
		if f.Kind != provider.KindRateLimit {
			t.Errorf("%s: kind %q, want rate_limit", f.Model, f.Kind)
		}
	}
}

func TestDiscussSynthesisAppended(t *testing.T) {
	f := &fake{}
	e := newTestEngine(allFamilies(f), nil)

	resp, err := e.Discuss(context.Background(), Request{
		Topic:  "monolith vs microservices",
		Models: []string{"gpt-4o", "sonnet"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "Synthesis & Conclusion") {
		t.Error("transcript should include a synthesis section")
	}
	// Two panel answers plus one synthesis call.
	if f.callCount() != 3 {
		t.Errorf("provider called %d times, want 3", f.callCount())
	}
}

func TestDiscussSynthesisFailureDegrades(t *testing.T) {
	f := &fake{respond: func(req *provider.Request) (*provider.Response, error) {
		if strings.Contains(req.Prompt, "Expert analyses to synthesize") {
			return nil, errors.New("500 Internal Server Error")
		}
		return &provider.Response{Text: "answer from " + req.Model}, nil
	}}
	e := newTestEngine(allFamilies(f), nil)

	resp, err := e.Discuss(context.Background(), Request{
		Topic:  "x",
		Models: []string{"gpt-4o", "sonnet"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "Synthesis unavailable") {
		t.Error("transcript should report the missing synthesis")
	}
	if len(resp.Warnings) == 0 {
		t.Error("degraded synthesis should surface a warning")
	}
	if !strings.Contains(resp.Content, "answer from gpt-4o") {
		t.Error("panel answers must survive synthesis failure")
	}
}

func TestDiscussHostPerspectiveFirst(t *testing.T) {
	f := &fake{}
	e := newTestEngine(allFamilies(f), nil)

	resp, err := e.Discuss(context.Background(), Request{
		Topic:                  "x",
		Models:                 []string{"gpt-4o"},
		IncludeHostPerspective: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ModelsConsulted[0] != DefaultHostModel {
		t.Errorf("host should answer first, got order %v", resp.ModelsConsulted)
	}
}

func TestConsensusOfOne(t *testing.T) {
	f := &fake{}
	e := newTestEngine(allFamilies(f), nil)

	resp, err := e.Consensus(context.Background(), Request{
		Topic:  "should we cache this",
		Models: []string{"gpt-4o"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "answer from gpt-4o" {
		t.Errorf("content = %q, want the raw single-model answer", resp.Content)
	}
	if f.callCount() != 1 {
		t.Errorf("single-model consensus made %d calls, want 1 (no synthesis)", f.callCount())
	}
}

func TestConsensusSingleSurvivorSkipsSynthesis(t *testing.T) {
	healthy := &fake{}
	broken := &fake{respond: func(*provider.Request) (*provider.Response, error) {
		return nil, errors.New("401 Unauthorized")
	}}
	e := newTestEngine(map[string]provider.Provider{
		"openai":    healthy,
		"anthropic": broken,
	}, nil)

	resp, err := e.Consensus(context.Background(), Request{
		Topic:  "x",
		Models: []string{"gpt-4o", "sonnet"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "answer from gpt-4o" {
		t.Errorf("content = %q, want the surviving answer directly", resp.Content)
	}
	if healthy.callCount() != 1 {
		t.Errorf("healthy provider called %d times, want 1", healthy.callCount())
	}
}

func TestConsensusSynthesizesMultipleAnswers(t *testing.T) {
	f := &fake{respond: func(req *provider.Request) (*provider.Response, error) {
		if strings.Contains(req.Prompt, "Expert analyses to synthesize") {
			return &provider.Response{Text: "synthesized recommendation"}, nil
		}
		return &provider.Response{Text: "answer from " + req.Model}, nil
	}}
	e := newTestEngine(allFamilies(f), nil)

	resp, err := e.Consensus(context.Background(), Request{
		Topic:  "pick a message broker",
		Models: []string{"gpt-4o", "sonnet", "flash"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "synthesized recommendation" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.ModelCount != 3 {
		t.Errorf("model count = %d", resp.ModelCount)
	}
}

func TestConsensusSynthesisFailureFallsBack(t *testing.T) {
	f := &fake{respond: func(req *provider.Request) (*provider.Response, error) {
		if strings.Contains(req.Prompt, "Expert analyses to synthesize") {
			return nil, errors.New("overloaded")
		}
		return &provider.Response{Text: "answer from " + req.Model}, nil
	}}
	e := newTestEngine(allFamilies(f), nil)

	resp, err := e.Consensus(context.Background(), Request{
		Topic:  "x",
		Models: []string{"gpt-4o", "sonnet"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "answer from gpt-4o") ||
		!strings.Contains(resp.Content, "answer from claude-sonnet-4-20250514") {
		t.Errorf("fallback summary should enumerate every answer, got:\n%s", resp.Content)
	}
	if len(resp.Warnings) == 0 {
		t.Error("fallback should surface a warning")
	}
}

func TestUnroutableModelBecomesFailureResult(t *testing.T) {
	f := &fake{}
	// Only openai configured; the anthropic model cannot route.
	e := newTestEngine(map[string]provider.Provider{"openai": f}, nil)

	resp, err := e.Discuss(context.Background(), Request{
		Topic:  "x",
		Models: []string{"gpt-4o", "sonnet"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ModelCount != 1 {
		t.Errorf("model count = %d, want 1", resp.ModelCount)
	}
	if !strings.Contains(resp.Content, string(provider.KindUnknownModel)) {
		t.Error("transcript should note the unroutable model")
	}
}

func TestDiscussRecordsConversation(t *testing.T) {
	f := &fake{}
	store := memory.NewInMemoryStore()
	e := newTestEngine(allFamilies(f), store)

	_, err := e.Discuss(context.Background(), Request{
		Topic:          "x",
		Models:         []string{"gpt-4o"},
		ConversationID: "conv-9",
	})
	if err != nil {
		t.Fatal(err)
	}

	turns, err := store.Load(context.Background(), "conv-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want user+assistant", len(turns))
	}
	if turns[0].Role != memory.RoleUser || turns[1].Role != memory.RoleAssistant {
		t.Errorf("turn roles = %s, %s", turns[0].Role, turns[1].Role)
	}
}
