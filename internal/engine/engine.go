// Package engine orchestrates a full request: budget planning per model,
// parallel dispatch, and synthesis of whatever subset of backends answered.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parley-ai/parley/internal/budget"
	"github.com/parley-ai/parley/internal/dispatch"
	"github.com/parley-ai/parley/internal/eventlog"
	"github.com/parley-ai/parley/internal/memory"
	"github.com/parley-ai/parley/internal/provider"
	"github.com/parley-ai/parley/internal/registry"
)

// Mode selects what the engine produces from the gathered answers.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeDiscuss   Mode = "discuss"
	ModeConsensus Mode = "consensus"
)

// DefaultModels is the panel used when the caller names none.
var DefaultModels = []string{"deepseek/deepseek-r1", "gemini-2.5-flash"}

// DefaultHostModel answers first in discussions when the caller asks for a
// host perspective, and serves single-model chat when no model is named.
const DefaultHostModel = "claude-sonnet-4-20250514"

// Request is one question posed to the engine.
type Request struct {
	Mode                   Mode
	Topic                  string
	Models                 []string
	IncludeHostPerspective bool
	ConversationID         string

	// Context is attached material (file contents, prior analysis) budgeted
	// on the files channel: compressed after history, floor-bounded.
	Context string
}

// Response is the engine's structured answer.
type Response struct {
	Mode            Mode
	Content         string
	ModelsConsulted []string
	ModelCount      int
	Warnings        []string
	Cost            float64
}

// Engine wires the budget manager, router, and dispatcher together.
type Engine struct {
	router  *provider.Router
	budgets *budget.Manager
	disp    *dispatch.Engine
	store   memory.Store
	costs   *CostTracker
	log     *eventlog.Logger
	host    string
}

// Options configures New. Router, Budgets, and Registry are required; the
// rest default sensibly.
type Options struct {
	Router   *provider.Router
	Budgets  *budget.Manager
	Registry *registry.Registry

	Dispatcher *dispatch.Engine
	Store      memory.Store
	Log        *eventlog.Logger
	HostModel  string
}

func New(opts Options) *Engine {
	e := &Engine{
		router:  opts.Router,
		budgets: opts.Budgets,
		disp:    opts.Dispatcher,
		store:   opts.Store,
		log:     opts.Log,
		host:    opts.HostModel,
	}
	if e.disp == nil {
		e.disp = dispatch.New()
	}
	if e.store == nil {
		e.store = memory.NullStore{}
	}
	if e.host == "" {
		e.host = DefaultHostModel
	}
	e.costs = NewCostTracker(opts.Registry)
	return e
}

// Costs exposes the accumulated usage for display after a run.
func (e *Engine) Costs() *CostTracker { return e.costs }

// Run executes one request in its mode.
func (e *Engine) Run(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("engine: empty topic")
	}

	switch req.Mode {
	case ModeChat:
		return e.Chat(ctx, req)
	case ModeDiscuss:
		return e.Discuss(ctx, req)
	case ModeConsensus:
		return e.Consensus(ctx, req)
	default:
		return nil, fmt.Errorf("engine: unknown mode %q", req.Mode)
	}
}

// Chat asks a single model (the first requested, or the host model),
// threading conversation history through the budget planner.
func (e *Engine) Chat(ctx context.Context, req Request) (*Response, error) {
	model := e.host
	if len(req.Models) > 0 {
		model = req.Models[0]
	}

	task, warnings, err := e.prepare(ctx, model, chatSystemPrompt, req.Topic, req, "general")
	if err != nil {
		return nil, err
	}

	results, err := e.disp.Parallel(ctx, []dispatch.Task{task})
	if err != nil {
		return nil, err
	}
	r := results[0]
	if !r.OK() {
		e.event(eventlog.EventModelFailure, map[string]any{"model": r.Model, "kind": r.Failure.Kind})
		return nil, &BatchExhaustedError{Failures: []ModelFailure{
			{Model: r.Model, Kind: r.Failure.Kind, Message: r.Failure.Message},
		}}
	}

	e.record(r)
	e.remember(ctx, req.ConversationID, req.Topic, r.Response.Text)

	return &Response{
		Mode:            ModeChat,
		Content:         r.Response.Text,
		ModelsConsulted: []string{r.Model},
		ModelCount:      1,
		Warnings:        warnings,
		Cost:            e.costs.Total(),
	}, nil
}

// Discuss fans the topic out to the panel, presents each answer labeled by
// model in submission order, and appends a synthesis when more than one
// backend answered. A failed synthesis call degrades to a transcript with the
// omission noted.
func (e *Engine) Discuss(ctx context.Context, req Request) (*Response, error) {
	models := req.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	if req.IncludeHostPerspective && !contains(models, e.host) {
		models = append([]string{e.host}, models...)
	}

	e.event(eventlog.EventDiscussionStart, map[string]any{"topic": req.Topic, "models": models})

	results, warnings := e.fanOut(ctx, models, discussSystemPrompt, discussTaskPrompt(req.Topic), req, "analytical")

	consulted := successModels(results)
	if len(consulted) == 0 {
		return nil, exhausted(results)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Multi-Model Discussion: %s\n", req.Topic)
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	for i, r := range results {
		if r.OK() {
			fmt.Fprintf(&sb, "**Model %d: %s**\n%s\n\n", i+1, r.Model, r.Response.Text)
		} else {
			fmt.Fprintf(&sb, "**Model %d: %s** (failed)\n%s: %s\n\n", i+1, r.Model, r.Failure.Kind, r.Failure.Message)
		}
		sb.WriteString(strings.Repeat("-", 40) + "\n\n")
	}

	if len(consulted) > 1 {
		synthModel := pickSynthesizer(results)
		synth, err := e.invokeOne(ctx, synthModel, consensusSystemPrompt, synthesisPrompt(req.Topic, results), "analytical")
		if err == nil {
			e.event(eventlog.EventSynthesis, map[string]any{"model": synthModel})
			fmt.Fprintf(&sb, "**Synthesis & Conclusion**\n*Synthesized by %s*\n\n%s\n\n", synthModel, synth)
		} else {
			warnings = append(warnings, fmt.Sprintf("synthesis unavailable: %v", err))
			fmt.Fprintf(&sb, "**Synthesis unavailable:** %v\n\n", err)
		}
	}

	fmt.Fprintf(&sb, "**Discussion Summary:**\n- Topic: %s\n- Models consulted: %d/%d\n",
		req.Topic, len(consulted), len(models))

	content := sb.String()
	e.remember(ctx, req.ConversationID, req.Topic, content)
	e.event(eventlog.EventDiscussionEnd, map[string]any{"consulted": len(consulted)})

	return &Response{
		Mode:            ModeDiscuss,
		Content:         content,
		ModelsConsulted: consulted,
		ModelCount:      len(consulted),
		Warnings:        warnings,
		Cost:            e.costs.Total(),
	}, nil
}

// Consensus asks every model the same question under a consensus framing,
// then folds the answers into a single recommendation. One model in the
// request, or one surviving answer, short-circuits the synthesis call.
func (e *Engine) Consensus(ctx context.Context, req Request) (*Response, error) {
	models := req.Models
	if len(models) == 0 {
		models = DefaultModels
	}

	if len(models) == 1 {
		return e.consensusOfOne(ctx, req, models[0])
	}

	results, warnings := e.fanOut(ctx, models, consensusSystemPrompt, req.Topic, req, "analytical")

	consulted := successModels(results)
	if len(consulted) == 0 {
		return nil, exhausted(results)
	}

	var content string
	if len(consulted) == 1 {
		for _, r := range results {
			if r.OK() {
				content = r.Response.Text
			}
		}
	} else {
		synthModel := pickSynthesizer(results)
		synth, err := e.invokeOne(ctx, synthModel, consensusSystemPrompt, synthesisPrompt(req.Topic, results), "analytical")
		if err == nil {
			content = synth
			e.event(eventlog.EventConsensus, map[string]any{"model": synthModel})
		} else {
			warnings = append(warnings, fmt.Sprintf("synthesis unavailable: %v", err))
			content = fallbackSummary(req.Topic, results)
		}
	}

	e.remember(ctx, req.ConversationID, req.Topic, content)

	return &Response{
		Mode:            ModeConsensus,
		Content:         content,
		ModelsConsulted: consulted,
		ModelCount:      len(consulted),
		Warnings:        warnings,
		Cost:            e.costs.Total(),
	}, nil
}

func (e *Engine) consensusOfOne(ctx context.Context, req Request, model string) (*Response, error) {
	task, warnings, err := e.prepare(ctx, model, consensusSystemPrompt, req.Topic, req, "analytical")
	if err != nil {
		return nil, err
	}
	results, err := e.disp.Parallel(ctx, []dispatch.Task{task})
	if err != nil {
		return nil, err
	}
	r := results[0]
	if !r.OK() {
		return nil, exhausted(results)
	}
	e.record(r)
	e.remember(ctx, req.ConversationID, req.Topic, r.Response.Text)

	return &Response{
		Mode:            ModeConsensus,
		Content:         r.Response.Text,
		ModelsConsulted: []string{r.Model},
		ModelCount:      1,
		Warnings:        warnings,
		Cost:            e.costs.Total(),
	}, nil
}

// fanOut prepares and dispatches one task per requested model. Models that
// fail routing or budget planning become Failure results in place, keeping
// the output aligned with the input order.
func (e *Engine) fanOut(ctx context.Context, models []string, system, prompt string, req Request, taskType string) ([]dispatch.Result, []string) {
	results := make([]dispatch.Result, len(models))
	var warnings []string

	var tasks []dispatch.Task
	var taskIdx []int
	for i, model := range models {
		t, w, err := e.prepare(ctx, model, system, prompt, req, taskType)
		warnings = append(warnings, w...)
		if err != nil {
			results[i] = dispatch.Result{
				Model:   model,
				Failure: &dispatch.Failure{Kind: provider.Classify(err), Message: err.Error()},
			}
			continue
		}
		tasks = append(tasks, t)
		taskIdx = append(taskIdx, i)
	}

	if len(tasks) > 0 {
		e.event(eventlog.EventDispatch, map[string]any{"models": models})
		dispatched, err := e.disp.Parallel(ctx, tasks)
		if err == nil {
			for j, r := range dispatched {
				results[taskIdx[j]] = r
			}
		}
	}

	for _, r := range results {
		if r.OK() {
			e.record(r)
			e.event(eventlog.EventModelAnswer, map[string]any{"model": r.Model, "elapsed_ms": r.Elapsed.Milliseconds()})
		} else if r.Failure != nil {
			e.event(eventlog.EventModelFailure, map[string]any{"model": r.Model, "kind": r.Failure.Kind})
		}
	}
	return results, warnings
}

// prepare routes the model and plans its budget, producing a dispatch task.
func (e *Engine) prepare(ctx context.Context, model, system, question string, req Request, taskType string) (dispatch.Task, []string, error) {
	handle, err := e.router.Route(model)
	if err != nil {
		return dispatch.Task{}, nil, err
	}

	historyText := ""
	if req.ConversationID != "" {
		turns, err := e.store.Load(ctx, req.ConversationID)
		if err != nil {
			return dispatch.Task{}, nil, fmt.Errorf("load conversation %s: %w", req.ConversationID, err)
		}
		historyText = memory.FormatHistory(turns)
	}

	plan, err := e.budgets.Build(handle.Model, system, historyText, req.Context)
	if err != nil {
		return dispatch.Task{}, nil, err
	}

	var warnings []string
	if plan.Budget.OverAllocated {
		w := fmt.Sprintf("%s: content exceeds budget after compression (utilization %.0f%%)",
			handle.Model, plan.Budget.Utilization()*100)
		warnings = append(warnings, w)
		e.event(eventlog.EventCompression, map[string]any{"model": handle.Model, "over_allocated": true})
	}

	return dispatch.Task{
		Request: &provider.Request{
			Model:       handle.Model,
			System:      plan.System,
			Prompt:      composePrompt(plan.History, plan.Files, question),
			MaxTokens:   plan.Budget.ResponseReserve,
			Temperature: temperatureFor(handle.Model, taskType),
		},
		Handle: handle,
	}, warnings, nil
}

// invokeOne runs a single extra call outside the main batch, used for
// synthesis passes.
func (e *Engine) invokeOne(ctx context.Context, model, system, prompt, taskType string) (string, error) {
	handle, err := e.router.Route(model)
	if err != nil {
		return "", err
	}
	results, err := e.disp.Parallel(ctx, []dispatch.Task{{
		Request: &provider.Request{
			Model:       handle.Model,
			System:      system,
			Prompt:      prompt,
			MaxTokens:   4096,
			Temperature: temperatureFor(handle.Model, taskType),
		},
		Handle: handle,
	}})
	if err != nil {
		return "", err
	}
	r := results[0]
	if !r.OK() {
		return "", fmt.Errorf("%s: %s", r.Failure.Kind, r.Failure.Message)
	}
	e.record(r)
	return r.Response.Text, nil
}

// remember appends the exchange to conversation memory. Memory failures are
// logged, never fatal.
func (e *Engine) remember(ctx context.Context, convID, question, answer string) {
	if convID == "" {
		return
	}
	now := time.Now()
	if err := e.store.Append(ctx, convID, memory.Turn{Role: memory.RoleUser, Content: question, Timestamp: now}); err != nil {
		e.event(eventlog.EventError, map[string]any{"op": "append_user", "err": err.Error()})
		return
	}
	if err := e.store.Append(ctx, convID, memory.Turn{Role: memory.RoleAssistant, Content: answer, Timestamp: now}); err != nil {
		e.event(eventlog.EventError, map[string]any{"op": "append_assistant", "err": err.Error()})
	}
}

func (e *Engine) record(r dispatch.Result) {
	if r.Response == nil {
		return
	}
	e.costs.RecordTurn(r.Model, r.Response.Usage.InputTokens, r.Response.Usage.OutputTokens)
}

func (e *Engine) event(t eventlog.EventType, data any) {
	if e.log != nil {
		e.log.Log(t, data)
	}
}

func exhausted(results []dispatch.Result) *BatchExhaustedError {
	err := &BatchExhaustedError{}
	for _, r := range results {
		if r.Failure == nil {
			continue
		}
		err.Failures = append(err.Failures, ModelFailure{
			Model:   r.Model,
			Kind:    r.Failure.Kind,
			Message: r.Failure.Message,
		})
	}
	return err
}

func successModels(results []dispatch.Result) []string {
	var out []string
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Model)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
