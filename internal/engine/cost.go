package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/parley-ai/parley/internal/registry"
)

// TurnCost records usage for a single provider call.
type TurnCost struct {
	Model        string
	InputTokens  int
	OutputTokens int
	Cost         float64
	Timestamp    time.Time
}

// CostTracker accumulates token usage and dollar cost across a run. Pricing
// comes from the model registry, including any config overrides.
type CostTracker struct {
	mu    sync.Mutex
	reg   *registry.Registry
	total float64
	turns []TurnCost
}

func NewCostTracker(reg *registry.Registry) *CostTracker {
	return &CostTracker{reg: reg}
}

// RecordTurn adds one call's usage and returns its cost.
func (ct *CostTracker) RecordTurn(model string, inputTokens, outputTokens int) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	cost := ct.reg.Cost(model, inputTokens, outputTokens)
	ct.total += cost
	ct.turns = append(ct.turns, TurnCost{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		Timestamp:    time.Now(),
	})
	return cost
}

// Total returns the accumulated dollar cost.
func (ct *CostTracker) Total() float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.total
}

// Summary returns a formatted per-turn cost breakdown.
func (ct *CostTracker) Summary() string {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if len(ct.turns) == 0 {
		return "No usage recorded."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Run cost: $%.4f (%d calls)\n\n", ct.total, len(ct.turns))

	totalIn, totalOut := 0, 0
	for i, t := range ct.turns {
		totalIn += t.InputTokens
		totalOut += t.OutputTokens
		fmt.Fprintf(&sb, "  Call %d: %s  in=%d out=%d  $%.4f\n",
			i+1, t.Model, t.InputTokens, t.OutputTokens, t.Cost)
	}
	fmt.Fprintf(&sb, "\nTotal tokens: %d input + %d output = %d",
		totalIn, totalOut, totalIn+totalOut)

	return sb.String()
}

// FormatTotal returns a compact cost string like "$0.12".
func (ct *CostTracker) FormatTotal() string {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.total < 0.01 {
		return fmt.Sprintf("$%.4f", ct.total)
	}
	return fmt.Sprintf("$%.2f", ct.total)
}
