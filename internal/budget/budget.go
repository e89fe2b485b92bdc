// Package budget allocates a model's context window across system
// instructions, conversation history, file content, and reserved response
// space. When the desired content overflows the window it compresses history
// first, then files, down to configured floor ratios. System instructions are
// measured but never compressed, and the response reserve is untouchable.
//
// Over-allocation (floors reached, content still too large) is a reported
// warning, not a failure: the best-effort compressed content is returned and
// the caller decides whether to proceed.
package budget

import (
	"fmt"

	"github.com/parley-ai/parley/internal/compress"
	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/internal/token"
)

// Config holds the tunable thresholds. Zero values fall back to defaults.
type Config struct {
	// ResponseReservePct of the context window is held back for the model's
	// answer. Default 0.15.
	ResponseReservePct float64

	// ReserveCap caps the response reserve in tokens. Default 4096.
	ReserveCap int

	// HistoryFloor / FilesFloor are the minimum compression ratios; content
	// is never compressed below these. Defaults 0.3.
	HistoryFloor float64
	FilesFloor   float64
}

func (c Config) withDefaults() Config {
	if c.ResponseReservePct <= 0 {
		c.ResponseReservePct = 0.15
	}
	if c.ReserveCap <= 0 {
		c.ReserveCap = 4096
	}
	if c.HistoryFloor <= 0 {
		c.HistoryFloor = 0.3
	}
	if c.FilesFloor <= 0 {
		c.FilesFloor = 0.3
	}
	return c
}

// Budget is the final token allocation for one request on one model.
type Budget struct {
	System          int
	History         int
	Files           int
	ResponseReserve int
	ContextWindow   int

	// OverAllocated is true when compression hit its floors and the content
	// still exceeds the window. Non-fatal; the caller is informed.
	OverAllocated bool
}

// Utilization reports allocated fraction of the window.
func (b Budget) Utilization() float64 {
	if b.ContextWindow == 0 {
		return 0
	}
	return float64(b.System+b.History+b.Files+b.ResponseReserve) / float64(b.ContextWindow)
}

// Plan carries the (possibly compressed) content alongside its budget.
type Plan struct {
	System  string
	History string
	Files   string
	Budget  Budget
}

// Manager builds per-model budgets.
type Manager struct {
	reg *registry.Registry
	est *token.Estimator
	cfg Config
}

func NewManager(reg *registry.Registry, est *token.Estimator, cfg Config) *Manager {
	return &Manager{reg: reg, est: est, cfg: cfg.withDefaults()}
}

// Build computes the budget for model and returns content optimized to fit.
// Unknown models are a configuration error; everything else degrades
// gracefully.
func (m *Manager) Build(model, system, history, files string) (Plan, error) {
	profile, ok := m.reg.Lookup(model)
	if !ok {
		return Plan{}, fmt.Errorf("budget: unknown model %q", model)
	}

	window := profile.ContextWindow
	reserve := int(float64(window) * m.cfg.ResponseReservePct)
	if reserve > m.cfg.ReserveCap {
		reserve = m.cfg.ReserveCap
	}
	available := window - reserve

	estimate := func(text string) int { return m.est.Estimate(text, model) }

	sysTokens := estimate(system)
	histTokens := estimate(history)
	fileTokens := estimate(files)

	outHistory, outFiles := history, files

	if sysTokens+histTokens+fileTokens > available {
		// History absorbs the overflow first.
		remaining := available - sysTokens
		outHistory, histTokens = m.shrink(history, histTokens, remaining-fileTokens, m.cfg.HistoryFloor, estimate)

		// Files next, against whatever history actually freed.
		if sysTokens+histTokens+fileTokens > available {
			outFiles, fileTokens = m.shrink(files, fileTokens, available-sysTokens-histTokens, m.cfg.FilesFloor, estimate)
		}
	}

	b := Budget{
		System:          sysTokens,
		History:         histTokens,
		Files:           fileTokens,
		ResponseReserve: reserve,
		ContextWindow:   window,
		OverAllocated:   sysTokens+histTokens+fileTokens > available,
	}

	return Plan{System: system, History: outHistory, Files: outFiles, Budget: b}, nil
}

// shrink compresses text toward wantTokens, clamped at the floor ratio, and
// returns the result with its re-estimated size. Compression is best-effort;
// the returned size may still exceed wantTokens.
func (m *Manager) shrink(text string, haveTokens, wantTokens int, floor float64, estimate compress.EstimateFunc) (string, int) {
	if text == "" || haveTokens == 0 || haveTokens <= wantTokens {
		return text, haveTokens
	}
	ratio := float64(wantTokens) / float64(haveTokens)
	if ratio < floor {
		ratio = floor
	}
	out := compress.Compress(text, ratio, estimate)
	return out, estimate(out)
}
