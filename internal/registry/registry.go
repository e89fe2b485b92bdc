// Package registry holds the static per-model metadata used across parley:
// context windows, chunk sizes, compression targets, token-estimation ratios,
// capability flags, and pricing. The registry is built once at process start
// and is read-only afterwards, so it needs no synchronization.
package registry

import (
	"sort"
	"strings"
)

// Profile is the immutable metadata for one supported model.
type Profile struct {
	// ContextWindow is the maximum total tokens (input + output) per call.
	ContextWindow int

	// ChunkSize is the ideal content chunk size for this model, in tokens.
	ChunkSize int

	// CompressionTarget is the ratio compression aims for when this model's
	// budget overflows. Always in (0, 1].
	CompressionTarget float64

	// CharsPerToken is the model-family character-to-token estimation ratio.
	CharsPerToken float64

	// SupportsFunctionCalling reports whether the model accepts tool schemas.
	SupportsFunctionCalling bool

	// InputCostPer1K / OutputCostPer1K are dollar costs per 1000 tokens.
	InputCostPer1K  float64
	OutputCostPer1K float64

	// Provider is the backend family this model is served by:
	// "anthropic", "openai", "google", "deepseek", "openrouter".
	Provider string
}

// Registry maps canonical model identifiers to profiles and resolves
// informal aliases. Construct with New; never mutate afterwards.
type Registry struct {
	profiles map[string]Profile
	aliases  map[string]string
	fallback Profile
}

// builtinProfiles covers the models parley ships support for. Pricing is
// approximate and overridable via config.
func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		"claude-sonnet-4-20250514": {
			ContextWindow: 200000, ChunkSize: 8000, CompressionTarget: 0.9,
			CharsPerToken: 3.8, SupportsFunctionCalling: true,
			InputCostPer1K: 0.003, OutputCostPer1K: 0.015,
			Provider: "anthropic",
		},
		"claude-haiku-4-5-20251001": {
			ContextWindow: 200000, ChunkSize: 8000, CompressionTarget: 0.9,
			CharsPerToken: 3.8, SupportsFunctionCalling: true,
			InputCostPer1K: 0.0008, OutputCostPer1K: 0.004,
			Provider: "anthropic",
		},
		"gpt-4o": {
			ContextWindow: 128000, ChunkSize: 8000, CompressionTarget: 0.9,
			CharsPerToken: 4.0, SupportsFunctionCalling: true,
			InputCostPer1K: 0.0025, OutputCostPer1K: 0.010,
			Provider: "openai",
		},
		"gpt-4o-mini": {
			ContextWindow: 128000, ChunkSize: 6000, CompressionTarget: 0.85,
			CharsPerToken: 4.0, SupportsFunctionCalling: true,
			InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006,
			Provider: "openai",
		},
		"gemini-2.5-pro": {
			ContextWindow: 2000000, ChunkSize: 15000, CompressionTarget: 0.9,
			CharsPerToken: 4.0, SupportsFunctionCalling: true,
			InputCostPer1K: 0.00125, OutputCostPer1K: 0.005,
			Provider: "google",
		},
		"gemini-2.5-flash": {
			ContextWindow: 1000000, ChunkSize: 10000, CompressionTarget: 0.8,
			CharsPerToken: 4.1, SupportsFunctionCalling: true,
			InputCostPer1K: 0.000075, OutputCostPer1K: 0.0003,
			Provider: "google",
		},
		"deepseek/deepseek-r1": {
			ContextWindow: 65536, ChunkSize: 4000, CompressionTarget: 0.7,
			CharsPerToken: 3.4, SupportsFunctionCalling: false,
			InputCostPer1K: 0.0014, OutputCostPer1K: 0.0028,
			Provider: "openrouter",
		},
		"deepseek-chat": {
			ContextWindow: 64000, ChunkSize: 4000, CompressionTarget: 0.7,
			CharsPerToken: 3.4, SupportsFunctionCalling: true,
			InputCostPer1K: 0.00027, OutputCostPer1K: 0.0011,
			Provider: "deepseek",
		},
	}
}

// builtinAliases maps informal nicknames to canonical model IDs. The table
// is closed: ambiguous short names resolve to a single documented default.
func builtinAliases() map[string]string {
	return map[string]string{
		"claude":   "claude-sonnet-4-20250514",
		"sonnet":   "claude-sonnet-4-20250514",
		"haiku":    "claude-haiku-4-5-20251001",
		"4o":       "gpt-4o",
		"4o-mini":  "gpt-4o-mini",
		"gpt":      "gpt-4o",
		"gemini":   "gemini-2.5-flash", // "gemini" alone prefers the cheap default
		"pro":      "gemini-2.5-pro",
		"flash":    "gemini-2.5-flash",
		"r1":       "deepseek/deepseek-r1",
		"deepseek": "deepseek/deepseek-r1",
	}
}

// defaultProfile is used for models not present in the table. Conservative
// window so budget planning never over-commits an unknown backend.
func defaultProfile() Profile {
	return Profile{
		ContextWindow: 100000, ChunkSize: 4000, CompressionTarget: 0.8,
		CharsPerToken: 4.0, SupportsFunctionCalling: false,
		InputCostPer1K: 0.001, OutputCostPer1K: 0.002,
		Provider: "openai",
	}
}

// PricingOverride carries user-configured pricing for one model.
type PricingOverride struct {
	InputPer1K  float64
	OutputPer1K float64
}

// New builds the registry with built-in profiles plus optional pricing
// overrides (typically from the config file).
func New(pricing map[string]PricingOverride) *Registry {
	profiles := builtinProfiles()
	for id, p := range pricing {
		prof, ok := profiles[id]
		if !ok {
			prof = defaultProfile()
		}
		prof.InputCostPer1K = p.InputPer1K
		prof.OutputCostPer1K = p.OutputPer1K
		profiles[id] = prof
	}
	return &Registry{
		profiles: profiles,
		aliases:  builtinAliases(),
		fallback: defaultProfile(),
	}
}

// Resolve canonicalizes a model identifier: exact ID, then alias, then the
// identifier unchanged. The second return reports whether the name maps to
// a known profile.
func (r *Registry) Resolve(model string) (string, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if _, ok := r.profiles[m]; ok {
		return m, true
	}
	if canonical, ok := r.aliases[m]; ok {
		return canonical, true
	}
	// Family-prefix fallback: "claude-opus-next" still gets the claude profile.
	if r.familyMatch(m) != "" {
		return m, true
	}
	return m, false
}

// Lookup returns the profile for a model ID or alias. Unknown identifiers
// get the conservative default profile with ok=false, so estimation-level
// callers can keep working while the router rejects the request.
func (r *Registry) Lookup(model string) (Profile, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if p, ok := r.profiles[m]; ok {
		return p, true
	}
	if canonical, ok := r.aliases[m]; ok {
		return r.profiles[canonical], true
	}
	if family := r.familyMatch(m); family != "" {
		return r.profiles[family], true
	}
	return r.fallback, false
}

// familyMatch finds the longest known model ID that is a substring of the
// queried name, e.g. "gemini-2.5-flash-preview-04-17" → "gemini-2.5-flash".
func (r *Registry) familyMatch(m string) string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	// Longest first so "gemini-2.5-flash" wins over "gemini-2.5".
	sort.Slice(ids, func(i, j int) bool { return len(ids[i]) > len(ids[j]) })
	for _, id := range ids {
		if strings.Contains(m, id) {
			return id
		}
	}
	return ""
}

// Models returns all canonical model IDs, sorted.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Aliases returns a copy of the alias table for display.
func (r *Registry) Aliases() map[string]string {
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Cost returns the dollar cost for the given token usage on a model.
func (r *Registry) Cost(model string, inputTokens, outputTokens int) float64 {
	p, _ := r.Lookup(model)
	return float64(inputTokens)/1000*p.InputCostPer1K +
		float64(outputTokens)/1000*p.OutputCostPer1K
}
