package engine

import (
	"fmt"
	"strings"

	"github.com/parley-ai/parley/internal/dispatch"
)

const chatSystemPrompt = `You are a helpful, knowledgeable assistant.
Answer the user's question directly and concisely.
When conversation history is provided, use it to stay consistent with earlier turns.`

const consensusSystemPrompt = `You are an expert analyst. Your task is to provide your unique perspective on the following user query.
You may be given the analyses of other AI experts.
Review the user's query and any provided analyses, then provide your own comprehensive response.
Clearly state your final conclusion.`

const discussSystemPrompt = `You are one voice in a panel of independent AI models discussing a topic.
Provide your own perspective and analysis. Be substantive and specific.`

// Recommended temperatures by task, with per-family adjustment. Values come
// from tuning against each family's defaults.
func temperatureFor(model, task string) float64 {
	base := map[string]float64{
		"creative":   0.8,
		"analytical": 0.3,
		"coding":     0.1,
		"general":    0.7,
	}[task]
	if base == 0 {
		base = 0.7
	}

	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return base * 0.9
	case strings.Contains(m, "gemini-2.5"):
		return base * 0.95
	case strings.Contains(m, "deepseek"):
		return base * 1.1
	}
	return base
}

// composePrompt embeds optimized context sections ahead of the current
// question so every backend sees the same flattened view.
func composePrompt(history, files, question string) string {
	var sb strings.Builder
	if files != "" {
		sb.WriteString("=== CONTEXT ===\n")
		sb.WriteString(files)
		sb.WriteString("\n\n")
	}
	if history != "" {
		sb.WriteString("=== CONVERSATION HISTORY ===\n")
		sb.WriteString(history)
		sb.WriteString("\n")
	}
	sb.WriteString(question)
	return sb.String()
}

func discussTaskPrompt(topic string) string {
	return fmt.Sprintf("Topic for discussion: %s\n\nProvide your perspective and analysis on: %s", topic, topic)
}

// synthesisPrompt folds the gathered answers into one instruction for the
// synthesizer model.
func synthesisPrompt(question string, answers []dispatch.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original question: %s\n\n", question)
	sb.WriteString("Expert analyses to synthesize:\n\n")
	n := 0
	for _, r := range answers {
		if !r.OK() {
			continue
		}
		n++
		fmt.Fprintf(&sb, "Expert %d (%s):\n%s\n\n", n, r.Model, r.Response.Text)
	}
	sb.WriteString(`
Based on all the expert analyses above, provide a comprehensive synthesis that:
1. Identifies key points of agreement
2. Addresses any disagreements or different perspectives
3. Provides a balanced final conclusion
4. Highlights the most important insights

Synthesis:`)
	return sb.String()
}

// fallbackSummary is returned when the synthesis call itself fails: a plain
// enumeration of what each model said.
func fallbackSummary(question string, answers []dispatch.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Consensus Analysis for: %s\n\n", question)
	n := 0
	for _, r := range answers {
		if !r.OK() {
			continue
		}
		n++
		fmt.Fprintf(&sb, "Model %d (%s):\n%s\n\n", n, r.Model, r.Response.Text)
	}
	fmt.Fprintf(&sb, "Summary: %d models provided analysis on this topic.", n)
	return sb.String()
}

// pickSynthesizer chooses which successful model runs the synthesis pass.
// Strong generalist families are preferred; otherwise the first success.
func pickSynthesizer(answers []dispatch.Result) string {
	first := ""
	for _, r := range answers {
		if !r.OK() {
			continue
		}
		if first == "" {
			first = r.Model
		}
		m := strings.ToLower(r.Model)
		if strings.HasPrefix(m, "gpt-4") || strings.HasPrefix(m, "claude") || strings.HasPrefix(m, "gemini-2") {
			return r.Model
		}
	}
	return first
}
