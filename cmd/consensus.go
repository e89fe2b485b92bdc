package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/engine"
)

func newConsensusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consensus [question]",
		Short: "Get a single consensus recommendation from multiple models",
		Long: "Every model in the panel answers the question independently under a\n" +
			"consensus framing; the answers are folded into one synthesized\n" +
			"recommendation. A single-model panel returns that model's answer\n" +
			"directly.",
		Example: `  parley consensus "is this schema migration safe to run online"
  parley consensus -m sonnet,gpt-4o,flash "pick a queueing strategy"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(engine.Request{
				Mode:  engine.ModeConsensus,
				Topic: strings.Join(args, " "),
			})
		},
	}
}
