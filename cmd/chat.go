package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/engine"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with a single model",
		Long: "Sends one message to a single model. With --conversation, prior turns\n" +
			"are loaded from the conversation store and compressed to fit the\n" +
			"model's context window.",
		Example: `  parley chat "explain io_uring in two paragraphs"
  parley chat -m r1 "why is my goroutine leaking"
  parley chat -C design-review "what did we decide about retries?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(engine.Request{
				Mode:  engine.ModeChat,
				Topic: strings.Join(args, " "),
			})
		},
	}
}
