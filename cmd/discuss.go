package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parley-ai/parley/internal/engine"
)

func newDiscussCmd() *cobra.Command {
	var hostPerspective bool

	cmd := &cobra.Command{
		Use:   "discuss [topic]",
		Short: "Run a multi-model discussion on a topic",
		Long: "Each model in the panel answers independently and in parallel; the\n" +
			"transcript presents every answer plus a synthesis of where they agree\n" +
			"and disagree.",
		Example: `  parley discuss "should we migrate this service to gRPC"
  parley discuss -m sonnet,gpt-4o,r1 "event sourcing tradeoffs"
  parley discuss --host-perspective "monorepo vs polyrepo"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(engine.Request{
				Mode:                   engine.ModeDiscuss,
				Topic:                  strings.Join(args, " "),
				IncludeHostPerspective: hostPerspective,
			})
		},
	}

	cmd.Flags().BoolVar(&hostPerspective, "host-perspective", false, "have the host model answer first")
	return cmd
}

// runMode is the shared execution path for discuss/chat/consensus.
func runMode(req engine.Request) error {
	cfg := initConfig()

	eng, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// Chat consults one model: an explicit --models choice or the host model.
	// The other modes fall back to the configured panel.
	if req.Mode == engine.ModeChat {
		req.Models = modelsFlag
	} else {
		req.Models = cfg.Models
	}
	req.ConversationID = conversationFlag

	attached, err := readAttachedFiles(filesFlag)
	if err != nil {
		return err
	}
	req.Context = attached

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := eng.Run(ctx, req)
	if err != nil {
		var batch *engine.BatchExhaustedError
		if errors.As(err, &batch) {
			fmt.Fprintln(os.Stderr, "All models failed:")
			for _, f := range batch.Failures {
				fmt.Fprintf(os.Stderr, "  %s: %s (%s)\n", f.Model, f.Kind, f.Message)
			}
			os.Exit(1)
		}
		return err
	}

	printResult(eng, resp)
	return nil
}
