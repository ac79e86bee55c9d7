package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-voice/core/conversations"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Print the conversation context kept for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openConversationStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	memory := conversations.NewMemory(store, conversations.WithTimeout(cfg.Timeouts.Persistence))
	defer memory.Close()

	history := memory.CumulativeContext(ctx, args[0])
	if history == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "No history for session %q\n", args[0])
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), history)

	latest, err := store.Latest(ctx, args[0])
	if err == nil && latest.TurnSummary != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nLast turn: %s\n", latest.TurnSummary)
	}
	return nil
}
