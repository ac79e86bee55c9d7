package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-voice/core/speechtotext"
)

var transcribeSegments bool

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [file]",
	Short: "Transcribe an audio file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

func init() {
	transcribeCmd.Flags().BoolVar(&transcribeSegments, "segments", false, "print every segment with its timing")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd.Context(), cfg.Timeouts.Transcription)
	defer cancel()

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return fmt.Errorf("failed to create speech-to-text client: %w", err)
	}

	segments, err := transcriber.Transcribe(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to transcribe %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	if transcribeSegments {
		for _, segment := range segments {
			fmt.Fprintf(out, "[%s - %s] %s\n", segment.Start, segment.End, strings.TrimSpace(segment.Text))
		}
		return nil
	}
	fmt.Fprintln(out, strings.TrimSpace(speechtotext.Join(segments)))
	return nil
}
