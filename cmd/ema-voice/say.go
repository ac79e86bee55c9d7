package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio/miniaudio"
	"github.com/koscakluka/ema-voice/core/storage"
)

var (
	saySession string
	sayOutput  string
	sayAudio   string
	sayPlay    bool
)

var sayCmd = &cobra.Command{
	Use:   "say [text]",
	Short: "Run one turn and write the spoken answer to a WAV file",
	Long: `Runs a single turn through the pipeline and archives it before exiting.
Pass text as arguments, or --audio to transcribe a recording instead.

Example:
  ema-voice say --session kitchen "what can I cook with eggs"`,
	RunE: runSay,
}

func init() {
	sayCmd.Flags().StringVarP(&saySession, "session", "s", "", "session to continue")
	sayCmd.Flags().StringVarP(&sayOutput, "output", "o", "response.wav", "where to write the answer audio")
	sayCmd.Flags().StringVar(&sayAudio, "audio", "", "audio file to transcribe as the user input")
	sayCmd.Flags().BoolVar(&sayPlay, "play", false, "also play the answer on the default speakers")
}

func runSay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text := strings.Join(args, " ")
	if text == "" && sayAudio == "" {
		return fmt.Errorf("nothing to say: pass text or --audio")
	}

	engine, audioStore, err := newEngine(ctx, cfg, orchestration.WithSynchronousArchive())
	if err != nil {
		return err
	}
	defer engine.Close()

	if saySession == "" {
		saySession = uuid.NewString()
	}
	initial := orchestration.TurnState{SessionID: saySession, InputText: text}
	if sayAudio != "" {
		path, err := filepath.Abs(sayAudio)
		if err != nil {
			return err
		}
		initial.InputAudioPath = path
	}

	state, err := engine.Run(ctx, initial)
	printTurn(cmd, state)
	if err != nil {
		return err
	}

	data, err := storage.ReadFile(ctx, audioStore, state.ResponseAudioPath)
	if err != nil {
		return fmt.Errorf("failed to read response audio: %w", err)
	}
	if err := os.WriteFile(sayOutput, data, 0o644); err != nil {
		return fmt.Errorf("failed to write response audio: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Audio:   %s\n", sayOutput)

	if !sayPlay {
		return nil
	}
	device, err := miniaudio.Open()
	if err != nil {
		return err
	}
	defer device.Close()
	return playResponse(ctx, device, audioStore, state.ResponseAudioPath)
}
