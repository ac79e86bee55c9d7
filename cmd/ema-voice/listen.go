package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/audio/miniaudio"
	"github.com/koscakluka/ema-voice/core/storage"
)

const recordSampleRate = 16000

var (
	listenSession  string
	listenDuration time.Duration
	listenPlay     bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Record from the microphone, run one turn and play the answer",
	Long: `Records from the default microphone for --duration, saves the recording
to the input audio directory and runs it through the pipeline like an
uploaded file. The answer is played on the default speakers.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&listenSession, "session", "s", "", "session to continue")
	listenCmd.Flags().DurationVarP(&listenDuration, "duration", "d", 5*time.Second, "how long to record")
	listenCmd.Flags().BoolVar(&listenPlay, "play", true, "play the answer")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	device, err := miniaudio.Open()
	if err != nil {
		return err
	}
	defer device.Close()

	fmt.Fprintf(out, "Listening for %s...\n", listenDuration)
	samples, err := device.Record(ctx, recordSampleRate, listenDuration)
	if err != nil {
		return fmt.Errorf("failed to record: %w", err)
	}

	inputPath, err := saveRecording(cfg.Audio.InputDir, samples, recordSampleRate)
	if err != nil {
		return err
	}

	engine, audioStore, err := newEngine(ctx, cfg, orchestration.WithSynchronousArchive())
	if err != nil {
		return err
	}
	defer engine.Close()

	if listenSession == "" {
		listenSession = uuid.NewString()
	}
	state, err := engine.Run(ctx, orchestration.TurnState{SessionID: listenSession, InputAudioPath: inputPath})
	printTurn(cmd, state)
	if err != nil {
		return err
	}
	if !listenPlay {
		return nil
	}
	return playResponse(ctx, device, audioStore, state.ResponseAudioPath)
}

func saveRecording(dir string, samples []int16, sampleRate int) (string, error) {
	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode recording: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create input directory: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, uuid.NewString()+".wav"))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save recording: %w", err)
	}
	return path, nil
}

func playResponse(ctx context.Context, device *miniaudio.Device, audioStore storage.FileStore, path string) error {
	data, err := storage.ReadFile(ctx, audioStore, path)
	if err != nil {
		return fmt.Errorf("failed to read response audio: %w", err)
	}
	samples, sampleRate, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("failed to decode response audio: %w", err)
	}
	return device.Play(ctx, samples, sampleRate)
}

func printTurn(cmd *cobra.Command, state orchestration.TurnState) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", state.SessionID)
	fmt.Fprintf(out, "You:     %s\n", state.InputText)
	if state.ResponseText != "" {
		fmt.Fprintf(out, "Agent:   %s\n", state.ResponseText)
	}
	if state.TurnSummary != "" {
		fmt.Fprintf(out, "Summary: %s\n", state.TurnSummary)
	}
}
