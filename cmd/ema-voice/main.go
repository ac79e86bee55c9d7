// Command ema-voice serves the voice agent over HTTP and runs single turns
// from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-voice/internal/config"
	"github.com/koscakluka/ema-voice/internal/telemetry"
)

var (
	configPath string
	verbose    bool

	cfg               *config.Config
	shutdownTelemetry telemetry.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "ema-voice",
	Short: "Voice agent: speech in, speech out, with per-session memory",
	Long: `ema-voice transcribes what the user said, answers with a language model
and speaks the answer back. Every turn is archived per session so later
turns see the conversation so far.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		telemetryConfig := cfg.Telemetry
		if !verbose && cmd.Name() != "serve" {
			// One-shot commands print their own output.
			telemetryConfig.Stdout = false
		}
		shutdown, err := telemetry.Setup(cmd.Context(), telemetry.Options{Config: telemetryConfig, Stdout: cmd.ErrOrStderr()})
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		shutdownTelemetry = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTelemetry == nil {
			return nil
		}
		return shutdownTelemetry(context.WithoutCancel(cmd.Context()))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("EMA_CONFIG", "ema-voice.yaml"), "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to the console for one-shot commands")

	rootCmd.AddCommand(serveCmd, sayCmd, listenCmd, transcribeCmd, historyCmd)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
