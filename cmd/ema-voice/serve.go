package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/koscakluka/ema-voice/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the voice agent over HTTP",
	Long: `Starts the HTTP API:

  POST /chat/text   JSON {"text": "...", "session_id": "..."}
  POST /chat/voice  multipart "file" and optional "session_id"

Both answer with audio/wav and an X-Session-ID header. Interrupting the
process stops accepting requests and waits for running turns and their
archive step.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	engine, audioStore, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}

	srv := server.New(engine, audioStore,
		server.WithInputDirectory(cfg.Audio.InputDir),
		server.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down, waiting for running turns")
		return engine.Close()
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
