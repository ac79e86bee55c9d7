package main

import (
	"context"
	"fmt"
	"time"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/llms/groq"
	"github.com/koscakluka/ema-voice/core/llms/openai"
	"github.com/koscakluka/ema-voice/core/segmentation"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	stt "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-voice/core/storage"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	tts "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-voice/internal/config"
)

func openConversationStore(ctx context.Context, cfg *config.Config) (conversations.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return conversations.OpenSQLite(cfg.Storage.SQLitePath)
	case "badger":
		return conversations.OpenBadger(cfg.Storage.BadgerDir)
	case "redis":
		return conversations.OpenRedis(ctx, conversations.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Username: cfg.Storage.RedisUsername,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
	case "memory":
		return conversations.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openAudioStore(cfg *config.Config) (storage.FileStore, error) {
	switch cfg.Audio.Backend {
	case "local":
		return storage.NewLocal(".")
	case "s3":
		return storage.NewS3FromConfig(storage.S3Config{
			Bucket:   cfg.Audio.S3Bucket,
			Prefix:   cfg.Audio.S3Prefix,
			Region:   cfg.Audio.S3Region,
			Endpoint: cfg.Audio.S3Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}
}

func newLLM(cfg *config.Config, model string) (llms.Completer, error) {
	switch cfg.LLM.Provider {
	case "openai":
		opts := []openai.ClientOption{openai.WithModel(model)}
		if cfg.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
		}
		if cfg.LLM.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(cfg.LLM.APIKey))
		}
		if cfg.LLM.Temperature != 0 {
			opts = append(opts, openai.WithTemperature(cfg.LLM.Temperature))
		}
		return openai.NewClient(opts...), nil
	case "groq":
		opts := []groq.ClientOption{groq.WithModel(model)}
		// The default base URL points at a local Ollama server.
		if cfg.LLM.BaseURL != "" && cfg.LLM.BaseURL != config.DefaultLLMBaseURL {
			opts = append(opts, groq.WithBaseURL(cfg.LLM.BaseURL))
		}
		if cfg.LLM.APIKey != "" {
			opts = append(opts, groq.WithAPIKey(cfg.LLM.APIKey))
		}
		return groq.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func newTranscriber(cfg *config.Config) (speechtotext.Transcriber, error) {
	opts := []stt.ClientOption{
		stt.WithTranscriptionOptions(
			speechtotext.WithModel(cfg.SpeechToText.Model),
			speechtotext.WithLanguage(cfg.SpeechToText.Language),
		),
	}
	if cfg.SpeechToText.APIKey != "" {
		opts = append(opts, stt.WithAPIKey(cfg.SpeechToText.APIKey))
	}
	return stt.NewTranscriptionClient(opts...)
}

func newSynthesizer(cfg *config.Config) (texttospeech.Synthesizer, error) {
	opts := []tts.ClientOption{
		tts.WithVoice(cfg.TextToSpeech.Voice),
		tts.WithTextToSpeechOptions(texttospeech.WithEncodingInfo(audio.EncodingInfo{
			SampleRate: cfg.TextToSpeech.SampleRate,
			Format:     audio.EncodingLinear16,
		})),
	}
	if cfg.TextToSpeech.APIKey != "" {
		opts = append(opts, tts.WithAPIKey(cfg.TextToSpeech.APIKey))
	}
	return tts.NewTextToSpeechClient(opts...)
}

func engineTimeouts(cfg *config.Config) orchestration.Timeouts {
	return orchestration.Timeouts{
		Transcription:    cfg.Timeouts.Transcription,
		Generation:       cfg.Timeouts.Generation,
		SynthesisSegment: cfg.Timeouts.SynthesisSegment,
		Summary:          cfg.Timeouts.Summary,
		Persistence:      cfg.Timeouts.Persistence,
	}
}

// newEngine wires every collaborator from cfg. The engine owns the
// conversation store; close it with Engine.Close.
func newEngine(ctx context.Context, cfg *config.Config, extra ...orchestration.EngineOption) (*orchestration.Engine, storage.FileStore, error) {
	llm, err := newLLM(cfg, cfg.LLM.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	summaryLLM := llm
	if model := cfg.SummaryModel(); model != cfg.LLM.Model {
		if summaryLLM, err = newLLM(cfg, model); err != nil {
			return nil, nil, fmt.Errorf("failed to create summary llm client: %w", err)
		}
	}

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create speech-to-text client: %w", err)
	}
	synthesizer, err := newSynthesizer(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}
	audioStore, err := openAudioStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audio store: %w", err)
	}
	store, err := openConversationStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	opts := []orchestration.EngineOption{
		orchestration.WithLLM(llm),
		orchestration.WithSummaryLLM(summaryLLM),
		orchestration.WithSpeechToText(transcriber),
		orchestration.WithTextToSpeech(synthesizer),
		orchestration.WithContextStore(store),
		orchestration.WithAudioStore(audioStore),
		orchestration.WithAudioDirectory(cfg.Audio.GeneratedDir),
		orchestration.WithSegmenter(segmentation.Segmenter{MaxRunes: cfg.Synthesis.MaxSegmentRunes}),
		orchestration.WithTimeouts(engineTimeouts(cfg)),
		orchestration.WithSegmentRetries(cfg.Synthesis.SegmentRetries),
		orchestration.WithSilence(cfg.Synthesis.Silence),
		orchestration.WithEventHandler(logEvent),
	}
	return orchestration.NewEngine(append(opts, extra...)...), audioStore, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func logEvent(event events.Event) {
	turn := event.Turn()
	attrs := []any{
		"kind", string(event.Kind()),
		"session_id", turn.SessionID,
		"run_id", turn.RunID,
	}
	switch e := event.(type) {
	case events.StageFailed:
		logger.Warn("stage failed", append(attrs, "stage", e.Stage, "degraded", e.Degraded, "error", e.Err)...)
	case events.SegmentSkipped:
		logger.Warn("segment skipped", append(attrs, "index", e.Index, "error", e.Err)...)
	case events.TurnArchived:
		logger.Info("turn archived", append(attrs, "summary", e.Summary, "saved", e.Saved)...)
	default:
		logger.Debug("turn event", attrs...)
	}
}
