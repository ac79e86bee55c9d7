package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/segmentation"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/internal/utils"
)

var errNoTranscriber = errors.New("no speech-to-text client configured")

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// transcribe replaces the input text with the transcript of the input
// audio. Without audio it returns an empty update. Failures degrade to an
// empty input.
func (e *Engine) transcribe(ctx context.Context, state TurnState) (TurnUpdate, error) {
	if state.InputAudioPath == "" {
		return TurnUpdate{}, nil
	}
	if _, err := os.Stat(state.InputAudioPath); err != nil {
		logger.WarnContext(ctx, "input audio not found, skipping transcription",
			"session_id", state.SessionID,
			"run_id", state.RunID,
			"path", state.InputAudioPath,
			"error", err,
		)
		return TurnUpdate{}, nil
	}

	var segments []speechtotext.Segment
	err := errNoTranscriber
	if e.speechToText != nil {
		tctx, cancel := withTimeout(ctx, e.timeouts.Transcription)
		segments, err = e.speechToText.Transcribe(tctx, state.InputAudioPath)
		cancel()
	}
	if err != nil {
		e.degrade(ctx, state, StageTranscribe, fmt.Errorf("failed to transcribe input: %w", err))
		return TurnUpdate{InputText: utils.Ptr("")}, nil
	}

	transcript := strings.TrimSpace(speechtotext.Join(segments))
	logger.InfoContext(ctx, "transcribed input",
		"session_id", state.SessionID,
		"run_id", state.RunID,
		"segments", len(segments),
		agentOutput("user_input", transcript),
	)
	e.emit(events.NewUserTranscriptFinal(events.TurnFromContext(ctx), transcript))
	return TurnUpdate{InputText: &transcript}, nil
}

// generate reads the session context, prompts the model and splits the
// completion into the spoken answer and its reasoning.
func (e *Engine) generate(ctx context.Context, state TurnState) (TurnUpdate, error) {
	if e.llm == nil {
		return TurnUpdate{}, fmt.Errorf("%w: no language model configured", ErrGenerationFailed)
	}

	conversationContext := e.memory.CumulativeContext(ctx, state.SessionID)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("context.length", len(conversationContext)))

	logger.InfoContext(ctx, "generating response",
		"session_id", state.SessionID,
		"run_id", state.RunID,
		agentOutput("user_input", state.InputText),
	)

	gctx, cancel := withTimeout(ctx, e.timeouts.Generation)
	defer cancel()
	completion, err := e.llm.Complete(gctx, buildPrompt(e.systemPrompt, conversationContext, state.InputText))
	if err != nil {
		return TurnUpdate{CumulativeContext: &conversationContext}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	answer, reasoning := llms.ExtractReasoning(completion)
	answer = llms.CleanSymbols(answer)

	logger.InfoContext(ctx, "generated response",
		"session_id", state.SessionID,
		"run_id", state.RunID,
		agentOutput("agent_response", answer),
	)
	e.emit(events.NewAssistantResponseFinal(events.TurnFromContext(ctx), answer, reasoning))

	return TurnUpdate{
		ResponseText:      &answer,
		AgentReasoning:    &reasoning,
		CumulativeContext: &conversationContext,
		MessageHistory: []llms.Message{
			llms.UserMessage(state.InputText),
			llms.AssistantMessage(answer),
		},
	}, nil
}

// segment splits the response into speakable chunks. Text the segmenter
// cannot split is spoken as a whole.
func (e *Engine) segment(_ context.Context, state TurnState) (TurnUpdate, error) {
	segments := e.segmenter.Split(state.ResponseText)
	if len(segments) == 0 && strings.TrimSpace(state.ResponseText) != "" {
		segments = []string{state.ResponseText}
	}
	return TurnUpdate{ResponseSegments: &segments}, nil
}

func (e *Engine) guardrail(_ context.Context, state TurnState) (TurnUpdate, error) {
	segments := segmentation.Guardrail(state.ResponseSegments)
	return TurnUpdate{ResponseSegments: &segments}, nil
}

// synthesize renders the segments to one audio file. When nothing could be
// rendered the audio path is cleared and ErrNoAudio returned.
func (e *Engine) synthesize(ctx context.Context, state TurnState) (TurnUpdate, error) {
	if e.aggregator == nil {
		return TurnUpdate{ResponseAudioPath: utils.Ptr("")}, fmt.Errorf("%w: no text-to-speech client or audio store configured", ErrNoAudio)
	}

	path, err := e.aggregator.Synthesize(ctx, state.ResponseSegments)
	if err != nil {
		if !isNoAudio(err) {
			err = fmt.Errorf("%w: %w", ErrNoAudio, err)
		}
		logger.ErrorContext(ctx, "no response audio",
			"session_id", state.SessionID,
			"run_id", state.RunID,
			"stage", StageSynthesize,
			"error", err,
		)
		return TurnUpdate{ResponseAudioPath: utils.Ptr("")}, err
	}
	return TurnUpdate{ResponseAudioPath: &path}, nil
}

// degrade records a stage failure the run recovers from.
func (e *Engine) degrade(ctx context.Context, state TurnState, stageName string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	logger.ErrorContext(ctx, "stage degraded",
		"session_id", state.SessionID,
		"run_id", state.RunID,
		"stage", stageName,
		"error", err,
	)
	e.emit(events.NewStageFailed(events.TurnFromContext(ctx), stageName, err, true))
}

func agentOutput(kind, text string) slog.Attr {
	return slog.Group("agent_output", slog.String("kind", kind), slog.String("text", text))
}
