// Package archive summarizes finished turns and appends them to the
// conversation store.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/llms"
)

const (
	DefaultSummaryTimeout = 30 * time.Second

	fallbackQueryRunes = 20
)

// Interaction is the part of a finished turn that gets archived.
type Interaction struct {
	SessionID         string
	RunID             string
	UserQuery         string
	AgentAnswer       string
	AgentReasoning    string
	CumulativeContext string
	InputAudioPath    string
	OutputAudioPath   string
}

// Result describes what Archive did. Archived is false when the interaction
// was incomplete and nothing was attempted.
type Result struct {
	Summary  string
	Archived bool
	Saved    bool
}

type Archiver struct {
	summarizer     llms.Completer
	memory         *conversations.Memory
	summaryTimeout time.Duration
}

type ArchiverOption func(*Archiver)

func WithSummaryTimeout(timeout time.Duration) ArchiverOption {
	return func(a *Archiver) { a.summaryTimeout = timeout }
}

// NewArchiver creates an archiver. A nil summarizer always uses the
// fallback summary.
func NewArchiver(summarizer llms.Completer, memory *conversations.Memory, opts ...ArchiverOption) *Archiver {
	a := &Archiver{
		summarizer:     summarizer,
		memory:         memory,
		summaryTimeout: DefaultSummaryTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive summarizes the interaction and appends it to the store. It does
// nothing unless session id, query and answer are all present. Storage
// failures are logged and reported through Result.Saved only.
func (a *Archiver) Archive(ctx context.Context, interaction Interaction) Result {
	if interaction.SessionID == "" || interaction.UserQuery == "" || interaction.AgentAnswer == "" {
		return Result{}
	}

	ctx, span := tracer.Start(ctx, "archive interaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", interaction.SessionID),
		attribute.String("run.id", interaction.RunID),
	)

	summary := a.summarize(ctx, interaction)

	err := a.memory.SaveInteraction(ctx, conversations.Record{
		SessionID:         interaction.SessionID,
		RunID:             interaction.RunID,
		UserQuery:         interaction.UserQuery,
		AgentAnswer:       interaction.AgentAnswer,
		AgentReasoning:    interaction.AgentReasoning,
		TurnSummary:       summary,
		CumulativeContext: interaction.CumulativeContext,
		InputAudioPath:    interaction.InputAudioPath,
		OutputAudioPath:   interaction.OutputAudioPath,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return Result{Summary: summary, Archived: true, Saved: err == nil}
}

func (a *Archiver) summarize(ctx context.Context, interaction Interaction) string {
	if a.summarizer == nil {
		return FallbackSummary(interaction.UserQuery)
	}

	ctx, span := tracer.Start(ctx, "summarize interaction")
	defer span.End()

	if a.summaryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.summaryTimeout)
		defer cancel()
	}

	completion, err := a.summarizer.Complete(ctx, []llms.Message{
		llms.UserMessage(SummaryPrompt(interaction.UserQuery, interaction.AgentAnswer)),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "failed to summarize interaction, using fallback",
			"session_id", interaction.SessionID,
			"run_id", interaction.RunID,
			"stage", "archive",
			"error", err,
		)
		return FallbackSummary(interaction.UserQuery)
	}

	summary := llms.StripReasoning(completion)
	if summary == "" {
		logger.WarnContext(ctx, "summarizer returned empty summary, using fallback",
			"session_id", interaction.SessionID,
			"run_id", interaction.RunID,
		)
		return FallbackSummary(interaction.UserQuery)
	}
	return summary
}

func SummaryPrompt(query, answer string) string {
	return fmt.Sprintf("Summarize the following interaction concisely in one sentence.\n\nUser: %s\nAgent: %s\n\nSummary:", query, answer)
}

// FallbackSummary is used when no summary could be generated.
func FallbackSummary(query string) string {
	runes := []rune(query)
	if len(runes) > fallbackQueryRunes {
		runes = runes[:fallbackQueryRunes]
	}
	return "User asked about " + string(runes) + "..."
}
