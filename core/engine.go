// Package orchestration runs a single voice turn through transcription,
// generation, segmentation and synthesis, and archives the finished turn.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-voice/core/archive"
	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/segmentation"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/storage"
	"github.com/koscakluka/ema-voice/core/synthesis"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

const (
	StageTranscribe = "transcribe"
	StageGenerate   = "generate"
	StageSegment    = "segment"
	StageGuardrail  = "guardrail"
	StageSynthesize = "synthesize"
	StageArchive    = "archive"
)

type Engine struct {
	speechToText speechtotext.Transcriber
	llm          llms.Completer
	summaryLLM   llms.Completer
	textToSpeech texttospeech.Synthesizer
	store        conversations.Store
	audioStore   storage.FileStore

	audioDir           string
	systemPrompt       string
	segmenter          segmentation.Segmenter
	timeouts           Timeouts
	segmentRetries     int
	silence            time.Duration
	onEvent            events.Handler
	synchronousArchive bool

	memory     *conversations.Memory
	aggregator *synthesis.Aggregator
	archiver   *archive.Archiver

	inFlight *inFlightRuns

	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

type stage struct {
	name string
	run  func(ctx context.Context, state TurnState) (TurnUpdate, error)
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		systemPrompt:   DefaultSystemPrompt,
		segmenter:      segmentation.Segmenter{MaxRunes: segmentation.DefaultMaxRunes},
		timeouts:       DefaultTimeouts(),
		segmentRetries: synthesis.DefaultSegmentRetries,
		silence:        synthesis.DefaultSilence,
		inFlight:       newInFlightRuns(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = conversations.NewInMemoryStore()
	}
	if e.summaryLLM == nil {
		e.summaryLLM = e.llm
	}

	e.memory = conversations.NewMemory(e.store, conversations.WithTimeout(e.timeouts.Persistence))
	e.archiver = archive.NewArchiver(e.summaryLLM, e.memory, archive.WithSummaryTimeout(e.timeouts.Summary))
	if e.textToSpeech != nil && e.audioStore != nil {
		e.aggregator = synthesis.NewAggregator(e.textToSpeech, e.audioStore,
			synthesis.WithDirectory(e.audioDir),
			synthesis.WithSegmentTimeout(e.timeouts.SynthesisSegment),
			synthesis.WithSegmentRetries(e.segmentRetries),
			synthesis.WithSilence(e.silence),
			synthesis.WithEventHandler(e.onEvent),
		)
	}

	return e
}

// Memory exposes the conversation memory the engine reads and archives to.
func (e *Engine) Memory() *conversations.Memory { return e.memory }

// AudioStore returns the store response audio is written to.
func (e *Engine) AudioStore() storage.FileStore { return e.audioStore }

func (e *Engine) stages() []stage {
	return []stage{
		{name: StageTranscribe, run: e.transcribe},
		{name: StageGenerate, run: e.generate},
		{name: StageSegment, run: e.segment},
		{name: StageGuardrail, run: e.guardrail},
		{name: StageSynthesize, run: e.synthesize},
	}
}

// Run executes one turn. A generation failure aborts the run with
// ErrGenerationFailed. When every segment fails to synthesize the final
// state is still returned, together with ErrNoAudio. Returned errors are
// *StageError.
//
// Archiving happens after Run returns unless the engine was built with
// WithSynchronousArchive; use Wait to block on it.
func (e *Engine) Run(ctx context.Context, initial TurnState) (TurnState, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return initial, ErrClosed
	}
	e.wg.Add(1)
	e.mu.RUnlock()
	defer e.wg.Done()

	state := Merge(initial, TurnUpdate{})
	if state.RunID == "" {
		state.RunID = uuid.NewString()
	}
	turn := events.Turn{SessionID: state.SessionID, RunID: state.RunID}

	ctx, span := tracer.Start(ctx, "run turn", trace.WithAttributes(
		attribute.String("session.id", state.SessionID),
		attribute.String("run.id", state.RunID),
	))
	defer span.End()
	ctx = events.WithTurn(ctx, turn)

	e.inFlight.start(state)
	defer e.inFlight.finish(state.RunID)
	e.emit(events.NewTurnStarted(turn))

	var runErr error
	for _, s := range e.stages() {
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, span, state, s.name, err)
		}

		e.inFlight.update(s.name, state)
		update, err := e.runStage(ctx, s, state)
		state = Merge(state, update)
		e.inFlight.update(s.name, state)

		if err == nil {
			continue
		}
		if s.name == StageSynthesize {
			// The turn still happened; archive it before reporting.
			runErr = &StageError{Stage: s.name, SessionID: state.SessionID, RunID: state.RunID, Err: err}
			break
		}
		return e.fail(ctx, span, state, s.name, err)
	}

	state = e.archive(ctx, state)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "no_audio")))
		e.emit(events.NewTurnFailed(turn, runErr))
		return state, runErr
	}

	turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "completed")))
	e.emit(events.NewTurnCompleted(turn, state.ResponseAudioPath))
	return state, nil
}

func (e *Engine) runStage(ctx context.Context, s stage, state TurnState) (TurnUpdate, error) {
	ctx, span := tracer.Start(ctx, "stage."+s.name)
	defer span.End()

	turn := events.TurnFromContext(ctx)
	e.emit(events.NewStageStarted(turn, s.name))

	start := time.Now()
	update, err := s.run(ctx, state)
	elapsed := time.Since(start)
	stageDuration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attribute.String("stage", s.name)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.emit(events.NewStageFailed(turn, s.name, err, false))
		return update, err
	}

	e.emit(events.NewStageCompleted(turn, s.name, elapsed))
	return update, nil
}

func (e *Engine) fail(ctx context.Context, span trace.Span, state TurnState, stageName string, err error) (TurnState, error) {
	stageErr := &StageError{Stage: stageName, SessionID: state.SessionID, RunID: state.RunID, Err: err}
	span.RecordError(stageErr)
	span.SetStatus(codes.Error, stageErr.Error())
	logger.ErrorContext(ctx, "turn failed",
		"session_id", state.SessionID,
		"run_id", state.RunID,
		"stage", stageName,
		"error", err,
	)
	turnCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	e.emit(events.NewTurnFailed(events.TurnFromContext(ctx), stageErr))
	return state, stageErr
}

// archive runs the trailing archive step. In the background it gets a
// context that outlives the request but keeps its values.
func (e *Engine) archive(ctx context.Context, state TurnState) TurnState {
	interaction := archive.Interaction{
		SessionID:         state.SessionID,
		RunID:             state.RunID,
		UserQuery:         state.InputText,
		AgentAnswer:       state.ResponseText,
		AgentReasoning:    state.AgentReasoning,
		CumulativeContext: state.CumulativeContext,
		InputAudioPath:    state.InputAudioPath,
		OutputAudioPath:   e.audioURI(state.ResponseAudioPath),
	}

	if e.synchronousArchive {
		result := e.archiveInteraction(ctx, interaction)
		if !result.Archived {
			return state
		}
		return Merge(state, TurnUpdate{TurnSummary: &result.Summary})
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.archiveInteraction(context.WithoutCancel(ctx), interaction)
	}()
	return state
}

func (e *Engine) archiveInteraction(ctx context.Context, interaction archive.Interaction) archive.Result {
	ctx, span := tracer.Start(ctx, "stage."+StageArchive)
	defer span.End()

	start := time.Now()
	result := e.archiver.Archive(ctx, interaction)
	stageDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("stage", StageArchive)))

	if result.Archived {
		e.emit(events.NewTurnArchived(events.TurnFromContext(ctx), result.Summary, result.Saved))
	}
	return result
}

func (e *Engine) audioURI(path string) string {
	if path == "" || e.audioStore == nil {
		return path
	}
	return e.audioStore.URI(path)
}

func (e *Engine) emit(event events.Event) {
	if e.onEvent != nil {
		e.onEvent(event)
	}
}

// InFlight returns the current stage and partial state of a run that has
// not returned yet.
func (e *Engine) InFlight(runID string) (RunSnapshot, bool) {
	return e.inFlight.get(runID)
}

// Wait blocks until every started run and its archive step finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close stops accepting runs, waits for pending work and closes the
// conversation store.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.wg.Wait()
		if err := e.memory.Close(); err != nil {
			e.closeErr = fmt.Errorf("failed to close conversation store: %w", err)
		}
	})
	return e.closeErr
}

func isNoAudio(err error) bool {
	return errors.Is(err, ErrNoAudio)
}
