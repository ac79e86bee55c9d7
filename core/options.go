package orchestration

import (
	"time"

	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/segmentation"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"github.com/koscakluka/ema-voice/core/storage"
	"github.com/koscakluka/ema-voice/core/synthesis"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

type EngineOption func(*Engine)

// Timeouts bound every call into a collaborator. Zero disables a bound.
type Timeouts struct {
	Transcription    time.Duration
	Generation       time.Duration
	SynthesisSegment time.Duration
	Summary          time.Duration
	Persistence      time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Transcription:    60 * time.Second,
		Generation:       120 * time.Second,
		SynthesisSegment: synthesis.DefaultSegmentTimeout,
		Summary:          30 * time.Second,
		Persistence:      conversations.DefaultTimeout,
	}
}

func WithSpeechToText(client speechtotext.Transcriber) EngineOption {
	return func(e *Engine) { e.speechToText = client }
}

func WithLLM(client llms.Completer) EngineOption {
	return func(e *Engine) { e.llm = client }
}

// WithSummaryLLM sets the model used to summarize archived turns. It
// defaults to the response model.
func WithSummaryLLM(client llms.Completer) EngineOption {
	return func(e *Engine) { e.summaryLLM = client }
}

func WithTextToSpeech(client texttospeech.Synthesizer) EngineOption {
	return func(e *Engine) { e.textToSpeech = client }
}

// WithContextStore sets where turns are archived. The engine closes the
// store on Close. Without one, history is kept in memory.
func WithContextStore(store conversations.Store) EngineOption {
	return func(e *Engine) { e.store = store }
}

func WithAudioStore(store storage.FileStore) EngineOption {
	return func(e *Engine) { e.audioStore = store }
}

// WithAudioDirectory sets the directory in the audio store that response
// audio is written to.
func WithAudioDirectory(dir string) EngineOption {
	return func(e *Engine) { e.audioDir = dir }
}

func WithSystemPrompt(prompt string) EngineOption {
	return func(e *Engine) { e.systemPrompt = prompt }
}

func WithSegmenter(segmenter segmentation.Segmenter) EngineOption {
	return func(e *Engine) { e.segmenter = segmenter }
}

func WithTimeouts(timeouts Timeouts) EngineOption {
	return func(e *Engine) { e.timeouts = timeouts }
}

func WithSegmentRetries(retries int) EngineOption {
	return func(e *Engine) { e.segmentRetries = retries }
}

// WithSilence sets the pause inserted after every synthesized segment.
func WithSilence(silence time.Duration) EngineOption {
	return func(e *Engine) { e.silence = silence }
}

// WithEventHandler registers a handler for turn lifecycle events. It is
// called synchronously from the run, and from the archive goroutine for
// [events.TurnArchived].
func WithEventHandler(handler events.Handler) EngineOption {
	return func(e *Engine) { e.onEvent = handler }
}

// WithSynchronousArchive makes Run archive the turn before returning and
// include the summary in the returned state.
func WithSynchronousArchive() EngineOption {
	return func(e *Engine) { e.synchronousArchive = true }
}
