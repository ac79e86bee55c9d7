// Package synthesis renders response segments to a single WAV artifact.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/events"
	"github.com/koscakluka/ema-voice/core/storage"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

const (
	DefaultSegmentTimeout = 30 * time.Second
	DefaultSegmentRetries = 1
	DefaultSilence        = 200 * time.Millisecond
)

// ErrNoAudio is returned when no segment could be synthesized.
var ErrNoAudio = errors.New("no audio synthesized")

var errSampleRateMismatch = errors.New("sample rate differs from previous segments")

type Aggregator struct {
	tts   texttospeech.Synthesizer
	store storage.FileStore

	dir            string
	segmentTimeout time.Duration
	retries        int
	silence        time.Duration
	onEvent        events.Handler
	newName        func() string
}

type AggregatorOption func(*Aggregator)

// WithDirectory sets the store directory generated files are written to.
func WithDirectory(dir string) AggregatorOption {
	return func(a *Aggregator) { a.dir = dir }
}

func WithSegmentTimeout(timeout time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.segmentTimeout = timeout }
}

// WithSegmentRetries sets how many times a failed segment is retried.
func WithSegmentRetries(retries int) AggregatorOption {
	return func(a *Aggregator) { a.retries = max(retries, 0) }
}

// WithSilence sets the pause appended after each synthesized segment.
func WithSilence(silence time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.silence = silence }
}

func WithEventHandler(handler events.Handler) AggregatorOption {
	return func(a *Aggregator) { a.onEvent = handler }
}

func NewAggregator(tts texttospeech.Synthesizer, store storage.FileStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		tts:            tts,
		store:          store,
		segmentTimeout: DefaultSegmentTimeout,
		retries:        DefaultSegmentRetries,
		silence:        DefaultSilence,
		newName:        func() string { return uuid.NewString() + ".wav" },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Synthesize renders every segment in order and writes the result as one
// WAV file. Segments that fail are skipped. It returns the store path of
// the file, or ErrNoAudio when nothing could be rendered.
func (a *Aggregator) Synthesize(ctx context.Context, segments []string) (string, error) {
	ctx, span := tracer.Start(ctx, "synthesize segments")
	defer span.End()
	span.SetAttributes(attribute.Int("segments.count", len(segments)))

	var (
		samples    []int16
		sampleRate int
		rendered   int
	)
	for i, segment := range segments {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}

		speech, err := a.synthesizeSegment(ctx, " "+segment+" ")
		if err == nil && sampleRate != 0 && speech.SampleRate != sampleRate {
			err = fmt.Errorf("%w: got %d, want %d", errSampleRateMismatch, speech.SampleRate, sampleRate)
		}
		if err != nil {
			a.skip(ctx, i, segment, err)
			continue
		}

		if sampleRate == 0 {
			sampleRate = speech.SampleRate
		}
		samples = append(samples, speech.Samples...)
		samples = append(samples, audio.Silence(sampleRate, a.silence)...)
		rendered++
	}

	span.SetAttributes(attribute.Int("segments.rendered", rendered))
	if rendered == 0 {
		span.SetStatus(codes.Error, ErrNoAudio.Error())
		return "", ErrNoAudio
	}

	name := path.Join(a.dir, a.newName())
	if err := a.write(ctx, name, samples, sampleRate); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	logger.InfoContext(ctx, "response audio written",
		"path", a.store.URI(name),
		"segments", len(segments),
		"rendered", rendered,
		"duration", audio.EncodingInfo{SampleRate: sampleRate, Format: audio.EncodingLinear16}.Duration(len(samples)),
	)
	return name, nil
}

func (a *Aggregator) synthesizeSegment(ctx context.Context, text string) (texttospeech.Speech, error) {
	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if ctx.Err() != nil {
			break
		}

		var speech texttospeech.Speech
		speech, err = a.attempt(ctx, text)
		if err == nil {
			return speech, nil
		}
		logger.WarnContext(ctx, "segment synthesis attempt failed", "attempt", attempt+1, "error", err)
	}
	if err == nil {
		err = ctx.Err()
	}
	return texttospeech.Speech{}, err
}

func (a *Aggregator) attempt(ctx context.Context, text string) (texttospeech.Speech, error) {
	if a.segmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.segmentTimeout)
		defer cancel()
	}

	speech, err := a.tts.Synthesize(ctx, text)
	if err != nil {
		return texttospeech.Speech{}, err
	}
	if len(speech.Samples) == 0 {
		return texttospeech.Speech{}, fmt.Errorf("synthesizer returned no samples")
	}
	return speech, nil
}

func (a *Aggregator) skip(ctx context.Context, index int, segment string, err error) {
	turn := events.TurnFromContext(ctx)
	logger.ErrorContext(ctx, "skipping segment",
		"session_id", turn.SessionID,
		"run_id", turn.RunID,
		"stage", "synthesize",
		"segment_index", index,
		"error", err,
	)
	skippedCounter.Add(ctx, 1, metric.WithAttributes(attribute.Int("segment.index", index)))
	if a.onEvent != nil {
		a.onEvent(events.NewSegmentSkipped(turn, index, segment, err))
	}
}

func (a *Aggregator) write(ctx context.Context, name string, samples []int16, sampleRate int) error {
	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return fmt.Errorf("failed to encode response audio: %w", err)
	}
	if err := storage.WriteFile(ctx, a.store, name, data); err != nil {
		return fmt.Errorf("failed to store response audio: %w", err)
	}
	return nil
}
